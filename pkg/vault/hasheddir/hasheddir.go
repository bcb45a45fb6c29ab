// Package hasheddir adds SHA-256 integrity checking on top of a plaindir
// Directory: every write also stores a digest under a side directory, every
// read verifies the stored record against its digest, and Cleanup
// reconciles the two when they disagree about what exists.
//
// Grounded on
// original_source/src/file_manipulation/directory_handler_with_file_hash.py.
package hasheddir

import (
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/sealedbox/vaultcore/pkg/filesystem"
	"github.com/sealedbox/vaultcore/pkg/vault/plaindir"
	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

const (
	// HashesSubdirectory is the name of the side area holding one digest file
	// per record.
	HashesSubdirectory = ".hashes"
	// HashFileExtension is appended to a record's name to form its digest
	// file's name.
	HashFileExtension = "hash"

	hashFilePermissions = 0600
	hashDirPermissions  = 0700
)

// Directory wraps a plaindir.Directory with SHA-256 integrity checking.
type Directory struct {
	inner *plaindir.Directory
}

// Open opens (creating if necessary) a hashed directory at path.
func Open(path string) (*Directory, error) {
	inner, err := plaindir.Open(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(path, HashesSubdirectory), hashDirPermissions); err != nil {
		return nil, errors.Wrap(err, "unable to create hashes subdirectory")
	}
	return &Directory{inner: inner}, nil
}

// Path returns the directory's location on disk.
func (d *Directory) Path() string {
	return d.inner.Path()
}

// Exists returns whether name is a known record.
func (d *Directory) Exists(name string) bool {
	return d.inner.Exists(name)
}

// AllNames returns a snapshot copy of the known record names.
func (d *Directory) AllNames() map[string]struct{} {
	return d.inner.AllNames()
}

// Search performs fuzzy name search, delegating to the wrapped directory.
func (d *Directory) Search(target string, n int) []string {
	return d.inner.Search(target, n)
}

// WriteMetadata writes untyped side-area data, delegating to the wrapped
// directory. Metadata is not hashed; it is the concern of this directory's
// caller, not of record integrity.
func (d *Directory) WriteMetadata(name string, data []byte) error {
	return d.inner.WriteMetadata(name, data)
}

// ReadMetadata reads untyped side-area data, delegating to the wrapped
// directory.
func (d *Directory) ReadMetadata(name string) ([]byte, error) {
	return d.inner.ReadMetadata(name)
}

// Write stores data under name's digest before storing the record itself, so
// that a crash between the two never leaves a record whose digest predates
// it.
func (d *Directory) Write(name string, data []byte) error {
	if err := d.writeHash(name, data); err != nil {
		return errors.Wrap(err, "unable to write record digest")
	}
	return d.inner.Write(name, data)
}

// Read reads the record at name and verifies it against its stored digest,
// failing with vaulterrors.ErrIntegrity on mismatch.
func (d *Directory) Read(name string) ([]byte, error) {
	data, err := d.inner.Read(name)
	if err != nil {
		return nil, err
	}

	expected, err := os.ReadFile(d.hashPath(name))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read record digest")
	}

	actual := hash(data)
	if !equalDigest(actual, expected) {
		return nil, errors.Wrapf(vaulterrors.ErrIntegrity, "record %q digest mismatch", name)
	}
	return data, nil
}

// WriteDigest stores plaintext's digest under name without touching the
// record itself. It exists for callers (pkg/vault/encrypteddir) that need to
// store a different byte sequence (ciphertext) than the one being digested
// (plaintext); such callers pair it with WriteRaw.
func (d *Directory) WriteDigest(name string, plaintext []byte) error {
	return d.writeHash(name, plaintext)
}

// WriteRaw stores data under name without touching its digest, delegating
// directly to the wrapped plaindir.Directory.
func (d *Directory) WriteRaw(name string, data []byte) error {
	return d.inner.Write(name, data)
}

// ReadRaw reads the record at name without verifying it against its digest.
func (d *Directory) ReadRaw(name string) ([]byte, error) {
	return d.inner.Read(name)
}

// VerifyDigest reports, via vaulterrors.ErrIntegrity, whether plaintext's
// digest disagrees with the digest stored under name.
func (d *Directory) VerifyDigest(name string, plaintext []byte) error {
	expected, err := os.ReadFile(d.hashPath(name))
	if err != nil {
		return errors.Wrap(err, "unable to read record digest")
	}
	if !equalDigest(hash(plaintext), expected) {
		return errors.Wrapf(vaulterrors.ErrIntegrity, "record %q digest mismatch", name)
	}
	return nil
}

// GetFileHash returns the stored digest for name without reading or
// verifying the record itself.
func (d *Directory) GetFileHash(name string) ([]byte, error) {
	if !d.inner.Exists(name) {
		return nil, errors.Wrapf(vaulterrors.ErrNotFound, "record %q", name)
	}
	data, err := os.ReadFile(d.hashPath(name))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read record digest")
	}
	return data, nil
}

// Delete removes the record at name and its digest. The record is removed
// first so that a crash between the two never leaves a digest without a
// corresponding record being mistaken for a valid one.
func (d *Directory) Delete(name string) error {
	if err := d.inner.Delete(name); err != nil {
		return err
	}
	if err := d.deleteHash(name); err != nil {
		return errors.Wrap(err, "unable to remove record digest")
	}
	return nil
}

// Cleanup reconciles records and digests: a record with no digest is
// deleted outright (it cannot be trusted), and a digest with no record is
// removed as an orphan.
func (d *Directory) Cleanup() error {
	hashDir := filepath.Join(d.inner.Path(), HashesSubdirectory)
	entries, err := filesystem.DirectoryContentsByPath(hashDir)
	if err != nil {
		return errors.Wrap(err, "unable to list hashes subdirectory")
	}

	hashFiles := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			hashFiles[entry.Name()] = struct{}{}
		}
	}

	for name := range d.inner.AllNames() {
		hashName := name + "." + HashFileExtension
		if _, ok := hashFiles[hashName]; ok {
			delete(hashFiles, hashName)
			continue
		}
		// No digest exists for this record; it cannot be trusted.
		if err := d.inner.Delete(name); err != nil {
			return errors.Wrapf(err, "unable to remove undigested record %q", name)
		}
	}

	for hashName := range hashFiles {
		if err := os.Remove(filepath.Join(hashDir, hashName)); err != nil {
			return errors.Wrapf(err, "unable to remove orphaned digest %q", hashName)
		}
	}

	return nil
}

func (d *Directory) writeHash(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Join(d.inner.Path(), HashesSubdirectory), hashDirPermissions); err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(d.hashPath(name), hash(data), hashFilePermissions)
}

func (d *Directory) deleteHash(name string) error {
	err := os.Remove(d.hashPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *Directory) hashPath(name string) string {
	return filepath.Join(d.inner.Path(), HashesSubdirectory, name+"."+HashFileExtension)
}

func hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func equalDigest(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
