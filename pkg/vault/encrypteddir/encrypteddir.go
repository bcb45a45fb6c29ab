// Package encrypteddir adds ChaCha20 encryption and crash-safe key rotation
// on top of a hasheddir Directory. Every record is stored on disk as a
// version||nonce||ciphertext envelope (pkg/vault/cipher); a small encrypted
// control record (directoryInfo) tracks the next nonce to allocate and
// whether a key rotation was interrupted mid-flight.
//
// Grounded on
// original_source/src/file_manipulation/directory_handler_with_encryption.py.
package encrypteddir

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sealedbox/vaultcore/pkg/filesystem"
	"github.com/sealedbox/vaultcore/pkg/filesystem/locking"
	"github.com/sealedbox/vaultcore/pkg/vault/cipher"
	"github.com/sealedbox/vaultcore/pkg/vault/hasheddir"
	"github.com/sealedbox/vaultcore/pkg/vault/plaindir"
	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

const (
	// ControlRecordName is the name of the encrypted control record under
	// the metadata subdirectory.
	ControlRecordName = "directory_info"

	// StagingSubdirectory holds records re-encrypted under a new key while a
	// rotation is in progress but not yet committed.
	StagingSubdirectory = ".files_using_new_key_cache"

	// lockFileName is the advisory lock held for the lifetime of an open
	// Directory, guarding against a second process opening the same replica
	// and racing on nonce allocation.
	lockFileName = "lock"

	stagingPermissions = 0700
	stagedPermissions  = 0600
	lockPermissions    = 0600
)

// Directory wraps a hasheddir.Directory with encryption and key rotation.
type Directory struct {
	hashed *hasheddir.Directory
	locker *locking.Locker

	lock sync.Mutex
	key  [cipher.KeySize]byte
	info directoryInfo
}

// Open opens (creating if necessary) an encrypted directory at path under
// key. It acquires an exclusive advisory lock for the lifetime of the
// returned Directory (see Close), failing immediately if another process
// already holds it. If a control record already exists, it is decrypted
// and CRC-verified; failure to do either is reported as
// vaulterrors.ErrWrongKeyOrCorrupted, since the two causes can't be told
// apart from outside. If the loaded control record indicates an interrupted
// key rotation, recovery runs automatically before Open returns.
func Open(path string, key [cipher.KeySize]byte) (*Directory, error) {
	hashed, err := hasheddir.Open(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(path, StagingSubdirectory), stagingPermissions); err != nil {
		return nil, errors.Wrap(err, "unable to create key rotation staging directory")
	}

	locker, err := locking.NewLocker(filepath.Join(path, plaindir.MetadataSubdirectory, lockFileName), lockPermissions)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}
	if err := locker.Lock(false); err != nil {
		locker.Close()
		return nil, errors.Wrap(err, "replica is already open in another process")
	}

	d := &Directory{hashed: hashed, locker: locker, key: key}

	controlPath := filepath.Join(path, plaindir.MetadataSubdirectory, ControlRecordName)
	raw, err := os.ReadFile(controlPath)
	if os.IsNotExist(err) {
		d.info = directoryInfo{modified: time.Unix(0, 0).UTC()}
	} else if err != nil {
		locker.Close()
		return nil, errors.Wrap(err, "unable to read control record")
	} else {
		plaintext, decErr := cipher.UnpackAndDecrypt(raw, key)
		if decErr != nil {
			locker.Close()
			return nil, errors.Wrap(vaulterrors.ErrWrongKeyOrCorrupted, decErr.Error())
		}
		info, parseErr := deserializeDirectoryInfo(plaintext)
		if parseErr != nil {
			locker.Close()
			return nil, errors.Wrap(vaulterrors.ErrWrongKeyOrCorrupted, parseErr.Error())
		}
		d.info = info
	}

	if d.info.keyChanged {
		if err := d.recover(); err != nil {
			locker.Close()
			return nil, errors.Wrap(err, "unable to recover interrupted key rotation")
		}
	}

	return d, nil
}

// Path returns the directory's location on disk.
func (d *Directory) Path() string {
	return d.hashed.Path()
}

// Close releases the advisory lock acquired by Open. It does not close any
// underlying record data; callers should stop using the Directory after
// calling Close.
func (d *Directory) Close() error {
	return d.locker.Close()
}

// Modified returns the timestamp of the most recent write, key rotation, or
// recovery, used by replicateddir to rank replicas by freshness.
func (d *Directory) Modified() time.Time {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.info.modified
}

// Exists returns whether name is a known record.
func (d *Directory) Exists(name string) bool {
	return d.hashed.Exists(name)
}

// AllNames returns a snapshot copy of the known record names.
func (d *Directory) AllNames() map[string]struct{} {
	return d.hashed.AllNames()
}

// Search performs fuzzy name search, delegating to the wrapped directory.
func (d *Directory) Search(target string, n int) []string {
	return d.hashed.Search(target, n)
}

// WriteMetadata writes untyped, unencrypted side-area data, delegating to
// the wrapped directory. Used for replica identity, which must be readable
// without a key, since the replica's own key is derived in part from it.
func (d *Directory) WriteMetadata(name string, data []byte) error {
	return d.hashed.WriteMetadata(name, data)
}

// ReadMetadata reads untyped, unencrypted side-area data, delegating to the
// wrapped directory.
func (d *Directory) ReadMetadata(name string) ([]byte, error) {
	return d.hashed.ReadMetadata(name)
}

// Write encrypts data under the directory's current key and stores it under
// name, along with a digest of the plaintext for later integrity
// verification.
func (d *Directory) Write(name string, data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.hashed.WriteDigest(name, data); err != nil {
		return errors.Wrap(err, "unable to write record digest")
	}

	nonce := d.allocateNonce()
	if err := d.persistInfo(); err != nil {
		return errors.Wrap(err, "unable to persist control record")
	}

	packed, err := cipher.EncryptAndPack(data, d.key, nonce)
	if err != nil {
		return errors.Wrap(err, "unable to encrypt record")
	}
	if err := d.hashed.WriteRaw(name, packed); err != nil {
		return errors.Wrap(err, "unable to write encrypted record")
	}
	return nil
}

// Read reads the record at name, decrypts it under the directory's current
// key, and verifies it against its stored digest.
func (d *Directory) Read(name string) ([]byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.readLocked(name)
}

func (d *Directory) readLocked(name string) ([]byte, error) {
	packed, err := d.hashed.ReadRaw(name)
	if err != nil {
		return nil, err
	}

	plaintext, err := cipher.UnpackAndDecrypt(packed, d.key)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decrypt record")
	}

	if err := d.hashed.VerifyDigest(name, plaintext); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// GetFileHash returns the stored plaintext digest for name, used by
// replicateddir to detect divergence between replicas without decrypting
// and comparing full record contents.
func (d *Directory) GetFileHash(name string) ([]byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.hashed.GetFileHash(name)
}

// Delete removes the record at name and its digest.
func (d *Directory) Delete(name string) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.hashed.Delete(name)
}

// Cleanup reconciles records and digests on the wrapped directory.
func (d *Directory) Cleanup() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.hashed.Cleanup()
}

// ChangeKey re-encrypts every record under newKey using a crash-safe
// two-phase protocol: records are first staged, fully re-encrypted, under
// StagingSubdirectory; the control record is then marked key_changed and
// persisted under newKey; only then are the staged files moved into place
// with atomic renames; finally key_changed is cleared. A crash at any point
// before the control record is marked leaves the old key in effect and the
// stale staging directory harmless; a crash after leaves enough state for
// recover (run automatically on the next Open) to finish the rename phase.
func (d *Directory) ChangeKey(newKey [cipher.KeySize]byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.hashed.Cleanup(); err != nil {
		return errors.Wrap(err, "unable to clean up before key rotation")
	}

	stagingDir := filepath.Join(d.hashed.Path(), StagingSubdirectory)

	var staged uint64
	for name := range d.hashed.AllNames() {
		plaintext, err := d.readLocked(name)
		if errors.Is(err, vaulterrors.ErrIntegrity) {
			if delErr := d.hashed.Delete(name); delErr != nil {
				return errors.Wrapf(delErr, "unable to remove unreadable record %q during key rotation", name)
			}
			continue
		} else if err != nil {
			return errors.Wrapf(err, "unable to read record %q during key rotation", name)
		}

		packed, err := cipher.EncryptAndPack(plaintext, newKey, staged)
		if err != nil {
			return errors.Wrapf(err, "unable to re-encrypt record %q", name)
		}
		if err := filesystem.WriteFileAtomic(filepath.Join(stagingDir, name), packed, stagedPermissions); err != nil {
			return errors.Wrapf(err, "unable to stage re-encrypted record %q", name)
		}
		staged++
	}

	d.key = newKey
	d.info.modified = time.Now().UTC()
	d.info.nextNonce = staged
	d.info.keyChanged = true
	if err := d.persistInfo(); err != nil {
		return errors.Wrap(err, "unable to persist control record before committing key rotation")
	}

	if err := moveStagedFiles(stagingDir, d.hashed.Path()); err != nil {
		return errors.Wrap(err, "unable to commit re-encrypted records")
	}

	d.info.modified = time.Now().UTC()
	d.info.keyChanged = false
	if err := d.persistInfo(); err != nil {
		return errors.Wrap(err, "unable to persist control record after committing key rotation")
	}
	return nil
}

// recover finishes an interrupted key rotation found on Open, or clears a
// stale staging directory left behind by an interruption that occurred
// before the control record was marked key_changed.
func (d *Directory) recover() error {
	stagingDir := filepath.Join(d.hashed.Path(), StagingSubdirectory)

	if !d.info.keyChanged {
		return clearDirectory(stagingDir)
	}

	if err := moveStagedFiles(stagingDir, d.hashed.Path()); err != nil {
		return err
	}

	d.info.modified = time.Now().UTC()
	d.info.keyChanged = false
	return d.persistInfo()
}

// allocateNonce returns the next nonce to use and advances the counter. It
// must be called with d.lock held.
func (d *Directory) allocateNonce() uint64 {
	nonce := d.info.nextNonce
	d.info.nextNonce++
	return nonce
}

// persistInfo serializes and encrypts the control record under an
// internally allocated nonce, then writes it atomically. It must be called
// with d.lock held.
func (d *Directory) persistInfo() error {
	nonce := d.allocateNonce()
	d.info.modified = time.Now().UTC()

	packed, err := cipher.EncryptAndPack(d.info.serialize(), d.key, nonce)
	if err != nil {
		return err
	}

	metadataDir := filepath.Join(d.hashed.Path(), plaindir.MetadataSubdirectory)
	if err := os.MkdirAll(metadataDir, stagingPermissions); err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(filepath.Join(metadataDir, ControlRecordName), packed, stagedPermissions)
}

// moveStagedFiles renames every regular file in src into dst, overwriting
// any existing file of the same name.
func moveStagedFiles(src, dst string) error {
	entries, err := filesystem.DirectoryContentsByPath(src)
	if err != nil {
		return errors.Wrap(err, "unable to list staging directory")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if err := filesystem.Rename(filepath.Join(src, name), filepath.Join(dst, name), true); err != nil {
			return errors.Wrapf(err, "unable to move staged record %q", name)
		}
	}
	return nil
}

// clearDirectory removes every regular file in dir, best-effort, leaving
// subdirectories untouched.
func clearDirectory(dir string) error {
	entries, err := filesystem.DirectoryContentsByPath(dir)
	if err != nil {
		return errors.Wrap(err, "unable to list staging directory")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "unable to remove stale staged record %q", entry.Name())
		}
	}
	return nil
}
