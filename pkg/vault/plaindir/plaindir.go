// Package plaindir implements the bottom layer of the vault storage stack:
// untyped byte storage on a single filesystem directory, a side area for
// untyped metadata, and fuzzy name search. It knows nothing about hashing,
// encryption, or replication; those concerns are added by the layers in
// pkg/vault/hasheddir, pkg/vault/encrypteddir, and pkg/vault/replicateddir,
// each of which holds a Directory as its wrapped field.
//
// Grounded on original_source/src/file_manipulation/directory_handler.py,
// adapted to the atomic-write idiom already used elsewhere in this module
// (pkg/filesystem.WriteFileAtomic).
package plaindir

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/pkg/errors"

	"github.com/sealedbox/vaultcore/pkg/filesystem"
	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

const (
	// MetadataSubdirectory is the name of the side area used for untyped
	// metadata (replica_id, and the encrypted directory_info once wrapped by
	// higher layers).
	MetadataSubdirectory = ".metadata"

	// recordPermissions is the permission mode used for record and metadata
	// files. It is deliberately restrictive since records may hold secrets.
	recordPermissions = 0600
	// directoryPermissions is the permission mode used for directories
	// created by this package.
	directoryPermissions = 0700

	// defaultSearchCandidates is the candidate count used when callers don't
	// specify one.
	defaultSearchCandidates = 9
)

// Directory provides untyped byte storage over one filesystem directory. It
// is safe for use by a single goroutine at a time; its lock guards only the
// in-memory name set, not the files on disk.
type Directory struct {
	// path is the directory's location on disk.
	path string
	// lock guards names.
	lock sync.Mutex
	// names is the in-memory set of known record names.
	names map[string]struct{}
}

// Open creates (if necessary) and opens a plain directory at path, populating
// its in-memory name set from the files already present at the top level.
func Open(path string) (*Directory, error) {
	if err := os.MkdirAll(path, directoryPermissions); err != nil {
		return nil, errors.Wrap(err, "unable to create directory")
	}
	if err := os.MkdirAll(filepath.Join(path, MetadataSubdirectory), directoryPermissions); err != nil {
		return nil, errors.Wrap(err, "unable to create metadata subdirectory")
	}

	entries, err := filesystem.DirectoryContentsByPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list directory contents")
	}

	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names[entry.Name()] = struct{}{}
	}

	return &Directory{path: path, names: names}, nil
}

// Path returns the directory's location on disk.
func (d *Directory) Path() string {
	return d.path
}

// Exists returns whether name is a known record.
func (d *Directory) Exists(name string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	_, ok := d.names[name]
	return ok
}

// Write writes (overwriting if necessary) the record at name.
func (d *Directory) Write(name string, data []byte) error {
	if err := filesystem.WriteFileAtomic(d.recordPath(name), data, recordPermissions); err != nil {
		return errors.Wrap(err, "unable to write record")
	}

	d.lock.Lock()
	d.names[name] = struct{}{}
	d.lock.Unlock()

	return nil
}

// Read reads the record at name, failing with vaulterrors.ErrNotFound if it
// isn't known.
func (d *Directory) Read(name string) ([]byte, error) {
	if !d.Exists(name) {
		return nil, errors.Wrapf(vaulterrors.ErrNotFound, "record %q", name)
	}

	data, err := os.ReadFile(d.recordPath(name))
	if err != nil {
		return nil, errors.Wrap(err, "unable to read record")
	}

	return data, nil
}

// Delete removes the record at name, failing with vaulterrors.ErrNotFound if
// it isn't known.
func (d *Directory) Delete(name string) error {
	if !d.Exists(name) {
		return errors.Wrapf(vaulterrors.ErrNotFound, "record %q", name)
	}

	if err := os.Remove(d.recordPath(name)); err != nil {
		return errors.Wrap(err, "unable to remove record")
	}

	d.lock.Lock()
	delete(d.names, name)
	d.lock.Unlock()

	return nil
}

// AllNames returns a snapshot copy of the known record names.
func (d *Directory) AllNames() map[string]struct{} {
	d.lock.Lock()
	defer d.lock.Unlock()

	result := make(map[string]struct{}, len(d.names))
	for name := range d.names {
		result[name] = struct{}{}
	}
	return result
}

// WriteMetadata writes untyped side-area data under name.
func (d *Directory) WriteMetadata(name string, data []byte) error {
	if err := filesystem.WriteFileAtomic(d.metadataPath(name), data, recordPermissions); err != nil {
		return errors.Wrap(err, "unable to write metadata")
	}
	return nil
}

// ReadMetadata reads untyped side-area data under name, returning (nil, nil)
// if it doesn't exist (absence is not an error).
func (d *Directory) ReadMetadata(name string) ([]byte, error) {
	data, err := os.ReadFile(d.metadataPath(name))
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to read metadata")
	}
	return data, nil
}

// candidate pairs a record name with its similarity score against a search
// target.
type candidate struct {
	name  string
	score float64
}

// Search performs case-insensitive fuzzy matching of target against known
// record names, returning up to n candidates ordered by descending
// similarity. Zero-score names are dropped. Exact matches (score 100) are
// taken ahead of any candidate drawn to fill out the remainder of n; if
// there are more than n exact matches, an arbitrary n of them are returned.
func (d *Directory) Search(target string, n int) []string {
	if n <= 0 {
		n = defaultSearchCandidates
	}

	names := d.AllNames()
	scored := make([]candidate, 0, len(names))
	for name := range names {
		score := similarityRatio(target, name)
		if score == 0 {
			continue
		}
		scored = append(scored, candidate{name: name, score: score})
	}

	exact := make([]candidate, 0, len(scored))
	rest := make([]candidate, 0, len(scored))
	for _, c := range scored {
		if c.score == 100 {
			exact = append(exact, c)
		} else {
			rest = append(rest, c)
		}
	}

	sort.Slice(rest, func(i, j int) bool { return rest[i].score > rest[j].score })

	result := exact
	if len(result) > n {
		result = result[:n]
	}
	for _, c := range rest {
		if len(result) >= n {
			break
		}
		result = append(result, c)
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].score > result[j].score })

	output := make([]string, len(result))
	for i, c := range result {
		output[i] = c.name
	}
	return output
}

// similarityRatio computes a normalized Levenshtein similarity ratio in
// [0,100] between a and b, case-insensitively: 100 * (1 - distance /
// (len(a)+len(b))). Two empty strings are treated as a perfect match.
func similarityRatio(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(distance)/float64(total))
}

func (d *Directory) recordPath(name string) string {
	return filepath.Join(d.path, name)
}

func (d *Directory) metadataPath(name string) string {
	return filepath.Join(d.path, MetadataSubdirectory, name)
}
