// Package replicateddir fans a single logical key-value namespace out across
// multiple independently encrypted replicas, each free to live on a
// different filesystem or removable volume. Replicas are ranked by
// freshness at open and kept in sync by read-repair and an explicit
// reconciliation pass; a quorum of replicas is never required; any single
// surviving replica is enough to serve reads.
//
// Grounded on
// original_source/src/file_manipulation/directory_handler_with_replication.py.
package replicateddir

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/sealedbox/vaultcore/pkg/logging"
	"github.com/sealedbox/vaultcore/pkg/random"
	"github.com/sealedbox/vaultcore/pkg/vault/cipher"
	"github.com/sealedbox/vaultcore/pkg/vault/encrypteddir"
	"github.com/sealedbox/vaultcore/pkg/vault/handleid"
	"github.com/sealedbox/vaultcore/pkg/vault/plaindir"
	"github.com/sealedbox/vaultcore/pkg/vault/vaulterrors"
)

// ReplicaIDRecordName is the metadata record each replica uses to store its
// identity. It is stored unencrypted since it's needed to derive the
// replica's own key.
const ReplicaIDRecordName = "replica_id"

var replicatedLogger = logging.RootLogger.Sublogger("vault/replicateddir")

// Directory fans a logical directory out across one or more on-disk
// replicas. Replicas are sorted by freshness (most recently modified first)
// once, at construction, and that order is used for read-first-good and as
// the authority during reconciliation.
type Directory struct {
	lock     sync.Mutex
	paths    []string
	replicas []*encrypteddir.Directory
}

// New opens (creating if necessary) a replica at each of paths, deriving
// each replica's key from logicalKey and that replica's persistent
// identity, then runs cleanup and reconciliation before returning.
func New(paths []string, logicalKey [cipher.KeySize]byte) (*Directory, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one replica path is required")
	}

	id, err := handleid.New(handleid.PrefixReplica)
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate correlation identifier")
	}
	opLogger := replicatedLogger.Correlated(id)
	opLogger.Debugf("opening %d replica(s)", len(paths))

	replicas := make([]*encrypteddir.Directory, 0, len(paths))
	closeOpened := func() {
		for _, replica := range replicas {
			replica.Close()
		}
	}

	for _, path := range paths {
		id, err := replicaIdentity(path)
		if err != nil {
			closeOpened()
			return nil, errors.Wrapf(err, "unable to establish replica identity at %q", path)
		}

		replica, err := encrypteddir.Open(path, deriveKey(logicalKey, id))
		if err != nil {
			closeOpened()
			return nil, errors.Wrapf(err, "unable to open replica at %q", path)
		}
		replicas = append(replicas, replica)
	}

	sort.SliceStable(replicas, func(i, j int) bool {
		return replicas[i].Modified().After(replicas[j].Modified())
	})

	d := &Directory{paths: append([]string(nil), paths...), replicas: replicas}

	if err := d.Cleanup(); err != nil {
		closeOpened()
		return nil, errors.Wrap(err, "unable to clean up replicas")
	}
	if err := d.Recover(); err != nil {
		closeOpened()
		return nil, errors.Wrap(err, "unable to reconcile replicas")
	}

	opLogger.Debugf("%d replica(s) ready", len(paths))
	return d, nil
}

// Close releases the advisory lock held by every replica. Callers should
// stop using the Directory after calling Close.
func (d *Directory) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	var firstErr error
	for i, replica := range d.replicas {
		if err := replica.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "unable to close replica %d", i)
		}
	}
	return firstErr
}

// Directories returns the configured replica paths, in the order they were
// supplied to New (not freshness order).
func (d *Directory) Directories() []string {
	return append([]string(nil), d.paths...)
}

// Modified returns the freshest replica's last-modified timestamp.
func (d *Directory) Modified() time.Time {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.replicas[0].Modified()
}

// Exists returns whether name is known to the freshest replica.
func (d *Directory) Exists(name string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.replicas[0].Exists(name)
}

// AllNames returns the freshest replica's record names.
func (d *Directory) AllNames() map[string]struct{} {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.replicas[0].AllNames()
}

// Search performs fuzzy name search against the freshest replica.
func (d *Directory) Search(target string, n int) []string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.replicas[0].Search(target, n)
}

// Write stores data under name on every replica.
func (d *Directory) Write(name string, data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	for i, replica := range d.replicas {
		if err := replica.Write(name, data); err != nil {
			return errors.Wrapf(err, "unable to write to replica %d", i)
		}
	}
	return nil
}

// Read returns the record at name from the first replica (in freshness
// order) that holds a readable, hash-verified copy. Any replica skipped
// along the way because its copy was missing or failed verification is
// repaired in place with the good data before Read returns.
func (d *Directory) Read(name string) ([]byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	var data []byte
	var problematic []int
	for i, replica := range d.replicas {
		value, err := replica.Read(name)
		if err != nil {
			problematic = append(problematic, i)
			continue
		}
		data = value
		break
	}

	if data == nil {
		return nil, errors.Wrapf(vaulterrors.ErrNotFound, "record %q not found or unreadable on any replica", name)
	}

	for _, i := range problematic {
		if err := d.replicas[i].Write(name, data); err != nil {
			replicatedLogger.Warnf("unable to repair replica %d for record %q: %v", i, name, err)
		}
	}

	return data, nil
}

// Delete removes name from every replica that has it, ignoring replicas
// that don't.
func (d *Directory) Delete(name string) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	for i, replica := range d.replicas {
		if err := replica.Delete(name); err != nil {
			if errors.Is(err, vaulterrors.ErrNotFound) {
				continue
			}
			return errors.Wrapf(err, "unable to delete from replica %d", i)
		}
	}
	return nil
}

// Cleanup reconciles records and digests on every replica.
func (d *Directory) Cleanup() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	for i, replica := range d.replicas {
		if err := replica.Cleanup(); err != nil {
			return errors.Wrapf(err, "unable to clean up replica %d", i)
		}
	}
	return nil
}

// Recover reconciles replicas that have drifted apart: a record missing
// from some replicas is copied in from the freshest replica that has it,
// and a record whose digest disagrees with the freshest replica's is
// overwritten with the freshest replica's data.
func (d *Directory) Recover() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	id, err := handleid.New(handleid.PrefixRecovery)
	if err != nil {
		return errors.Wrap(err, "unable to generate correlation identifier")
	}
	opLogger := replicatedLogger.Correlated(id)

	holders := map[string][]int{}
	for i, replica := range d.replicas {
		for name := range replica.AllNames() {
			holders[name] = append(holders[name], i)
		}
	}

	for name, indices := range holders {
		var referenceData []byte
		haveReferenceData := false

		if len(indices) != len(d.replicas) {
			data, err := d.replicas[indices[0]].Read(name)
			if err != nil {
				return errors.Wrapf(err, "unable to read reference copy of %q from replica %d", name, indices[0])
			}
			referenceData, haveReferenceData = data, true

			present := make(map[int]struct{}, len(indices))
			for _, idx := range indices {
				present[idx] = struct{}{}
			}
			for i := range d.replicas {
				if _, ok := present[i]; ok {
					continue
				}
				opLogger.Debugf("filling in missing replica %d for %q", i, name)
				if err := d.replicas[i].Write(name, referenceData); err != nil {
					return errors.Wrapf(err, "unable to fill in missing replica %d for %q", i, name)
				}
			}
		}

		referenceHash, err := d.replicas[indices[0]].GetFileHash(name)
		if err != nil {
			return errors.Wrapf(err, "unable to read digest of %q from replica %d", name, indices[0])
		}

		for i := 1; i < len(d.replicas); i++ {
			hash, err := d.replicas[i].GetFileHash(name)
			if err != nil {
				return errors.Wrapf(err, "unable to read digest of %q from replica %d", name, i)
			}
			if bytes.Equal(hash, referenceHash) {
				continue
			}
			if !haveReferenceData {
				data, err := d.replicas[0].Read(name)
				if err != nil {
					return errors.Wrapf(err, "unable to read authoritative copy of %q from replica 0", name)
				}
				referenceData, haveReferenceData = data, true
			}
			opLogger.Debugf("repairing divergent replica %d for %q", i, name)
			if err := d.replicas[i].Write(name, referenceData); err != nil {
				return errors.Wrapf(err, "unable to repair divergent replica %d for %q", i, name)
			}
		}
	}

	return nil
}

// ChangeKey re-derives and rotates the key on every replica, re-reading (or
// generating) each replica's identity in case it was somehow lost since
// New.
func (d *Directory) ChangeKey(newLogicalKey [cipher.KeySize]byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	correlation, err := handleid.New(handleid.PrefixRotation)
	if err != nil {
		return errors.Wrap(err, "unable to generate correlation identifier")
	}
	replicatedLogger.Correlated(correlation).Debugf("rotating key across %d replica(s)", len(d.replicas))

	for i, replica := range d.replicas {
		id, err := replica.ReadMetadata(ReplicaIDRecordName)
		if err != nil {
			return errors.Wrapf(err, "unable to read identity of replica %d", i)
		}
		if id == nil {
			id, err = random.New(random.CollisionResistantLength)
			if err != nil {
				return errors.Wrapf(err, "unable to generate identity for replica %d", i)
			}
			if err := replica.WriteMetadata(ReplicaIDRecordName, id); err != nil {
				return errors.Wrapf(err, "unable to persist identity for replica %d", i)
			}
		}

		if err := replica.ChangeKey(deriveKey(newLogicalKey, id)); err != nil {
			return errors.Wrapf(err, "unable to rotate key on replica %d", i)
		}
	}
	return nil
}

// replicaIdentity returns the persistent identity of the replica rooted at
// path, generating and persisting one (in plaintext, alongside but
// independent from any encrypted record) if none exists yet.
func replicaIdentity(path string) ([]byte, error) {
	bare, err := plaindir.Open(path)
	if err != nil {
		return nil, err
	}

	id, err := bare.ReadMetadata(ReplicaIDRecordName)
	if err != nil {
		return nil, err
	}
	if id != nil {
		return id, nil
	}

	id, err = random.New(random.CollisionResistantLength)
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate replica identity")
	}
	if err := bare.WriteMetadata(ReplicaIDRecordName, id); err != nil {
		return nil, errors.Wrap(err, "unable to persist replica identity")
	}
	return id, nil
}

// deriveKey computes a replica's per-replica key as SHA-256(logicalKey ||
// replicaID), so that compromising one replica's on-disk key never exposes
// the others.
func deriveKey(logicalKey [cipher.KeySize]byte, replicaID []byte) [cipher.KeySize]byte {
	h := sha256.New()
	h.Write(logicalKey[:])
	h.Write(replicaID)
	var derived [cipher.KeySize]byte
	copy(derived[:], h.Sum(nil))
	return derived
}
