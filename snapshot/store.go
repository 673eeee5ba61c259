// Package snapshot implements the named, indexed snapshot store of
// spec.md §4.2: temporary → persisted → complete snapshot files, one
// canonical file per state-machine id, catalogued in a small embedded
// index so a restart can find the latest complete snapshot without
// scanning the directory.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/1008610010/copycat/xlog"
	"github.com/boltdb/bolt"
)

var logger = xlog.NewLogger("snapshot")

var catalogBucket = []byte("snapshots")

// Store manages the snapshot files for every state machine on one replica.
//
// (grounded on raftsnap.Snapshotter: a directory-scoped handle with no
// in-memory state beyond its path; the catalog is new, replacing
// raftsnap's directory-listing-by-suffix lookup with an indexed one so
// getSnapshotById does not have to scan the directory on every call)
type Store struct {
	mu      sync.Mutex
	dir     string
	catalog *bolt.DB
}

// Open opens or creates a Store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "catalog.snapcat"), 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(catalogBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{dir: dir, catalog: db}, nil
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func tmpFileName(id, index uint64) string {
	return fmt.Sprintf("%016x-%016x.snap.tmp", id, index)
}

func persistedFileName(id, index uint64) string {
	return fmt.Sprintf("%016x-%016x.snap", id, index)
}

func canonicalFileName(id uint64) string {
	return fmt.Sprintf("%016x.snap", id)
}

// CreateTemporary begins writing a new snapshot of state machine id at the
// given log index. The returned Writer is not visible to readers until
// Persist and then Complete are called on it.
//
// (spec.md §4.2: "createTemporary(id, index)")
func (s *Store) CreateTemporary(id, index uint64) (*Writer, error) {
	return s.newWriter(id, index)
}

// CreateSnapshot begins writing a snapshot received from an Install RPC
// (the install side of the same temporary/persisted/complete lifecycle).
//
// (spec.md §4.2: "createSnapshot(id, index) (install-side)")
func (s *Store) CreateSnapshot(id, index uint64) (*Writer, error) {
	return s.newWriter(id, index)
}

func (s *Store) newWriter(id, index uint64) (*Writer, error) {
	path := filepath.Join(s.dir, tmpFileName(id, index))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, err
	}
	return &Writer{
		store: s,
		id:    id,
		index: index,
		f:     f,
		path:  path,
	}, nil
}

// GetSnapshotByID returns a read-only Reader over the latest complete
// snapshot for id, or ErrNoSnapshot if none has completed yet.
//
// (spec.md §4.2: "getSnapshotById(id)")
func (s *Store) GetSnapshotByID(id uint64) (*Reader, error) {
	var index uint64
	found := false
	if err := s.catalog.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(catalogBucket).Get(idKey(id))
		if v == nil {
			return nil
		}
		index = binary.BigEndian.Uint64(v)
		found = true
		return nil
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoSnapshot
	}

	f, err := os.Open(filepath.Join(s.dir, canonicalFileName(id)))
	if err != nil {
		return nil, err
	}
	return &Reader{f: f, id: id, index: index}, nil
}

func (s *Store) recordComplete(id, index uint64) error {
	return s.catalog.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(catalogBucket).Put(idKey(id), func() []byte {
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, index)
			return b
		}())
	})
}

// Prune removes the persisted, not yet completed snapshot files for id
// (named <id>-<index>.snap) whose index is strictly below keepIndex. A
// completed snapshot lives in the single canonical file <id>.snap, which
// Complete replaces, so Prune never touches it. Compare spec.md's "Snapshots older than the current snapshotIndex
// are closed-and-deleted immediately."
func (s *Store) Prune(id, keepIndex uint64) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	prefix := fmt.Sprintf("%016x-", id)
	var stale []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".snap") {
			continue
		}
		var pid, pindex uint64
		if _, err := fmt.Sscanf(name, "%016x-%016x.snap", &pid, &pindex); err != nil {
			continue
		}
		if pindex < keepIndex {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	for _, name := range stale {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close releases the catalog handle.
func (s *Store) Close() error {
	return s.catalog.Close()
}
