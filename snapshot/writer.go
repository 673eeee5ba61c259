package snapshot

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/1008610010/copycat/pkg/fileutil"
)

// Writer accumulates snapshot bytes for one (id, index) pair and carries it
// through the temporary → persisted → complete lifecycle of spec.md §4.2.
//
// (grounded on raftsnap.Snapshotter.SaveDB's temp-file-then-rename pattern,
// split into two explicit rename steps instead of one to expose the
// persisted-but-not-yet-complete state spec.md names)
type Writer struct {
	mu sync.Mutex

	store *Store
	id    uint64
	index uint64

	f    *os.File
	path string // current file path; changes as the writer advances stages

	persisted bool
	complete  bool
}

// Write appends to the snapshot's temporary file.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Write(p)
}

// Persist flushes the snapshot durably to disk and renames it out of the
// temporary namespace, but does not yet make it visible to readers.
//
// (spec.md §4.2: "persist() flushes durably")
func (w *Writer) Persist() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.persisted {
		return ErrAlreadyPersisted
	}

	if err := fileutil.Fsync(w.f); err != nil {
		return err
	}
	if err := w.f.Close(); err != nil {
		return err
	}

	persistedPath := filepath.Join(w.store.dir, persistedFileName(w.id, w.index))
	if err := os.Rename(w.path, persistedPath); err != nil {
		return err
	}
	w.path = persistedPath
	w.persisted = true
	return nil
}

// Complete atomically promotes the persisted file to the id's canonical
// filename, removes prior persisted-but-not-completed files for the same
// id, and records the snapshot in the store's catalog. Complete may only
// be called after Persist.
//
// (spec.md §4.2: "complete() atomically promotes the persisted file to the
// canonical filename and removes prior snapshots for the same id")
func (w *Writer) Complete() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.persisted {
		return ErrNotPersisted
	}
	if w.complete {
		return ErrAlreadyComplete
	}

	canonicalPath := filepath.Join(w.store.dir, canonicalFileName(w.id))
	if err := os.Rename(w.path, canonicalPath); err != nil {
		return err
	}

	if err := w.store.recordComplete(w.id, w.index); err != nil {
		return err
	}
	if err := w.store.Prune(w.id, w.index); err != nil {
		logger.Warningf("failed to prune stale snapshots for id %d: %v", w.id, err)
	}

	w.path = canonicalPath
	w.complete = true
	logger.Infof("completed snapshot [id=%d index=%d]", w.id, w.index)
	return nil
}

// ID returns the state machine id this writer's snapshot covers.
func (w *Writer) ID() uint64 { return w.id }

// Index returns the log index this snapshot reflects.
func (w *Writer) Index() uint64 { return w.index }

// Discard removes the writer's temporary or persisted file without
// completing it, used when a write fails partway through.
//
// (spec.md §5: "Snapshot write failures discard the temporary snapshot and
// retry at the next interval")
func (w *Writer) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.complete {
		w.f.Close()
		if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
