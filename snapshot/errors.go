package snapshot

import "errors"

var (
	// ErrNoSnapshot is returned by GetSnapshotByID when no complete
	// snapshot exists yet for the given state machine id.
	//
	// (raftsnap.ErrNoSnapshot)
	ErrNoSnapshot = errors.New("snapshot: no complete snapshot for id")

	// ErrAlreadyPersisted is returned by Writer.Persist when called twice.
	ErrAlreadyPersisted = errors.New("snapshot: writer already persisted")

	// ErrNotPersisted is returned by Writer.Complete when called before
	// Persist.
	ErrNotPersisted = errors.New("snapshot: writer not yet persisted")

	// ErrAlreadyComplete is returned by Writer.Complete when called twice.
	ErrAlreadyComplete = errors.New("snapshot: writer already complete")
)
