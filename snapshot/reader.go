package snapshot

import "os"

// Reader is a read-only view over a complete snapshot. Multiple readers
// may be open concurrently against the same snapshot; opening a new
// complete snapshot never blocks or invalidates existing readers, since
// Complete renames the new file over the canonical path rather than
// mutating the existing file in place; a reader that already has the old
// file open keeps reading it.
//
// (spec.md §4.2: "Readers obtain a read-only view; concurrent reads are
// allowed")
type Reader struct {
	f     *os.File
	id    uint64
	index uint64
}

// Read implements io.Reader over the snapshot's bytes.
func (r *Reader) Read(p []byte) (int, error) {
	return r.f.Read(p)
}

// ID returns the state machine id this snapshot covers.
func (r *Reader) ID() uint64 { return r.id }

// Index returns the log index this snapshot reflects.
func (r *Reader) Index() uint64 { return r.index }

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
