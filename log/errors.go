package log

import "errors"

var (
	// ErrCompacted is returned by Reader.Next when the cursor predates the
	// log's firstIndex (it has already been compacted away).
	//
	// (raft.ErrCompacted)
	ErrCompacted = errors.New("log: requested index has already been compacted")

	// ErrOutOfRange is returned by Reader.Next when no entry is available
	// at the cursor, e.g. because it is beyond the log's lastIndex.
	ErrOutOfRange = errors.New("log: requested index is out of range")

	// ErrTruncateCommitted is returned when Truncate is asked to remove an
	// index that has already been committed.
	//
	// (spec.md §4.1: "safe only on uncommitted suffix")
	ErrTruncateCommitted = errors.New("log: cannot truncate a committed index")

	// errSegmentFull describes an append that no longer fits the active
	// segment. Nothing returns it: Log.Append checks segment.full() and
	// rolls to a new segment before writing.
	errSegmentFull = errors.New("log: segment is full")
)
