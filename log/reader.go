package log

import "github.com/1008610010/copycat/copycatpb"

// Reader is a cursor over a Log that advances monotonically: Next never
// goes backwards. It does not pin entries against compaction; once the log
// is compacted past the cursor, Next reports ErrCompacted until Seek moves
// the cursor forward.
//
// (spec.md §4.1: "a single reader per call site holds a cursor (LogReader)
// that sees a consistent prefix")
type Reader struct {
	log    *Log
	cursor uint64 // next index to be returned
}

// NewReader opens a cursor positioned at fromIndex.
func (l *Log) NewReader(fromIndex uint64) *Reader {
	return &Reader{log: l, cursor: fromIndex}
}

// HasNext reports whether an entry is currently available at the cursor.
func (r *Reader) HasNext() bool {
	return r.cursor <= r.log.LastIndex()
}

// Next returns the entry at the cursor and advances it by one. It returns
// ErrOutOfRange without advancing if the entry is not available, and
// ErrCompacted if the cursor has fallen behind the log's firstIndex.
func (r *Reader) Next() (entry copycatpb.Entry, err error) {
	if r.cursor < r.log.FirstIndex() {
		return copycatpb.Entry{}, ErrCompacted
	}
	e, ok := r.log.Get(r.cursor)
	if !ok {
		return copycatpb.Entry{}, ErrOutOfRange
	}
	r.cursor++
	return e, nil
}

// Index reports the cursor's current position (the index that Next will
// return next).
func (r *Reader) Index() uint64 { return r.cursor }

// Seek repositions the cursor, e.g. after an installed snapshot advances
// the reader past a compacted range.
func (r *Reader) Seek(index uint64) { r.cursor = index }
