// Package log implements the append-only, segmented, compactible log of
// spec.md §3–4.1: a dense sequence of Entry values partitioned across
// bounded segment files, each with its own binary-searchable offset index.
package log

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/xlog"
	"github.com/hashicorp/go-multierror"
)

var logger = xlog.NewLogger("log")

// Options configures a Log's segment sizing and storage tier.
//
// (raft.Config / raft/raft_config.go: struct + WithDefaults + validate)
type Options struct {
	Dir  string
	Name string

	MaxEntriesPerSegment uint64
	MaxSegmentBytes      int64
}

// WithDefaults fills in zero-valued fields with spec.md §6 defaults.
func (o Options) WithDefaults() Options {
	if o.MaxEntriesPerSegment == 0 {
		o.MaxEntriesPerSegment = 1 << 20
	}
	if o.MaxSegmentBytes == 0 {
		o.MaxSegmentBytes = 64 * 1024 * 1024
	}
	return o
}

func (o Options) validate() error {
	if o.Dir == "" {
		return fmt.Errorf("log: directory must not be empty")
	}
	if o.Name == "" {
		return fmt.Errorf("log: name must not be empty")
	}
	return nil
}

// Log is a single replica's append-only, segmented entry sequence.
//
// Lock discipline matches spec.md §4.1: the writer half (Append/Skip/
// Truncate/Compact) takes an exclusive lock; Get and reader cursors take a
// shared lock that blocks truncation but allows concurrent reads.
type Log struct {
	mu sync.RWMutex

	opt Options

	segments []*segment // sorted by baseIndex ascending

	firstIndex  uint64
	lastIndex   uint64
	commitIndex uint64

	nextSegmentID uint64
}

var segmentFileRE = regexp.MustCompile(`^(.+)-([0-9a-f]{16})-([0-9a-f]{16})\.log$`)

// Open opens or creates a Log rooted at opt.Dir, replaying any existing
// segment files it finds.
func Open(opt Options) (*Log, error) {
	opt = opt.WithDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opt.Dir, 0o750); err != nil {
		return nil, err
	}

	l := &Log{opt: opt, firstIndex: 1, lastIndex: 0}

	names, err := os.ReadDir(opt.Dir)
	if err != nil {
		return nil, err
	}

	type found struct {
		id, version uint64
	}
	var segs []found
	for _, ent := range names {
		m := segmentFileRE.FindStringSubmatch(ent.Name())
		if m == nil || m[1] != opt.Name {
			continue
		}
		id, _ := strconv.ParseUint(m[2], 16, 64)
		version, _ := strconv.ParseUint(m[3], 16, 64)
		segs = append(segs, found{id, version})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })

	// keep only the highest version found per segment id
	byID := map[uint64]uint64{}
	for _, s := range segs {
		if v, ok := byID[s.id]; !ok || s.version > v {
			byID[s.id] = s.version
		}
	}

	var ids []uint64
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	baseIndex := uint64(1)
	for _, id := range ids {
		version := byID[id]
		seg, err := openSegment(opt.Dir, opt.Name, id, version, baseIndex, opt.MaxEntriesPerSegment, opt.MaxSegmentBytes)
		if err != nil {
			return nil, err
		}
		l.segments = append(l.segments, seg)
		baseIndex = seg.lastIndex() + 1
		l.nextSegmentID = id + 1
	}

	if len(l.segments) > 0 {
		last := l.segments[len(l.segments)-1]
		l.firstIndex = l.segments[0].baseIndex
		l.lastIndex = last.lastIndex()
	}

	logger.Infof("log %q opened [dir=%s firstIndex=%d lastIndex=%d segments=%d]", opt.Name, opt.Dir, l.firstIndex, l.lastIndex, len(l.segments))
	return l, nil
}

func (l *Log) newSegmentLocked() error {
	seg, err := createSegment(l.opt.Dir, l.opt.Name, l.nextSegmentID, l.lastIndex+1, l.opt.MaxEntriesPerSegment, l.opt.MaxSegmentBytes)
	if err != nil {
		return err
	}
	l.nextSegmentID++
	l.segments = append(l.segments, seg)
	return nil
}

// FirstIndex returns the lowest index still present in the log.
func (l *Log) FirstIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.firstIndex
}

// LastIndex returns the highest appended index.
func (l *Log) LastIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastIndex
}

// CommitIndex returns the highest index the log has been told is committed.
func (l *Log) CommitIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.commitIndex
}

// Append assigns dense, increasing indices to entries and appends them,
// opening a new segment whenever the active one is full.
//
// (spec.md §4.1: "atomic; returns index = previous lastIndex + 1")
func (l *Log) Append(term uint64, entries ...copycatpb.Entry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(entries) == 0 {
		return l.lastIndex, nil
	}

	if len(l.segments) == 0 || l.segments[len(l.segments)-1].full() {
		if err := l.newSegmentLocked(); err != nil {
			return 0, err
		}
	}

	firstAppended := l.lastIndex + 1
	for i := range entries {
		active := l.segments[len(l.segments)-1]
		if active.full() {
			if err := l.newSegmentLocked(); err != nil {
				return 0, err
			}
			active = l.segments[len(l.segments)-1]
		}

		entries[i].Index = l.lastIndex + 1
		entries[i].Term = term
		if err := active.append(entries[i]); err != nil {
			return 0, err
		}
		l.lastIndex++
	}

	if err := l.segments[len(l.segments)-1].sync(); err != nil {
		return 0, err
	}

	return firstAppended, nil
}

// Skip reserves n indices without writing entries, used when a follower
// needs to fill a gap with placeholders ahead of receiving the real
// entries (spec.md §4.1).
func (l *Log) Skip(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastIndex += n
}

func (l *Log) findSegmentLocked(index uint64) (*segment, uint32, bool) {
	i := sort.Search(len(l.segments), func(i int) bool { return l.segments[i].lastIndex() >= index })
	if i == len(l.segments) || l.segments[i].baseIndex > index {
		return nil, 0, false
	}
	return l.segments[i], uint32(index - l.segments[i].baseIndex), true
}

// Get returns the entry at index, or (Entry{}, false) if it has been
// compacted away or does not exist yet.
func (l *Log) Get(index uint64) (copycatpb.Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index < l.firstIndex || index > l.lastIndex {
		return copycatpb.Entry{}, false
	}
	seg, offset, ok := l.findSegmentLocked(index)
	if !ok {
		return copycatpb.Entry{}, false
	}
	committed := index <= l.commitIndex
	entry, err := seg.get(offset, committed)
	if err != nil {
		logger.Warningf("log %q failed to read index %d (%v)", l.opt.Name, index, err)
		return copycatpb.Entry{}, false
	}
	return entry, true
}

// Term returns the term of the entry at index, following the same
// availability rules as Get.
func (l *Log) Term(index uint64) (uint64, bool) {
	e, ok := l.Get(index)
	if !ok {
		return 0, false
	}
	return e.Term, true
}

// Entries returns up to maxCount entries starting at (and including) from.
func (l *Log) Entries(from uint64, maxCount uint64) []copycatpb.Entry {
	l.mu.RLock()
	last := l.lastIndex
	l.mu.RUnlock()

	var out []copycatpb.Entry
	for idx := from; idx <= last && uint64(len(out)) < maxCount; idx++ {
		e, ok := l.Get(idx)
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

// Truncate removes every entry with index > index. It fails with
// ErrTruncateCommitted if index < commitIndex, i.e. if a committed entry
// would be removed (spec.md §4.1).
func (l *Log) Truncate(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < l.commitIndex {
		return ErrTruncateCommitted
	}
	if index >= l.lastIndex {
		return nil
	}

	// drop whole segments that start after index, truncate the one segment
	// that straddles it.
	var kept []*segment
	var toRemove []*segment
	for _, seg := range l.segments {
		if seg.baseIndex > index {
			toRemove = append(toRemove, seg)
			continue
		}
		if seg.lastIndex() > index {
			if err := seg.truncateSuffix(uint32(index - seg.baseIndex + 1)); err != nil {
				return err
			}
		}
		kept = append(kept, seg)
	}

	var merr *multierror.Error
	for _, seg := range toRemove {
		if err := seg.remove(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	l.segments = kept
	l.lastIndex = index
	return merr.ErrorOrNil()
}

// Compact deletes every entry (and every segment made wholly empty by that
// deletion) with index < index, advancing firstIndex.
//
// (spec.md §4.1)
func (l *Log) Compact(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index <= l.firstIndex {
		return nil
	}
	if index > l.commitIndex {
		index = l.commitIndex
	}

	var merr *multierror.Error
	var kept []*segment
	for _, seg := range l.segments {
		switch {
		case seg.lastIndex() < index:
			// entirely compacted away
			if err := seg.remove(); err != nil {
				merr = multierror.Append(merr, err)
			}
		case seg.baseIndex >= index:
			kept = append(kept, seg)
		default:
			keepOffset := uint32(index - seg.baseIndex)
			newSeg, err := seg.rewriteFrom(keepOffset)
			if err != nil {
				merr = multierror.Append(merr, err)
				kept = append(kept, seg)
				continue
			}
			if err := seg.remove(); err != nil {
				merr = multierror.Append(merr, err)
			}
			kept = append(kept, newSeg)
		}
	}

	l.segments = kept
	l.firstIndex = index
	return merr.ErrorOrNil()
}

// Commit records the highest index that must never be truncated. It is
// advisory bookkeeping only; Commit never itself touches disk beyond this
// in-memory watermark.
func (l *Log) Commit(index uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index > l.commitIndex {
		l.commitIndex = index
	}
}

// Close flushes and releases every open segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var merr *multierror.Error
	for _, seg := range l.segments {
		if err := seg.close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// Dir reports the log's storage directory (used by snapshot/server wiring
// that colocate files under one server directory).
func (l *Log) Dir() string { return l.opt.Dir }
