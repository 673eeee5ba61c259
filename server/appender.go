package server

import (
	"sort"
	"time"

	"github.com/1008610010/copycat/copycatpb"
)

// appendFuture completes once its index has committed (or the leader has
// stepped down / a fatal error occurs).
//
// (spec.md §4.7: "appendEntries(index) returns a future that completes
// when index ≤ commitIndex and the leader has not stepped down")
type appendFuture struct {
	index uint64
	done  chan struct{}
	err   *copycatpb.Error
}

func newAppendFuture(index uint64) *appendFuture {
	return &appendFuture{index: index, done: make(chan struct{})}
}

// Wait blocks until the future completes.
func (f *appendFuture) Wait() *copycatpb.Error {
	<-f.done
	return f.err
}

func (f *appendFuture) complete(err *copycatpb.Error) {
	select {
	case <-f.done:
		return // already completed
	default:
	}
	f.err = err
	close(f.done)
}

// appender is the Leader Appender of spec.md §4.7: it drives replication
// to every follower/passive member and computes the quorum commit index.
//
// (grounded on raft/raft_step_leader.go's per-follower iteration and
// raft.Progress bookkeeping, restructured around spec.md's explicit
// {nextIndex, matchIndex, lastAttemptTime, failureCount} record and
// median-matchIndex commit rule instead of the teacher's in-flight-window
// flow control)
type appender struct {
	srv *Server

	progress map[uint64]*progress

	// pending holds futures for appends not yet known to be committed,
	// keyed by the index they wait on.
	pending map[uint64][]*appendFuture
}

func newAppender(srv *Server) *appender {
	a := &appender{srv: srv, progress: make(map[uint64]*progress), pending: make(map[uint64][]*appendFuture)}
	for _, m := range srv.cluster.Configuration().ActiveMembers() {
		if m.ID == srv.id {
			continue
		}
		a.progress[m.ID] = newProgress(m.ID, srv.log.LastIndex()+1)
	}
	for _, m := range srv.cluster.Configuration().PassiveMembers() {
		a.progress[m.ID] = newProgress(m.ID, srv.log.LastIndex()+1)
	}
	return a
}

// appendEntries registers a future that completes once index commits.
func (a *appender) appendEntries(index uint64) *appendFuture {
	f := newAppendFuture(index)
	if index <= a.srv.commitIndex {
		f.complete(nil)
		return f
	}
	a.pending[index] = append(a.pending[index], f)
	return f
}

// tick drives one append cycle: every follower due for another attempt
// gets an AppendRequest sized to the current log.
func (a *appender) tick(now time.Time) {
	cfg := a.srv.cluster.Configuration()
	for _, m := range append(cfg.ActiveMembers(), cfg.PassiveMembers()...) {
		if m.ID == a.srv.id {
			continue
		}
		p, ok := a.progress[m.ID]
		if !ok {
			p = newProgress(m.ID, a.srv.log.LastIndex()+1)
			a.progress[m.ID] = p
		}
		if !p.dueFor(now, a.srv.config.HeartbeatInterval) {
			continue
		}
		a.sendTo(m, p, now)
	}
}

// sendTo dispatches one AppendRequest on a background goroutine and feeds
// the outcome back through the command queue, so the network round trip
// never blocks the dispatch loop.
//
// (grounded on rafthttp's async stream-writer/pipeline split from raft's
// single-threaded core: the loop only ever decides what to send and reacts
// to what came back, never blocks on the wire)
func (a *appender) sendTo(m copycatpb.Member, p *progress, now time.Time) {
	p.recordAttempt(now)

	prevIndex := p.nextIndex - 1
	prevTerm, _ := a.srv.log.Term(prevIndex)

	const maxBatch = 256
	entries := a.srv.log.Entries(p.nextIndex, maxBatch)

	req := copycatpb.AppendRequest{
		Term:        a.srv.currentTerm,
		Leader:      a.srv.id,
		LogIndex:    prevIndex,
		LogTerm:     prevTerm,
		Entries:     entries,
		CommitIndex: a.srv.commitIndex,
	}

	srv := a.srv
	go func() {
		resp, err := srv.transport.SendAppend(m.ServerAddress, req)
		srv.submit(&appendResultCmd{member: m, req: req, resp: resp, err: err})
	}()
}

func (a *appender) onResponse(m copycatpb.Member, p *progress, req copycatpb.AppendRequest, resp copycatpb.AppendResponse) {
	if resp.Term > a.srv.currentTerm {
		a.srv.stepDown(resp.Term)
		return
	}

	if !resp.Succeeded {
		p.recordFailure(resp.LogIndex)
		a.onFailure(m, p)
		return
	}

	lastSent := req.LogIndex + uint64(len(req.Entries))
	p.recordSuccess(lastSent, time.Now())
	a.srv.cluster.MarkAvailable(m.ID)

	a.recomputeCommitIndex()
}

func (a *appender) onFailure(m copycatpb.Member, p *progress) {
	if p.failureCount >= a.srv.config.UnavailableAfterFailures {
		a.srv.cluster.MarkUnavailable(m.ID)
	}
}

// recomputeCommitIndex advances the leader's commitIndex to the median
// matchIndex among active members, restricted to entries from the current
// term, per Raft §5.4.2.
//
// (spec.md §4.7: "recompute the quorum commit index as the median
// matchIndex of active members ... and if it advances, signal all waiting
// appenders")
func (a *appender) recomputeCommitIndex() {
	active := a.srv.cluster.Configuration().ActiveMembers()

	matches := make([]uint64, 0, len(active))
	for _, m := range active {
		if m.ID == a.srv.id {
			matches = append(matches, a.srv.log.LastIndex())
			continue
		}
		if p, ok := a.progress[m.ID]; ok {
			matches = append(matches, p.matchIndex)
		} else {
			matches = append(matches, 0)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })

	// matches is ascending; the index held by at least quorumSize() members
	// is the one quorumSize()-1 slots from the end, not the middle element
	// (the middle element is only a majority for odd-sized active sets).
	quorumMatch := matches[len(matches)-a.srv.quorumSize()]
	if quorumMatch <= a.srv.commitIndex {
		return
	}
	if term, ok := a.srv.log.Term(quorumMatch); !ok || term != a.srv.currentTerm {
		return
	}

	a.srv.commitIndex = quorumMatch
	a.srv.log.Commit(quorumMatch)
	a.srv.applyCommitted()
	a.signal(quorumMatch)
}

func (a *appender) signal(commitIndex uint64) {
	for index, futures := range a.pending {
		if index > commitIndex {
			continue
		}
		for _, f := range futures {
			f.complete(nil)
		}
		delete(a.pending, index)
	}
}

// failAll completes every outstanding future with an error, used when the
// leader steps down.
//
// (spec.md §4.7: "If the leader observes a higher term in any response, it
// steps down to Follower and fails all outstanding futures")
func (a *appender) failAll(err *copycatpb.Error) {
	for index, futures := range a.pending {
		for _, f := range futures {
			f.complete(err)
		}
		delete(a.pending, index)
	}
}
