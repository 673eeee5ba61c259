package server

import "time"

// progress is the leader's per-follower replication state.
//
// (spec.md §4.7: "Per follower keeps {nextIndex, matchIndex,
// lastAttemptTime, failureCount, lastCommitTime}"; grounded on
// raft.Progress, generalized to track wall-clock attempt/commit times
// instead of the teacher's in-flight window accounting)
type progress struct {
	memberID uint64

	nextIndex  uint64
	matchIndex uint64

	lastAttemptTime time.Time
	lastCommitTime  time.Time
	failureCount    int
}

func newProgress(memberID uint64, nextIndex uint64) *progress {
	return &progress{memberID: memberID, nextIndex: nextIndex}
}

// dueFor reports whether this follower is due for another append attempt.
func (p *progress) dueFor(now time.Time, heartbeatInterval time.Duration) bool {
	return now.Sub(p.lastAttemptTime) >= heartbeatInterval
}

func (p *progress) recordAttempt(now time.Time) {
	p.lastAttemptTime = now
}

func (p *progress) recordSuccess(lastSent uint64, now time.Time) {
	if lastSent > p.matchIndex {
		p.matchIndex = lastSent
	}
	p.nextIndex = lastSent + 1
	p.lastCommitTime = now
	p.failureCount = 0
}

func (p *progress) recordFailure(hint uint64) {
	p.nextIndex = hint + 1
	p.failureCount++
}
