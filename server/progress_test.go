package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProgressDueForRespectsHeartbeatInterval(t *testing.T) {
	p := newProgress(1, 1)
	now := time.Now()

	require.True(t, p.dueFor(now, 10*time.Millisecond))

	p.recordAttempt(now)
	require.False(t, p.dueFor(now.Add(5*time.Millisecond), 10*time.Millisecond))
	require.True(t, p.dueFor(now.Add(10*time.Millisecond), 10*time.Millisecond))
}

func TestProgressRecordSuccessAdvancesMatchAndNext(t *testing.T) {
	p := newProgress(1, 1)
	p.recordFailure(3) // simulate a prior failed probe bumping failureCount
	require.Equal(t, 1, p.failureCount)

	p.recordSuccess(5, time.Now())
	require.Equal(t, uint64(5), p.matchIndex)
	require.Equal(t, uint64(6), p.nextIndex)
	require.Equal(t, 0, p.failureCount)
}

func TestProgressRecordFailureRewindsNextIndex(t *testing.T) {
	p := newProgress(1, 10)
	p.recordFailure(4)
	require.Equal(t, uint64(5), p.nextIndex)
	require.Equal(t, 1, p.failureCount)

	p.recordFailure(2)
	require.Equal(t, uint64(3), p.nextIndex)
	require.Equal(t, 2, p.failureCount)
}
