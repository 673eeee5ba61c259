package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetRequestSequenceMonotonic(t *testing.T) {
	s := New(1, "kv", "kv", 1000, 0)

	require.True(t, s.SetRequestSequence(1))
	require.True(t, s.SetRequestSequence(2))
	require.False(t, s.SetRequestSequence(2))
	require.False(t, s.SetRequestSequence(1))
	require.Equal(t, uint64(2), s.RequestSequence())
}

func TestCacheResultAndReplay(t *testing.T) {
	s := New(1, "kv", "kv", 1000, 0)
	s.CacheResult(5, Result{Sequence: 5, Payload: []byte("ok")})

	r, ok := s.CachedResult(5)
	require.True(t, ok)
	require.Equal(t, "ok", string(r.Payload))

	_, ok = s.CachedResult(6)
	require.False(t, ok)
}

func TestKeepAliveClearsPendingResultsAndEvents(t *testing.T) {
	s := New(1, "kv", "kv", 1000, 0)
	s.CacheResult(1, Result{Sequence: 1})
	s.CacheResult(2, Result{Sequence: 2})
	s.CacheResult(3, Result{Sequence: 3})
	s.PublishEvent(10, []byte("a"))
	s.PublishEvent(20, []byte("b"))

	s.KeepAlive(100, 5000, 2, 10, "conn-1")

	_, ok := s.CachedResult(1)
	require.False(t, ok)
	_, ok = s.CachedResult(2)
	require.False(t, ok)
	_, ok = s.CachedResult(3)
	require.True(t, ok)

	events := s.DrainEvents()
	require.Len(t, events, 1)
	require.Equal(t, uint64(20), events[0].Index)

	require.Equal(t, uint64(19), s.LastCompleted())
	require.Equal(t, "conn-1", s.BoundConnection())
	require.Equal(t, int64(5000), s.Timestamp())
}

func TestIsExpired(t *testing.T) {
	s := New(1, "kv", "kv", 1000, 0)
	require.False(t, s.IsExpired(500))
	require.False(t, s.IsExpired(1000))
	require.True(t, s.IsExpired(1001))
}

func TestManagerRegisterGetExpire(t *testing.T) {
	m := NewManager()
	s := m.Register(7, "kv", "kv", 1000, 0)
	require.Equal(t, uint64(7), s.ID)

	got, err := m.Get(7)
	require.NoError(t, err)
	require.Same(t, s, got)

	_, err = m.Get(99)
	require.ErrorIs(t, err, ErrUnknownSession)

	expired := m.ExpireBefore(2000)
	require.Equal(t, []uint64{7}, expired)

	_, err = m.Get(7)
	require.ErrorIs(t, err, ErrUnknownSession)
}

func TestManagerKeepAliveBatch(t *testing.T) {
	m := NewManager()
	m.Register(1, "a", "kv", 1000, 0)
	m.Register(2, "b", "kv", 1000, 0)

	m.KeepAlive(50, 100,
		[]uint64{1, 2},
		[]uint64{3, 4},
		[]uint64{5, 6},
		[]string{"c1", "c2"},
	)

	s1, _ := m.Get(1)
	require.Equal(t, uint64(3), s1.CommandSequence())
	s2, _ := m.Get(2)
	require.Equal(t, uint64(6), s2.EventIndex())
}

func TestSnapshotReady(t *testing.T) {
	m := NewManager()
	s1 := m.Register(1, "a", "kv", 1000, 0)
	s2 := m.Register(2, "b", "kv", 1000, 0)

	require.False(t, m.SnapshotReady(100))

	s1.KeepAlive(100, 0, 0, 0, "")
	require.False(t, m.SnapshotReady(100))

	s2.KeepAlive(100, 0, 0, 0, "")
	require.True(t, m.SnapshotReady(100))
}
