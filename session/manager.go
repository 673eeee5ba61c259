package session

import (
	"sort"
	"sync"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/xlog"
)

var logger = xlog.NewLogger("session")

// Manager owns every Session on a replica and is the sole source of truth
// for command dedup, event delivery, and deterministic expiration.
//
// (grounded on rsm/doc.go's description of etcdserver's per-request dedup
// path, "assigns a unique ID to each request to ensure there is no
// duplicate request", generalized into spec.md's requestSequence +
// pendingResults gate)
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[uint64]*Session)}
}

// Register creates a new open Session with id equal to the OpenSession
// entry's log index and adds it to the manager.
//
// (spec.md §4.4: "Registering a session creates a Session with id = log
// index of OpenSession")
func (m *Manager) Register(id uint64, name string, typ copycatpb.SessionType, timeout, timestamp int64) *Session {
	s := New(id, name, typ, timeout, timestamp)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	logger.Infof("registered session [id=%d name=%q type=%s timeout=%dms]", id, name, typ, timeout)
	return s
}

// Get returns the session with id, if it exists and is not closed.
func (m *Manager) Get(id uint64) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrUnknownSession
	}
	if s.State() != StateOpen {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// KeepAlive applies a batched keep-alive update to every session named in
// the parallel slices of a KEEP_ALIVE entry, per spec.md §4.4. Sessions not
// found (already expired/closed) are silently skipped, since a client that
// raced an expiration is expected to re-register.
func (m *Manager) KeepAlive(appliedIndex uint64, ts int64, ids, commandSequences, eventIndexes []uint64, connectionIDs []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, id := range ids {
		s, ok := m.sessions[id]
		if !ok || s.State() != StateOpen {
			continue
		}
		connID := ""
		if i < len(connectionIDs) {
			connID = connectionIDs[i]
		}
		s.KeepAlive(appliedIndex, ts, commandSequences[i], eventIndexes[i], connID)
	}
}

// Close transitions a session to CLOSED and removes it from the manager.
//
// (spec.md §3: "CloseSession(session, timestamp): explicit session
// termination")
func (m *Manager) Close(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	s.Close()
	delete(m.sessions, id)
	return nil
}

// ExpireBefore deterministically expires every open session whose timeout
// has elapsed as of appliedTimestamp, removing it from the manager and
// returning the expired ids in ascending order.
//
// (spec.md §4.4: "expiration is a deterministic function of the log and
// therefore identical on every replica")
func (m *Manager) ExpireBefore(appliedTimestamp int64) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []uint64
	for id, s := range m.sessions {
		if s.IsExpired(appliedTimestamp) {
			s.Expire()
			delete(m.sessions, id)
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

// Sessions returns every currently open session.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// MinLastCompleted returns the lowest lastCompleted across every open
// session, used to decide whether a snapshot taken at a given index may be
// marked complete.
//
// (spec.md §3: snapshot completeness = "lowest session lastCompleted ≥
// snapshot index, i.e. every session has acknowledged events through the
// snapshot point")
func (m *Manager) MinLastCompleted() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	min := ^uint64(0)
	for _, s := range m.sessions {
		if lc := s.LastCompleted(); lc < min {
			min = lc
		}
	}
	if min == ^uint64(0) {
		return 0
	}
	return min
}

// SnapshotReady reports whether a snapshot taken at snapshotIndex may be
// marked complete given the current session table.
func (m *Manager) SnapshotReady(snapshotIndex uint64) bool {
	if len(m.Sessions()) == 0 {
		return true
	}
	return m.MinLastCompleted() >= snapshotIndex
}
