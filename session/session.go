// Package session implements the per-client Session and Session Manager of
// spec.md §4.4: registration, command deduplication, batched keep-alive
// updates, event delivery, connection binding, and deterministic
// apply-time expiration.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/1008610010/copycat/copycatpb"
)

// State is a Session's lifecycle stage.
type State uint8

const (
	StateOpen State = iota
	StateExpired
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateExpired:
		return "EXPIRED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Result is the cached outcome of a previously-applied command, keyed by
// its sequence number so a retransmitted request can be answered without
// re-invoking the user state machine.
type Result struct {
	Sequence uint64
	Payload  []byte
	Err      *copycatpb.Error
}

// Event is a state-machine-published event awaiting delivery to the
// client, ordered by EventIndex.
type Event struct {
	Index   uint64
	Payload []byte
}

// Session is a single client's registration with the replicated state
// machine. Its id equals the log index of its OpenSession entry, which
// makes session ids globally unique and monotonically increasing with no
// separate id generator needed.
//
// (spec.md §3 data model; grounded on rsm/doc.go's description of
// etcdserver's per-request dedup path, generalized to carry both a
// sequence gate and a result cache)
type Session struct {
	ID   uint64
	Name string
	Type copycatpb.SessionType

	Timeout int64 // milliseconds

	mu sync.Mutex

	timestamp       int64
	commandSequence uint64
	eventIndex      uint64
	lastApplied     uint64
	lastCompleted   uint64
	state           State
	boundConnection string

	pendingResults map[uint64]Result
	pendingEvents  []Event

	// requestSequence gates admission of new commands. It is read from the
	// leader's request-handling context concurrently with the executor
	// context mutating the rest of the session, so it is kept as its own
	// atomic field rather than under mu.
	//
	// (spec.md §5: "the leader's requestSequence check reads the session
	// across contexts and therefore uses an atomic compare-and-set
	// (setRequestSequence(n) succeeds iff n > current)")
	requestSequence atomic.Uint64
}

// New creates an open Session with id set to the log index of its
// OpenSession entry.
//
// (spec.md §4.4: "Registering a session creates a Session with id = log
// index of OpenSession and resets its sequence counters")
func New(id uint64, name string, typ copycatpb.SessionType, timeout, timestamp int64) *Session {
	return &Session{
		ID:             id,
		Name:           name,
		Type:           typ,
		Timeout:        timeout,
		timestamp:      timestamp,
		state:          StateOpen,
		pendingResults: make(map[uint64]Result),
	}
}

// SetRequestSequence attempts to advance the session's admission gate to n,
// succeeding only if n is strictly greater than the current value.
func (s *Session) SetRequestSequence(n uint64) bool {
	for {
		cur := s.requestSequence.Load()
		if n <= cur {
			return false
		}
		if s.requestSequence.CompareAndSwap(cur, n) {
			return true
		}
	}
}

// RequestSequence returns the current admission-gate value.
func (s *Session) RequestSequence() uint64 {
	return s.requestSequence.Load()
}

// State returns the session's current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Timestamp returns the timestamp of the last entry that touched this
// session (KeepAlive, Command, or OpenSession).
func (s *Session) Timestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timestamp
}

// CommandSequence returns the session's acknowledged command sequence
// high-water mark.
func (s *Session) CommandSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandSequence
}

// EventIndex returns the session's acknowledged event index high-water
// mark.
func (s *Session) EventIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventIndex
}

// LastApplied returns the highest log index applied on behalf of this
// session.
func (s *Session) LastApplied() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastApplied
}

// LastCompleted returns the highest log index through which every
// outstanding event has been acknowledged by the client.
func (s *Session) LastCompleted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCompleted
}

// BoundConnection returns the connection id this session is currently
// bound to, or "" if none.
func (s *Session) BoundConnection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundConnection
}

// Bind rebinds the session to a new connection, last-writer-wins.
//
// (spec.md §4.4: "A session is bound at most to one connection; a new
// Connect request rebinds it"; SPEC_FULL.md Open Question decision #3)
func (s *Session) Bind(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundConnection = connectionID
}

// CacheResult stores the outcome of applying sequence, for later replay if
// the client retransmits. Only ever called from the executor context.
func (s *Session) CacheResult(sequence uint64, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingResults[sequence] = result
}

// CachedResult returns the cached outcome for sequence, if any.
//
// (spec.md §4.4: "On apply, the executor consults the session's
// pendingResults by sequence: a hit returns the cached result without
// re-invoking the user state machine")
func (s *Session) CachedResult(sequence uint64) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.pendingResults[sequence]
	return r, ok
}

// RecordApply sets lastApplied to index and the session's timestamp to ts,
// called whenever a Command issued by this session is applied.
func (s *Session) RecordApply(index uint64, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index > s.lastApplied {
		s.lastApplied = index
	}
	s.timestamp = ts
}

// PublishEvent appends an event to the session's pending queue, to be
// delivered to the client on its next response.
func (s *Session) PublishEvent(index uint64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingEvents = append(s.pendingEvents, Event{Index: index, Payload: payload})
}

// DrainEvents returns the events still awaiting client acknowledgment,
// ordered by index, for the server to flush to this session's bound
// connection. Events are not removed here — only a KeepAlive advancing
// eventIndex acknowledges them — so the same batch is safely redelivered
// on every tick until the client acks, per spec.md §4.5's at-least-once
// event guarantee.
//
// (spec.md §3 supplemented feature: Connection PublishRequest-style event
// batching, one flush per KeepAlive-interval tick rather than one RPC per
// event)
func (s *Session) DrainEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.pendingEvents))
	copy(out, s.pendingEvents)
	return out
}

// KeepAlive applies the batched update of spec.md §4.4: it sets the
// session's timestamp, advances commandSequence (clearing cached results
// at or below it), advances eventIndex (discarding acknowledged pending
// events), advances lastCompleted to appliedIndex, or to just below the
// lowest event still pending if that is lower, and rebinds the connection.
func (s *Session) KeepAlive(appliedIndex uint64, ts int64, commandSequence, eventIndex uint64, connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timestamp = ts

	if commandSequence > s.commandSequence {
		s.commandSequence = commandSequence
	}
	for seq := range s.pendingResults {
		if seq <= s.commandSequence {
			delete(s.pendingResults, seq)
		}
	}

	if eventIndex > s.eventIndex {
		s.eventIndex = eventIndex
	}
	kept := s.pendingEvents[:0]
	for _, e := range s.pendingEvents {
		if e.Index > s.eventIndex {
			kept = append(kept, e)
		}
	}
	s.pendingEvents = kept

	completed := appliedIndex
	if len(s.pendingEvents) > 0 && s.pendingEvents[0].Index <= completed {
		completed = s.pendingEvents[0].Index - 1
	}
	if completed > s.lastCompleted {
		s.lastCompleted = completed
	}
	s.boundConnection = connectionID
}

// IsExpired reports whether the session has outlived its timeout as of
// appliedTimestamp, the timestamp carried by the log entry currently being
// applied.
//
// (spec.md §4.4: "A session expires when appliedTimestamp - session.timestamp
// > session.timeout; expiration is a deterministic function of the log and
// therefore identical on every replica")
func (s *Session) IsExpired(appliedTimestamp int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return false
	}
	return appliedTimestamp-s.timestamp > s.Timeout
}

// Expire transitions the session to EXPIRED.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateExpired
}

// Close transitions the session to CLOSED.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
