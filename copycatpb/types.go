// Package copycatpb defines the wire-level data types shared by every layer
// of the replication core: log entries, cluster membership, and the typed
// error taxonomy returned to clients. Individual field encodings are
// intentionally left to callers (log, snapshot, transport) — this package
// only fixes structure and invariants, per the project's scope.
package copycatpb

import "fmt"

// EntryType tags the variant carried by a LogEntry.
//
// (raft.raftpb.MESSAGE_TYPE enum style)
type EntryType uint8

const (
	ENTRY_TYPE_INITIALIZE EntryType = iota
	ENTRY_TYPE_CONFIGURATION
	ENTRY_TYPE_OPEN_SESSION
	ENTRY_TYPE_KEEP_ALIVE
	ENTRY_TYPE_CLOSE_SESSION
	ENTRY_TYPE_COMMAND
	ENTRY_TYPE_QUERY
	ENTRY_TYPE_METADATA
)

func (t EntryType) String() string {
	switch t {
	case ENTRY_TYPE_INITIALIZE:
		return "ENTRY_TYPE_INITIALIZE"
	case ENTRY_TYPE_CONFIGURATION:
		return "ENTRY_TYPE_CONFIGURATION"
	case ENTRY_TYPE_OPEN_SESSION:
		return "ENTRY_TYPE_OPEN_SESSION"
	case ENTRY_TYPE_KEEP_ALIVE:
		return "ENTRY_TYPE_KEEP_ALIVE"
	case ENTRY_TYPE_CLOSE_SESSION:
		return "ENTRY_TYPE_CLOSE_SESSION"
	case ENTRY_TYPE_COMMAND:
		return "ENTRY_TYPE_COMMAND"
	case ENTRY_TYPE_QUERY:
		return "ENTRY_TYPE_QUERY"
	case ENTRY_TYPE_METADATA:
		return "ENTRY_TYPE_METADATA"
	default:
		return "ENTRY_TYPE_UNKNOWN"
	}
}

// SessionType distinguishes the kind of state machine a session addresses.
// Copycat calls this the "state machine type"; here it is a caller-supplied
// name resolved against the executor's registered dispatcher.
type SessionType string

// Entry is the fundamental unit stored in the log. Index and Term are
// assigned at append time; exactly one of the payload fields is meaningful,
// selected by Type.
//
// (raft.raftpb.Entry, generalized from an opaque []byte payload to
// spec.md's tagged variants)
type Entry struct {
	Index uint64
	Term  uint64
	Type  EntryType

	Timestamp int64 // unix millis, assigned by the leader at append time

	// ENTRY_TYPE_CONFIGURATION
	Members []Member

	// ENTRY_TYPE_OPEN_SESSION
	SessionName    string
	SessionType    SessionType
	SessionTimeout int64 // milliseconds

	// ENTRY_TYPE_KEEP_ALIVE (parallel slices, one entry per session)
	KeepAliveSessionIDs        []uint64
	KeepAliveCommandSequences  []uint64
	KeepAliveEventIndexes      []uint64
	KeepAliveConnectionIDs     []string

	// ENTRY_TYPE_CLOSE_SESSION, ENTRY_TYPE_METADATA
	Session uint64

	// ENTRY_TYPE_COMMAND, ENTRY_TYPE_QUERY
	Sequence uint64
	Payload  []byte
}

func (e Entry) String() string {
	return fmt.Sprintf("[index=%d term=%d type=%s session=%d seq=%d]", e.Index, e.Term, e.Type, e.Session, e.Sequence)
}

// IsEmpty reports whether e is the zero Entry (used the way
// raftpb.IsEmptySnapshot guards against acting on a not-yet-set value).
func (e Entry) IsEmpty() bool {
	return e.Index == 0 && e.Term == 0
}

// MemberType is the voting weight of a cluster Member.
type MemberType uint8

const (
	MEMBER_TYPE_ACTIVE MemberType = iota
	MEMBER_TYPE_PASSIVE
	MEMBER_TYPE_RESERVE
)

func (t MemberType) String() string {
	switch t {
	case MEMBER_TYPE_ACTIVE:
		return "ACTIVE"
	case MEMBER_TYPE_PASSIVE:
		return "PASSIVE"
	case MEMBER_TYPE_RESERVE:
		return "RESERVE"
	default:
		return "MEMBER_TYPE_UNKNOWN"
	}
}

// MemberStatus is the leader's current view of a Member's reachability.
type MemberStatus uint8

const (
	MEMBER_STATUS_AVAILABLE MemberStatus = iota
	MEMBER_STATUS_UNAVAILABLE
)

func (s MemberStatus) String() string {
	if s == MEMBER_STATUS_AVAILABLE {
		return "AVAILABLE"
	}
	return "UNAVAILABLE"
}

// Member is one entry of a ClusterConfiguration's membership set.
//
// Member must remain comparable (no slices/maps) so it can be stored
// directly in a mapset.Set — see cluster.Configuration.
type Member struct {
	ID            uint64
	Type          MemberType
	Status        MemberStatus
	ServerAddress string
	ClientAddress string
}

func (m Member) String() string {
	return fmt.Sprintf("[id=%x type=%s status=%s server=%s client=%s]", m.ID, m.Type, m.Status, m.ServerAddress, m.ClientAddress)
}

// ConsistencyLevel selects how a Query is served.
type ConsistencyLevel uint8

const (
	// CONSISTENCY_SEQUENTIAL allows a slightly stale read against any
	// server, bounded only by the requesting session's own progress.
	CONSISTENCY_SEQUENTIAL ConsistencyLevel = iota
	// CONSISTENCY_LINEARIZABLE_LEASE is rejected by this implementation;
	// see SPEC_FULL.md Open Question decision #1.
	CONSISTENCY_LINEARIZABLE_LEASE
	// CONSISTENCY_LINEARIZABLE forces a heartbeat-majority round after
	// applying the query, before returning the result.
	CONSISTENCY_LINEARIZABLE
)

func (c ConsistencyLevel) String() string {
	switch c {
	case CONSISTENCY_SEQUENTIAL:
		return "SEQUENTIAL"
	case CONSISTENCY_LINEARIZABLE_LEASE:
		return "LINEARIZABLE_LEASE"
	case CONSISTENCY_LINEARIZABLE:
		return "LINEARIZABLE"
	default:
		return "CONSISTENCY_UNKNOWN"
	}
}
