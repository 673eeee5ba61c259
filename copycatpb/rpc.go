package copycatpb

// Status is a generic RPC outcome marker, used where a typed Error would
// be overkill (e.g. Install's per-chunk ack).
type Status uint8

const (
	STATUS_OK Status = iota
	STATUS_ERROR
)

// AppendRequest carries a batch of log entries from a leader to a
// follower/passive member.
//
// (spec.md §6: "Append {term, leader, logIndex, logTerm, entries[],
// commitIndex, globalIndex} -> {status, term, succeeded, logIndex}")
type AppendRequest struct {
	Term        uint64
	Leader      uint64
	LogIndex    uint64 // index of the entry preceding Entries
	LogTerm     uint64 // term of the entry preceding Entries
	Entries     []Entry
	CommitIndex uint64
	GlobalIndex uint64
}

// AppendResponse is the follower's reply to an AppendRequest.
type AppendResponse struct {
	Status    Status
	Term      uint64
	Succeeded bool
	LogIndex  uint64 // on failure, a rollback hint; on success, last appended index
}

// PollRequest/VoteRequest share the same shape; Poll is advisory (does not
// record a vote), Vote does.
//
// (spec.md §6: "Poll/Vote {term, candidate, logIndex, logTerm} -> {status,
// term, accepted|voted}")
type VoteRequest struct {
	Term      uint64
	Candidate uint64
	LogIndex  uint64
	LogTerm   uint64
	Poll      bool // true for a pre-vote Poll, false for a binding Vote
}

// VoteResponse is the reply to a VoteRequest or (advisory) PollRequest.
type VoteResponse struct {
	Status  Status
	Term    uint64
	Granted bool
}

// InstallRequest carries one chunk of a snapshot being transferred to a
// lagging or newly-joined member.
//
// (spec.md §6: "Install {term, leader, id, index, offset, data, complete}
// -> {status}")
type InstallRequest struct {
	Term     uint64
	Leader   uint64
	ID       uint64
	Index    uint64
	Offset   uint64
	Data     []byte
	Complete bool
}

// InstallResponse acks one Install chunk.
type InstallResponse struct {
	Status Status
	Term   uint64
}

// ConfigureRequest carries a Join/Leave/Reconfigure request.
//
// (spec.md §6: "Configure/Join/Leave/Reconfigure {member(s)} -> {index,
// term, time, members}")
type ConfigureRequest struct {
	Members []Member
}

// ConfigureResponse reports the resulting configuration, once committed.
type ConfigureResponse struct {
	Error     *Error
	Index     uint64
	Term      uint64
	Timestamp int64
	Members   []Member
}

// ConnectRequest binds a transport connection to a session.
//
// (spec.md §6: "Connect {session, connectionId} -> {leader, members}")
type ConnectRequest struct {
	Session      uint64
	ConnectionID string
}

// ConnectResponse reports cluster metadata back to a freshly (re)bound
// connection.
type ConnectResponse struct {
	Error   *Error
	Leader  string
	Members []Member
}

// RegisterRequest opens a new session.
//
// (spec.md §6: "Register/OpenSession {name, type, timeout} -> {session,
// leader, members, timeout}")
type RegisterRequest struct {
	Name         string
	Type         SessionType
	Timeout      int64
	ConnectionID string
}

// RegisterResponse returns the newly assigned session id.
type RegisterResponse struct {
	Error   *Error
	Session uint64
	Leader  string
	Members []Member
	Timeout int64
}

// KeepAliveRequest is a batched liveness/ack update, one set of parallel
// entries per session known to the connection.
//
// (spec.md §6: "KeepAlive {sessionIds[], commandSequences[], eventIndexes[],
// connections[]} -> {leader, members}")
type KeepAliveRequest struct {
	SessionIDs       []uint64
	CommandSequences []uint64
	EventIndexes     []uint64
	ConnectionIDs    []string
}

// Event is a state-machine-published event flushed to the client as part
// of a KeepAliveResponse, one batch per KeepAlive round-trip rather than
// one RPC per event, since this transport has no server-push channel.
//
// (spec.md §3 supplemented feature: Connection PublishRequest-style event
// batching)
type Event struct {
	Index   uint64
	Payload []byte
}

// KeepAliveResponse reports current cluster metadata plus any events
// still pending acknowledgment for the sessions named in the request.
type KeepAliveResponse struct {
	Error   *Error
	Leader  string
	Members []Member
	Events  []Event
}

// CloseSessionRequest explicitly terminates a session.
//
// (spec.md §6: "CloseSession/Unregister {session} -> {}")
type CloseSessionRequest struct {
	Session uint64
}

// CloseSessionResponse acknowledges session termination.
type CloseSessionResponse struct {
	Error *Error
}

// CommandRequest submits a sequence-numbered write operation.
//
// (spec.md §6: "Command {session, sequence, payload} -> {index, eventIndex,
// result|error, lastSequence?}")
type CommandRequest struct {
	Session  uint64
	Sequence uint64
	Payload  []byte
}

// CommandResponse carries the applied result or a typed error.
type CommandResponse struct {
	Error        *Error
	Index        uint64
	EventIndex   uint64
	Result       []byte
	LastSequence uint64
}

// QueryRequest submits a read operation at a chosen consistency level.
//
// (spec.md §6: "Query {session, sequence, index, consistency, payload} ->
// {index, eventIndex, result|error}")
type QueryRequest struct {
	Session     uint64
	Sequence    uint64
	Index       uint64
	Consistency ConsistencyLevel
	Payload     []byte
}

// QueryResponse carries the query's result or a typed error.
type QueryResponse struct {
	Error      *Error
	Index      uint64
	EventIndex uint64
	Result     []byte
}

// MetadataRequest asks for the set of currently open sessions.
//
// (spec.md §6: "Metadata {session} -> {sessions[]}")
type MetadataRequest struct {
	Session uint64
}

// MetadataResponse lists open session ids.
type MetadataResponse struct {
	Error    *Error
	Sessions []uint64
}
