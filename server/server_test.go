package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1008610010/copycat/cluster"
	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/statemachine"
)

// memStateMachine is a minimal StateMachine for exercising the server
// package without pulling in a real application.
type memStateMachine struct {
	applied []string
}

func (m *memStateMachine) Apply(ctx statemachine.Context, payload []byte) ([]byte, error) {
	m.applied = append(m.applied, string(payload))
	return payload, nil
}

func (m *memStateMachine) Query(payload []byte) ([]byte, error) {
	return payload, nil
}

// noopTransport answers every peer RPC as if the peer were unreachable,
// sufficient for single-member tests where the appender never has anyone
// to send to in the first place.
type noopTransport struct{}

func (noopTransport) SendAppend(string, copycatpb.AppendRequest) (copycatpb.AppendResponse, error) {
	return copycatpb.AppendResponse{}, errUnreachable
}
func (noopTransport) SendVote(string, copycatpb.VoteRequest) (copycatpb.VoteResponse, error) {
	return copycatpb.VoteResponse{}, errUnreachable
}
func (noopTransport) SendInstall(string, copycatpb.InstallRequest) (copycatpb.InstallResponse, error) {
	return copycatpb.InstallResponse{}, errUnreachable
}

var errUnreachable = errors.New("test: unreachable")

// newSingleMemberServer builds a one-member cluster server and starts it,
// registering t.Cleanup to stop it and blow away its data directory.
func newSingleMemberServer(t *testing.T, sm statemachine.StateMachine) *Server {
	t.Helper()
	dir := t.TempDir()

	self := copycatpb.Member{ID: 1, Type: copycatpb.MEMBER_TYPE_ACTIVE, ServerAddress: "self:0", ClientAddress: "self:1"}
	initial := cluster.NewConfiguration(0, 0, 0, self)

	cfg := Config{
		Name:              "n1",
		Dir:               dir,
		ServerAddress:     "self:0",
		ClientAddress:     "self:1",
		ElectionTimeout:   50 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
		SessionTimeout:    500 * time.Millisecond,
	}

	srv, err := New(cfg, noopTransport{}, sm, initial)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() { require.NoError(t, srv.Stop()) })
	return srv
}

// awaitLeader polls until srv becomes leader, a single-member cluster's
// guaranteed eventual outcome since it always grants itself a quorum of
// one on its first election timeout.
func awaitLeader(t *testing.T, srv *Server) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if srv.roleForTest() == RoleLeader {
			return
		}
		select {
		case <-deadline:
			t.Fatal("server never became leader")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// roleForTest reads s.role via the dispatch loop, matching the "only the
// loop goroutine touches this state" rule the rest of the package follows.
func (s *Server) roleForTest() Role {
	ch := make(chan Role, 1)
	s.submit(&funcCmd{fn: func(s *Server) { ch <- s.role }})
	return await(s, ch)
}

func TestSingleMemberBecomesLeader(t *testing.T) {
	srv := newSingleMemberServer(t, &memStateMachine{})
	awaitLeader(t, srv)
}

func TestSingleMemberRegisterCommandQuery(t *testing.T) {
	sm := &memStateMachine{}
	srv := newSingleMemberServer(t, sm)
	awaitLeader(t, srv)

	reg := srv.Register(copycatpb.RegisterRequest{Name: "client-1", Type: "kv"})
	require.Nil(t, reg.Error)
	require.NotZero(t, reg.Session)

	cmdResp := srv.Command(copycatpb.CommandRequest{Session: reg.Session, Sequence: 1, Payload: []byte("hello")})
	require.Nil(t, cmdResp.Error)
	require.Equal(t, "hello", string(cmdResp.Result))
	require.Contains(t, sm.applied, "hello")

	// a retransmit of the same sequence must be served from the dedup
	// cache, not re-applied.
	replay := srv.Command(copycatpb.CommandRequest{Session: reg.Session, Sequence: 1, Payload: []byte("hello")})
	require.Nil(t, replay.Error)
	require.Equal(t, "hello", string(replay.Result))
	require.Len(t, sm.applied, 1)

	// a query's sequence number is gated on the session's acknowledged command
	// sequence, which only advances on KeepAlive; ack sequence 1 first.
	srv.KeepAlive(copycatpb.KeepAliveRequest{
		SessionIDs:       []uint64{reg.Session},
		CommandSequences: []uint64{1},
		EventIndexes:     []uint64{0},
	})

	queryResp := srv.Query(copycatpb.QueryRequest{
		Session:     reg.Session,
		Index:       cmdResp.Index,
		Sequence:    2,
		Consistency: copycatpb.CONSISTENCY_SEQUENTIAL,
		Payload:     []byte("read"),
	})
	require.Nil(t, queryResp.Error)
	require.Equal(t, "read", string(queryResp.Result))
}

func TestLinearizableQueryForcesBarrier(t *testing.T) {
	sm := &memStateMachine{}
	srv := newSingleMemberServer(t, sm)
	awaitLeader(t, srv)

	reg := srv.Register(copycatpb.RegisterRequest{Name: "client-1", Type: "kv"})
	require.Nil(t, reg.Error)

	resp := srv.Query(copycatpb.QueryRequest{
		Session:     reg.Session,
		Sequence:    1,
		Consistency: copycatpb.CONSISTENCY_LINEARIZABLE,
		Payload:     []byte("read"),
	})
	require.Nil(t, resp.Error)
}

func TestLinearizableLeaseQueryRejected(t *testing.T) {
	srv := newSingleMemberServer(t, &memStateMachine{})
	awaitLeader(t, srv)

	resp := srv.Query(copycatpb.QueryRequest{Consistency: copycatpb.CONSISTENCY_LINEARIZABLE_LEASE})
	require.NotNil(t, resp.Error)
	require.Equal(t, copycatpb.ERROR_QUERY_ERROR, resp.Error.Type)
}

func TestCommandAgainstUnknownSessionErrors(t *testing.T) {
	srv := newSingleMemberServer(t, &memStateMachine{})
	awaitLeader(t, srv)

	resp := srv.Command(copycatpb.CommandRequest{Session: 999, Sequence: 1, Payload: []byte("x")})
	require.NotNil(t, resp.Error)
	require.Equal(t, copycatpb.ERROR_UNKNOWN_SESSION, resp.Error.Type)
}

func TestCloseSession(t *testing.T) {
	srv := newSingleMemberServer(t, &memStateMachine{})
	awaitLeader(t, srv)

	reg := srv.Register(copycatpb.RegisterRequest{Name: "client-1", Type: "kv"})
	require.Nil(t, reg.Error)

	closeResp := srv.CloseSession(copycatpb.CloseSessionRequest{Session: reg.Session})
	require.Nil(t, closeResp.Error)

	cmdResp := srv.Command(copycatpb.CommandRequest{Session: reg.Session, Sequence: 1, Payload: []byte("x")})
	require.NotNil(t, cmdResp.Error)
	require.Equal(t, copycatpb.ERROR_UNKNOWN_SESSION, cmdResp.Error.Type)
}

func TestMetadataListsOpenSessions(t *testing.T) {
	srv := newSingleMemberServer(t, &memStateMachine{})
	awaitLeader(t, srv)

	reg := srv.Register(copycatpb.RegisterRequest{Name: "client-1", Type: "kv"})
	require.Nil(t, reg.Error)

	meta := srv.Metadata(copycatpb.MetadataRequest{})
	require.Contains(t, meta.Sessions, reg.Session)
}
