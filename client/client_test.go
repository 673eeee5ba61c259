package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/1008610010/copycat/copycatpb"
)

// stubSender is an in-memory Sender backed by a tiny fake state machine:
// Command appends payload to a log and echoes back its length, Query
// reads the accumulated length.
type stubSender struct {
	mu       sync.Mutex
	leader   string
	members  []copycatpb.Member
	sessions map[uint64]bool
	nextID   uint64
	noLeader bool

	commands []copycatpb.CommandRequest
}

func newStubSender(leader string) *stubSender {
	return &stubSender{
		leader:   leader,
		members:  []copycatpb.Member{{ClientAddress: leader}},
		sessions: make(map[uint64]bool),
		nextID:   1,
	}
}

func (s *stubSender) Connect(ctx context.Context, address string, req copycatpb.ConnectRequest) (copycatpb.ConnectResponse, error) {
	if address != s.leader {
		return copycatpb.ConnectResponse{Error: &copycatpb.Error{Type: copycatpb.ERROR_NO_LEADER, LeaderHint: s.leader}}, nil
	}
	return copycatpb.ConnectResponse{Leader: s.leader, Members: s.members}, nil
}

func (s *stubSender) Register(ctx context.Context, address string, req copycatpb.RegisterRequest) (copycatpb.RegisterResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address != s.leader {
		return copycatpb.RegisterResponse{Error: &copycatpb.Error{Type: copycatpb.ERROR_NO_LEADER, LeaderHint: s.leader}}, nil
	}
	id := s.nextID
	s.nextID++
	s.sessions[id] = true
	return copycatpb.RegisterResponse{Session: id, Leader: s.leader, Members: s.members, Timeout: 5000}, nil
}

func (s *stubSender) KeepAlive(ctx context.Context, address string, req copycatpb.KeepAliveRequest) (copycatpb.KeepAliveResponse, error) {
	if address != s.leader {
		return copycatpb.KeepAliveResponse{Error: &copycatpb.Error{Type: copycatpb.ERROR_NO_LEADER, LeaderHint: s.leader}}, nil
	}
	return copycatpb.KeepAliveResponse{Leader: s.leader, Members: s.members}, nil
}

func (s *stubSender) CloseSession(ctx context.Context, address string, req copycatpb.CloseSessionRequest) (copycatpb.CloseSessionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, req.Session)
	return copycatpb.CloseSessionResponse{}, nil
}

func (s *stubSender) Command(ctx context.Context, address string, req copycatpb.CommandRequest) (copycatpb.CommandResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address != s.leader {
		return copycatpb.CommandResponse{Error: &copycatpb.Error{Type: copycatpb.ERROR_NO_LEADER, LeaderHint: s.leader}}, nil
	}
	s.commands = append(s.commands, req)
	return copycatpb.CommandResponse{Index: uint64(len(s.commands)), EventIndex: uint64(len(s.commands)), Result: []byte{byte(len(req.Payload))}}, nil
}

func (s *stubSender) Query(ctx context.Context, address string, req copycatpb.QueryRequest) (copycatpb.QueryResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copycatpb.QueryResponse{Result: []byte{byte(len(s.commands))}}, nil
}

func (s *stubSender) Metadata(ctx context.Context, address string, req copycatpb.MetadataRequest) (copycatpb.MetadataResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return copycatpb.MetadataResponse{Sessions: ids}, nil
}

func (s *stubSender) Configure(ctx context.Context, address string, req copycatpb.ConfigureRequest) (copycatpb.ConfigureResponse, error) {
	return copycatpb.ConfigureResponse{Members: req.Members}, nil
}

func TestOpenCommandAndClose(t *testing.T) {
	sender := newStubSender("leader-1")
	c := New(sender, Config{Seeds: []string{"leader-1"}, KeepAliveInterval: 50 * time.Millisecond})

	ctx := context.Background()
	sessionID, err := c.Open(ctx, "kv", "KV")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sessionID == 0 {
		t.Fatal("expected nonzero session id")
	}

	result, err := c.Command(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if len(result) != 1 || result[0] != 5 {
		t.Fatalf("got result %v", result)
	}

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sender.mu.Lock()
	_, stillOpen := sender.sessions[sessionID]
	sender.mu.Unlock()
	if stillOpen {
		t.Fatal("session should have been closed")
	}
}

func TestOpenRetriesOnNoLeaderHint(t *testing.T) {
	sender := newStubSender("leader-2")
	c := New(sender, Config{Seeds: []string{"wrong-address"}, RetryBackoff: time.Millisecond, RetryBackoffMax: 5 * time.Millisecond})

	ctx := context.Background()
	if _, err := c.Open(ctx, "kv", "KV"); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestQueryReflectsAppliedCommands(t *testing.T) {
	sender := newStubSender("leader-1")
	c := New(sender, Config{Seeds: []string{"leader-1"}})

	ctx := context.Background()
	if _, err := c.Open(ctx, "kv", "KV"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.Command(ctx, []byte("a")); err != nil {
		t.Fatalf("Command: %v", err)
	}

	result, err := c.Query(ctx, nil, copycatpb.CONSISTENCY_SEQUENTIAL)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result) != 1 || result[0] != 1 {
		t.Fatalf("got result %v", result)
	}
}
