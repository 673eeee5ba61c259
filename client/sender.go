// Package client implements the session-sequenced client driver of
// spec.md §4.4: session registration, command/query dispatch, batched
// keep-alive, and leader discovery with retry — the request-side
// counterpart to package server's request-handling RPCs.
package client

import (
	"context"

	"github.com/1008610010/copycat/copycatpb"
)

// Sender is everything Client needs from the transport layer. transport.Client
// satisfies it; tests use a stub.
type Sender interface {
	Connect(ctx context.Context, address string, req copycatpb.ConnectRequest) (copycatpb.ConnectResponse, error)
	Register(ctx context.Context, address string, req copycatpb.RegisterRequest) (copycatpb.RegisterResponse, error)
	KeepAlive(ctx context.Context, address string, req copycatpb.KeepAliveRequest) (copycatpb.KeepAliveResponse, error)
	CloseSession(ctx context.Context, address string, req copycatpb.CloseSessionRequest) (copycatpb.CloseSessionResponse, error)
	Command(ctx context.Context, address string, req copycatpb.CommandRequest) (copycatpb.CommandResponse, error)
	Query(ctx context.Context, address string, req copycatpb.QueryRequest) (copycatpb.QueryResponse, error)
	Metadata(ctx context.Context, address string, req copycatpb.MetadataRequest) (copycatpb.MetadataResponse, error)
	Configure(ctx context.Context, address string, req copycatpb.ConfigureRequest) (copycatpb.ConfigureResponse, error)
}
