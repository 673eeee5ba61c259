package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/pkg/tlsutil"
	"github.com/1008610010/copycat/pkg/transportutil"
)

// Client is the HTTP-based implementation of server.Transport, and also
// exposes the client-facing RPCs (Connect/Register/KeepAlive/...) for
// package client to drive. Built on pkg/transportutil.NewTransport rather
// than pkg/netutil's parallel http.Transport constructor: transportutil's
// is the one already wired for TLSInfo the way this module's tlsutil
// package produces it, so there is exactly one RoundTripper construction
// path instead of two competing ones (see DESIGN.md).
type Client struct {
	hc *http.Client
}

// NewClient builds a Client. An empty tlsutil.TLSInfo yields a plain-HTTP
// RoundTripper.
func NewClient(ti tlsutil.TLSInfo, dialTimeout time.Duration) (*Client, error) {
	tr, err := transportutil.NewTransport(ti, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{hc: &http.Client{Transport: tr}}, nil
}

func (c *Client) post(ctx context.Context, address, path string, req, resp interface{}) error {
	buf, err := encodeBody(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, address+path, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("transport: %s: status %d", path, httpResp.StatusCode)
	}
	return decodeBody(httpResp.Body, resp)
}

// SendAppend implements server.Transport.
func (c *Client) SendAppend(address string, req copycatpb.AppendRequest) (copycatpb.AppendResponse, error) {
	var resp copycatpb.AppendResponse
	err := c.post(context.Background(), address, "/raft/append", req, &resp)
	return resp, err
}

// SendVote implements server.Transport.
func (c *Client) SendVote(address string, req copycatpb.VoteRequest) (copycatpb.VoteResponse, error) {
	var resp copycatpb.VoteResponse
	err := c.post(context.Background(), address, "/raft/vote", req, &resp)
	return resp, err
}

// SendInstall implements server.Transport.
func (c *Client) SendInstall(address string, req copycatpb.InstallRequest) (copycatpb.InstallResponse, error) {
	var resp copycatpb.InstallResponse
	err := c.post(context.Background(), address, "/raft/install", req, &resp)
	return resp, err
}

// Connect, Register, KeepAlive, CloseSession, Command, Query, Metadata, and
// Configure are the client-facing counterparts, used by package client's
// session-sequenced driver to reach whichever replica currently acts as
// leader.

func (c *Client) Connect(ctx context.Context, address string, req copycatpb.ConnectRequest) (copycatpb.ConnectResponse, error) {
	var resp copycatpb.ConnectResponse
	err := c.post(ctx, address, "/client/connect", req, &resp)
	return resp, err
}

func (c *Client) Register(ctx context.Context, address string, req copycatpb.RegisterRequest) (copycatpb.RegisterResponse, error) {
	var resp copycatpb.RegisterResponse
	err := c.post(ctx, address, "/client/register", req, &resp)
	return resp, err
}

func (c *Client) KeepAlive(ctx context.Context, address string, req copycatpb.KeepAliveRequest) (copycatpb.KeepAliveResponse, error) {
	var resp copycatpb.KeepAliveResponse
	err := c.post(ctx, address, "/client/keepalive", req, &resp)
	return resp, err
}

func (c *Client) CloseSession(ctx context.Context, address string, req copycatpb.CloseSessionRequest) (copycatpb.CloseSessionResponse, error) {
	var resp copycatpb.CloseSessionResponse
	err := c.post(ctx, address, "/client/closesession", req, &resp)
	return resp, err
}

func (c *Client) Command(ctx context.Context, address string, req copycatpb.CommandRequest) (copycatpb.CommandResponse, error) {
	var resp copycatpb.CommandResponse
	err := c.post(ctx, address, "/client/command", req, &resp)
	return resp, err
}

func (c *Client) Query(ctx context.Context, address string, req copycatpb.QueryRequest) (copycatpb.QueryResponse, error) {
	var resp copycatpb.QueryResponse
	err := c.post(ctx, address, "/client/query", req, &resp)
	return resp, err
}

func (c *Client) Metadata(ctx context.Context, address string, req copycatpb.MetadataRequest) (copycatpb.MetadataResponse, error) {
	var resp copycatpb.MetadataResponse
	err := c.post(ctx, address, "/client/metadata", req, &resp)
	return resp, err
}

func (c *Client) Configure(ctx context.Context, address string, req copycatpb.ConfigureRequest) (copycatpb.ConfigureResponse, error) {
	var resp copycatpb.ConfigureResponse
	err := c.post(ctx, address, "/client/configure", req, &resp)
	return resp, err
}
