package client

import (
	"context"

	"github.com/1008610010/copycat/copycatpb"
)

// Open registers a new session of the given name/type and starts the
// background keep-alive loop. The returned session id is stable for the
// lifetime of the Client.
func (c *Client) Open(ctx context.Context, name string, typ copycatpb.SessionType) (uint64, error) {
	resp, err := withRetry(ctx, c, func(address string) (copycatpb.RegisterResponse, *copycatpb.Error, error) {
		r, err := c.sender.Register(ctx, address, copycatpb.RegisterRequest{
			Name:         name,
			Type:         typ,
			ConnectionID: c.connectionID,
		})
		if err != nil {
			return copycatpb.RegisterResponse{}, nil, err
		}
		return r, r.Error, nil
	})
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.session = resp.Session
	c.timeout = resp.Timeout
	c.mu.Unlock()
	c.rememberTopology(resp.Leader, resp.Members)

	c.closeCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.keepAliveLoop()

	logger.Infof("session %d opened [name=%q type=%s timeout=%dms]", resp.Session, name, typ, resp.Timeout)
	return resp.Session, nil
}

// Reconnect rebinds the existing session to this Client's connection id,
// the way a client reattaches after a dropped transport connection without
// losing its session (spec.md §4.4's Connect RPC).
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.session
	c.mu.Unlock()

	resp, err := withRetry(ctx, c, func(address string) (copycatpb.ConnectResponse, *copycatpb.Error, error) {
		r, err := c.sender.Connect(ctx, address, copycatpb.ConnectRequest{
			Session:      sessionID,
			ConnectionID: c.connectionID,
		})
		if err != nil {
			return copycatpb.ConnectResponse{}, nil, err
		}
		return r, r.Error, nil
	})
	if err != nil {
		return err
	}
	c.rememberTopology(resp.Leader, resp.Members)
	return nil
}

// Close stops the keep-alive loop and explicitly terminates the session.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.session
	closeCh := c.closeCh
	doneCh := c.doneCh
	c.mu.Unlock()

	if closeCh != nil {
		close(closeCh)
		<-doneCh
	}

	_, err := withRetry(ctx, c, func(address string) (struct{}, *copycatpb.Error, error) {
		r, err := c.sender.CloseSession(ctx, address, copycatpb.CloseSessionRequest{Session: sessionID})
		if err != nil {
			return struct{}{}, nil, err
		}
		return struct{}{}, r.Error, nil
	})
	return err
}

// Metadata lists the ids of every session currently open on the cluster.
func (c *Client) Metadata(ctx context.Context) ([]uint64, error) {
	c.mu.Lock()
	sessionID := c.session
	c.mu.Unlock()

	return withRetry(ctx, c, func(address string) ([]uint64, *copycatpb.Error, error) {
		r, err := c.sender.Metadata(ctx, address, copycatpb.MetadataRequest{Session: sessionID})
		if err != nil {
			return nil, nil, err
		}
		return r.Sessions, r.Error, nil
	})
}

// Configure submits a cluster membership change and waits for it to
// commit.
func (c *Client) Configure(ctx context.Context, members []copycatpb.Member) (copycatpb.ConfigureResponse, error) {
	return withRetry(ctx, c, func(address string) (copycatpb.ConfigureResponse, *copycatpb.Error, error) {
		r, err := c.sender.Configure(ctx, address, copycatpb.ConfigureRequest{Members: members})
		if err != nil {
			return copycatpb.ConfigureResponse{}, nil, err
		}
		return r, r.Error, nil
	})
}
