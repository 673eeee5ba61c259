package client

import (
	"context"

	"github.com/1008610010/copycat/copycatpb"
)

// Command submits a sequence-numbered write and waits for it to commit and
// apply, per spec.md §4.4. Sequence numbers are assigned locally and
// monotonically, so a retried RPC (after a leader change or timeout)
// carries the same sequence and is served from the leader's dedup cache
// instead of being re-applied.
func (c *Client) Command(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	sessionID := c.session
	c.mu.Unlock()

	seq := c.nextSequence()

	resp, err := withRetry(ctx, c, func(address string) (copycatpb.CommandResponse, *copycatpb.Error, error) {
		r, err := c.sender.Command(ctx, address, copycatpb.CommandRequest{
			Session:  sessionID,
			Sequence: seq,
			Payload:  payload,
		})
		if err != nil {
			return copycatpb.CommandResponse{}, nil, err
		}
		return r, r.Error, nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if resp.EventIndex > c.eventIdx {
		c.eventIdx = resp.EventIndex
	}
	c.mu.Unlock()

	return resp.Result, nil
}

// Query executes a read at the requested consistency level.
func (c *Client) Query(ctx context.Context, payload []byte, consistency copycatpb.ConsistencyLevel) ([]byte, error) {
	c.mu.Lock()
	sessionID := c.session
	seq := c.sequence
	c.mu.Unlock()

	resp, err := withRetry(ctx, c, func(address string) (copycatpb.QueryResponse, *copycatpb.Error, error) {
		r, err := c.sender.Query(ctx, address, copycatpb.QueryRequest{
			Session:     sessionID,
			Sequence:    seq,
			Consistency: consistency,
			Payload:     payload,
		})
		if err != nil {
			return copycatpb.QueryResponse{}, nil, err
		}
		return r, r.Error, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// nextSequence assigns the next command sequence number under c.mu, the
// same mutex sendKeepAlive holds while it reads the current sequence.
func (c *Client) nextSequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence++
	return c.sequence
}
