package client

import (
	"context"
	"time"

	"github.com/1008610010/copycat/copycatpb"
)

// keepAliveLoop sends batched liveness/ack updates until Close is called.
func (c *Client) keepAliveLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.closeCh:
			return
		case <-time.After(c.jitteredInterval()):
			c.sendKeepAlive()
		}
	}
}

func (c *Client) sendKeepAlive() {
	c.mu.Lock()
	sessionID := c.session
	seq := c.sequence
	evt := c.eventIdx
	connID := c.connectionID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := withRetry(ctx, c, func(address string) (copycatpb.KeepAliveResponse, *copycatpb.Error, error) {
		r, err := c.sender.KeepAlive(ctx, address, copycatpb.KeepAliveRequest{
			SessionIDs:       []uint64{sessionID},
			CommandSequences: []uint64{seq},
			EventIndexes:     []uint64{evt},
			ConnectionIDs:    []string{connID},
		})
		if err != nil {
			return copycatpb.KeepAliveResponse{}, nil, err
		}
		return r, r.Error, nil
	})
	if err != nil {
		logger.Warningf("keepalive for session %d failed: %v", sessionID, err)
		return
	}
	c.rememberTopology(resp.Leader, resp.Members)
}
