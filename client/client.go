package client

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/xlog"
)

var logger = xlog.NewLogger("client")

// Config tunes a Client's retry and keep-alive behavior.
type Config struct {
	// Seeds is the initial set of server addresses to try before any
	// leader has been discovered.
	Seeds []string

	// RetryBackoff is the delay between leader-discovery retries, doubled
	// on each attempt up to RetryBackoffMax.
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	MaxRetries      int

	// KeepAliveInterval is the nominal period between KeepAlive RPCs. The
	// actual delay is jittered to a random point in
	// [interval/2, interval], the way Copycat's client-side session
	// manager avoids every client in a cluster heartbeating in lockstep.
	KeepAliveInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
	if c.RetryBackoffMax == 0 {
		c.RetryBackoffMax = 2 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 2 * time.Second
	}
	return c
}

// Client drives one session against a copycat cluster.
type Client struct {
	sender Sender
	config Config

	connectionID string
	rnd          *rand.Rand

	mu       sync.Mutex
	leader   string
	members  []string
	session  uint64
	sequence uint64
	eventIdx uint64
	timeout  int64

	closeCh chan struct{}
	doneCh  chan struct{}
}

// New creates a Client bound to sender, not yet connected to any session.
func New(sender Sender, config Config) *Client {
	config = config.withDefaults()
	return &Client{
		sender:       sender,
		config:       config,
		connectionID: uuid.New().String(),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		members:      append([]string(nil), config.Seeds...),
	}
}

// leaderOrSeeds returns the addresses to try, leader first if known.
func (c *Client) leaderOrSeeds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	addrs := make([]string, 0, len(c.members)+1)
	if c.leader != "" {
		addrs = append(addrs, c.leader)
	}
	for _, m := range c.members {
		if m != c.leader {
			addrs = append(addrs, m)
		}
	}
	return addrs
}

func (c *Client) rememberTopology(leader string, members []copycatpb.Member) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if leader != "" {
		c.leader = leader
	}
	if len(members) > 0 {
		addrs := make([]string, 0, len(members))
		for _, m := range members {
			addrs = append(addrs, m.ClientAddress)
		}
		c.members = addrs
	}
}

func (c *Client) forgetLeader() {
	c.mu.Lock()
	c.leader = ""
	c.mu.Unlock()
}

// withRetry calls attempt against every known address, leader first,
// backing off and retrying the whole cluster on NO_LEADER or a transport
// error, per spec.md §4.4's "clients retry against the next known member
// on NO_LEADER, backing off exponentially".
func withRetry[T any](ctx context.Context, c *Client, attempt func(address string) (T, *copycatpb.Error, error)) (T, error) {
	var zero T
	backoff := c.config.RetryBackoff

	for try := 0; try < c.config.MaxRetries; try++ {
		addrs := c.leaderOrSeeds()
		for _, addr := range addrs {
			result, rpcErr, err := attempt(addr)
			if err != nil {
				logger.Warningf("rpc to %s failed: %v", addr, err)
				continue
			}
			if rpcErr != nil {
				if rpcErr.Type == copycatpb.ERROR_NO_LEADER {
					if rpcErr.LeaderHint != "" {
						c.mu.Lock()
						c.leader = rpcErr.LeaderHint
						c.mu.Unlock()
					} else {
						c.forgetLeader()
					}
					continue
				}
				return zero, rpcErr
			}
			return result, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.config.RetryBackoffMax {
			backoff = c.config.RetryBackoffMax
		}
	}
	return zero, fmt.Errorf("client: exhausted %d retries against %v", c.config.MaxRetries, c.members)
}

// jitteredInterval returns a random duration in [interval/2, interval].
func (c *Client) jitteredInterval() time.Duration {
	half := c.config.KeepAliveInterval / 2
	return half + time.Duration(c.rnd.Int63n(int64(half)+1))
}
