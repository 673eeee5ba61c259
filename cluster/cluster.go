package cluster

import (
	"sync"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/xlog"
)

var logger = xlog.NewLogger("cluster")

// Cluster tracks the currently-applied Configuration and enforces the
// single-pending-configuration invariant of spec.md §4.3.
//
// (grounded on raft/raft_node.go's ApplyConfigChange/addNode/deleteNode
// configuration-change application path, generalized from a flat set of
// peer ids to spec.md's typed {ACTIVE,PASSIVE,RESERVE} x {AVAILABLE,
// UNAVAILABLE} members)
type Cluster struct {
	mu sync.RWMutex

	current         *Configuration
	lastConfigIndex uint64
}

// New creates a Cluster seeded with the given initial configuration.
func New(initial *Configuration) *Cluster {
	return &Cluster{current: initial, lastConfigIndex: initial.Index}
}

// Configuration returns the currently-applied configuration.
func (c *Cluster) Configuration() *Configuration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// LastConfigIndex returns the log index of the most recently applied
// Configuration entry, committed or not.
func (c *Cluster) LastConfigIndex() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastConfigIndex
}

// CanPropose reports whether the leader may propose a new configuration
// change, given its own commitIndex and whether its initial no-op entry
// for the current term has committed.
//
// (spec.md §4.3: "rejects Join/Leave/Reconfigure requests while
// configuring (lastConfigIndex > commitIndex) or while initializing
// (leader's noop has not yet committed)")
func (c *Cluster) CanPropose(commitIndex uint64, initialized bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !initialized {
		return ErrInitializing
	}
	if c.lastConfigIndex > commitIndex {
		return ErrConfiguring
	}
	return nil
}

// BuildJoin returns a candidate Configuration with member added, without
// applying it. The caller appends the candidate to the log and calls
// Apply once it has a log index.
func (c *Cluster) BuildJoin(member copycatpb.Member) (*Configuration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.current.MemberByID(member.ID); ok {
		return nil, ErrAlreadyMember
	}
	next := c.current.clone()
	next.Members.Add(member)
	return next, nil
}

// BuildLeave returns a candidate Configuration with memberID removed.
func (c *Cluster) BuildLeave(memberID uint64) (*Configuration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.current.MemberByID(memberID)
	if !ok {
		return nil, ErrUnknownMember
	}
	next := c.current.clone()
	next.Members.Remove(m)
	return next, nil
}

// BuildReconfigure returns a candidate Configuration replacing the member
// set wholesale.
func (c *Cluster) BuildReconfigure(members []copycatpb.Member) *Configuration {
	c.mu.RLock()
	term, timestamp := c.current.Term, c.current.Timestamp
	c.mu.RUnlock()
	return NewConfiguration(0, term, timestamp, members...)
}

// Apply installs cfg as the current configuration. It is used both by the
// leader after appending a configuration-change entry and by followers
// observing one during replication.
//
// (spec.md §4.3: "When a Configuration entry is observed during log
// replication (passive/follower), the cluster state is updated
// immediately so that role transitions can take effect")
func (c *Cluster) Apply(cfg *Configuration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = cfg
	if cfg.Index > c.lastConfigIndex {
		c.lastConfigIndex = cfg.Index
	}
	logger.Infof("applied configuration [index=%d term=%d members=%d]", cfg.Index, cfg.Term, cfg.Size())
}

// MarkAvailable flips memberID's status to AVAILABLE, e.g. on its first
// successful append response after being marked unavailable.
//
// (spec.md §4.7: "restore to AVAILABLE on first success")
func (c *Cluster) MarkAvailable(memberID uint64) {
	c.setStatus(memberID, copycatpb.MEMBER_STATUS_AVAILABLE)
}

// MarkUnavailable flips memberID's status to UNAVAILABLE, e.g. after N
// consecutive append failures past the election timeout.
//
// (spec.md §4.7: "Mark a member UNAVAILABLE after N consecutive failures
// past the election timeout")
func (c *Cluster) MarkUnavailable(memberID uint64) {
	c.setStatus(memberID, copycatpb.MEMBER_STATUS_UNAVAILABLE)
}

func (c *Cluster) setStatus(memberID uint64, status copycatpb.MemberStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.current.MemberByID(memberID)
	if !ok || m.Status == status {
		return
	}
	m.Status = status
	c.current.replace(m)
}
