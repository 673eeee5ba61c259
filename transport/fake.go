package transport

import (
	"fmt"
	"sync"

	"github.com/1008610010/copycat/copycatpb"
)

// fakePeer is the narrow view of server.Server a Fake route needs to reach
// a registered replica directly, without going over the network.
type fakePeer interface {
	HandleAppend(copycatpb.AppendRequest) copycatpb.AppendResponse
	HandleVote(copycatpb.VoteRequest) copycatpb.VoteResponse
	HandleInstall(copycatpb.InstallRequest) copycatpb.InstallResponse
}

// Fake is an in-process server.Transport, routing by address through a
// table registered with Register. It supersedes the teacher's rafttest
// in-memory network for this module's test suites, since no such harness
// ships anywhere in this dependency surface.
type Fake struct {
	mu      sync.RWMutex
	peers   map[string]fakePeer
	dropped map[string]bool
}

// NewFake returns an empty Fake routing table.
func NewFake() *Fake {
	return &Fake{peers: make(map[string]fakePeer), dropped: make(map[string]bool)}
}

// Register binds an address to a replica's RPC surface.
func (f *Fake) Register(address string, peer fakePeer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[address] = peer
}

// Partition makes every send to address fail, simulating a network split.
func (f *Fake) Partition(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped[address] = true
}

// Heal reverses a prior Partition.
func (f *Fake) Heal(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dropped, address)
}

func (f *Fake) lookup(address string) (fakePeer, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.dropped[address] {
		return nil, fmt.Errorf("transport: %s is partitioned", address)
	}
	p, ok := f.peers[address]
	if !ok {
		return nil, fmt.Errorf("transport: no peer registered at %s", address)
	}
	return p, nil
}

// SendAppend implements server.Transport.
func (f *Fake) SendAppend(address string, req copycatpb.AppendRequest) (copycatpb.AppendResponse, error) {
	p, err := f.lookup(address)
	if err != nil {
		return copycatpb.AppendResponse{}, err
	}
	return p.HandleAppend(req), nil
}

// SendVote implements server.Transport.
func (f *Fake) SendVote(address string, req copycatpb.VoteRequest) (copycatpb.VoteResponse, error) {
	p, err := f.lookup(address)
	if err != nil {
		return copycatpb.VoteResponse{}, err
	}
	return p.HandleVote(req), nil
}

// SendInstall implements server.Transport.
func (f *Fake) SendInstall(address string, req copycatpb.InstallRequest) (copycatpb.InstallResponse, error) {
	p, err := f.lookup(address)
	if err != nil {
		return copycatpb.InstallResponse{}, err
	}
	return p.HandleInstall(req), nil
}
