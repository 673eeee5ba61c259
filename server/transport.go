package server

import "github.com/1008610010/copycat/copycatpb"

// Transport is everything a Server needs from the network layer to reach
// another member. A concrete implementation lives in package transport;
// server only depends on this narrow interface, the way raft.Node depends
// on nothing more than a mailbox of raftpb.Message.
type Transport interface {
	SendAppend(address string, req copycatpb.AppendRequest) (copycatpb.AppendResponse, error)
	SendVote(address string, req copycatpb.VoteRequest) (copycatpb.VoteResponse, error)
	SendInstall(address string, req copycatpb.InstallRequest) (copycatpb.InstallResponse, error)
}
