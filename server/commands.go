package server

import "github.com/1008610010/copycat/copycatpb"

// command is one unit of work handed to the single-threaded dispatch loop.
// Every field that Append/Vote/Install/become* touch is mutated exclusively
// from inside execute, run on the loop goroutine — the "executor context"
// of spec.md §4.5 and §5 extended to cover role/term/commitIndex as well.
//
// (generalizes raft/node.go's per-message-type channel set — tickCh,
// incomingMessageCh, incomingProposalMessageCh, configChangeCh — into one
// tagged command queue feeding a single select loop)
type command interface {
	execute(s *Server)
}

// appendRPCCmd is an incoming AppendRequest from a peer.
type appendRPCCmd struct {
	req  copycatpb.AppendRequest
	resp chan copycatpb.AppendResponse
}

func (c *appendRPCCmd) execute(s *Server) { c.resp <- s.handleAppend(c.req) }

// voteRPCCmd is an incoming Vote or Poll request from a peer.
type voteRPCCmd struct {
	req  copycatpb.VoteRequest
	resp chan copycatpb.VoteResponse
}

func (c *voteRPCCmd) execute(s *Server) { c.resp <- s.handleVote(c.req) }

// installRPCCmd is an incoming snapshot chunk from the leader.
type installRPCCmd struct {
	req  copycatpb.InstallRequest
	resp chan copycatpb.InstallResponse
}

func (c *installRPCCmd) execute(s *Server) { c.resp <- s.handleInstall(c.req) }

// appendResultCmd delivers the outcome of an outbound AppendRequest the
// appender sent on a background goroutine.
type appendResultCmd struct {
	member copycatpb.Member
	req    copycatpb.AppendRequest
	resp   copycatpb.AppendResponse
	err    error
}

func (c *appendResultCmd) execute(s *Server) {
	if s.role != RoleLeader || s.appender == nil {
		return
	}
	p, ok := s.appender.progress[c.member.ID]
	if !ok {
		return
	}
	if c.err != nil {
		s.appender.onFailure(c.member, p)
		return
	}
	s.appender.onResponse(c.member, p, c.req, c.resp)
}

// voteResultCmd delivers the outcome of an outbound Vote or (advisory)
// Poll request.
type voteResultCmd struct {
	from copycatpb.Member
	term uint64
	resp copycatpb.VoteResponse
	err  error
	poll bool
}

func (c *voteResultCmd) execute(s *Server) {
	if c.poll {
		if !s.polling || c.term != s.pollTerm {
			return
		}
		if c.err != nil {
			return
		}
		if c.resp.Term > s.currentTerm {
			s.stepDown(c.resp.Term)
			return
		}
		s.onPollResponse(c.from.ID, c.resp.Granted)
		return
	}

	if s.role != RoleCandidate || c.term != s.currentTerm {
		return
	}
	if c.err != nil {
		return
	}
	if c.resp.Term > s.currentTerm {
		s.stepDown(c.resp.Term)
		return
	}
	s.onVoteResponse(c.from.ID, c.resp.Granted)
}

// electionTimeoutCmd fires a candidate's restart-campaign or a follower's
// start-campaign transition.
type electionTimeoutCmd struct{}

func (c *electionTimeoutCmd) execute(s *Server) { s.onElectionTimeout() }

// heartbeatTimeoutCmd fires the leader's next append cycle.
type heartbeatTimeoutCmd struct{}

func (c *heartbeatTimeoutCmd) execute(s *Server) { s.onHeartbeatTimeout() }

// funcCmd adapts an arbitrary closure to command, used by the client-facing
// operation handlers (client_ops.go) where a dedicated type per RPC would
// be pure boilerplate over the same "run on the loop, reply on a channel"
// shape appendRPCCmd and friends already show.
type funcCmd struct {
	fn func(s *Server)
}

func (c *funcCmd) execute(s *Server) { c.fn(s) }
