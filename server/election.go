package server

import (
	"time"

	"github.com/1008610010/copycat/copycatpb"
)

// onElectionTimeout fires when no AppendRequest or granted vote has reset
// the election timer in time: the replica starts (or restarts) a campaign.
//
// (grounded on raft/raft_step_follower_candidate.go's
// tickFuncFollowerElectionTimeout + followerStartCampaign, collapsed into
// one step since this implementation has no separate internal-message hop)
func (s *Server) onElectionTimeout() {
	switch s.role {
	case RoleFollower, RoleCandidate:
		s.campaign()
	case RoleLeader, RolePassive, RoleReserve, RoleInactive:
		// leaders run on the heartbeat timer instead; passive/reserve/
		// inactive members never stand for election.
	}
}

// campaign issues an advisory Poll round at the current term before
// committing to a binding candidacy, per spec.md §4.6: "issues Poll
// (pre-vote) then Vote requests with incremented term." A poll that a
// quorum grants means the candidate's log is plausibly electable without
// yet bumping the term and disrupting a cluster that might still have a
// live leader the candidate just can't reach.
func (s *Server) campaign() {
	s.polling = true
	s.pollTerm = s.currentTerm
	s.pollsGranted = map[uint64]bool{s.id: true}
	s.randomizeElectionTimeout()

	if len(s.pollsGranted) >= s.quorumSize() {
		s.startCampaign()
		return
	}

	lastIndex := s.log.LastIndex()
	lastTerm, _ := s.log.Term(lastIndex)
	term := s.pollTerm

	for _, m := range s.cluster.Configuration().ActiveMembers() {
		if m.ID == s.id {
			continue
		}
		req := copycatpb.VoteRequest{Term: term, Candidate: s.id, LogIndex: lastIndex, LogTerm: lastTerm, Poll: true}
		srv := s
		member := m
		go func() {
			resp, err := srv.transport.SendVote(member.ServerAddress, req)
			srv.submit(&voteResultCmd{from: member, term: term, resp: resp, err: err, poll: true})
		}()
	}
}

// onPollResponse tallies a granted poll and starts the binding candidacy
// once a quorum of peers has pre-approved it.
func (s *Server) onPollResponse(fromID uint64, granted bool) {
	if !granted {
		return
	}
	s.pollsGranted[fromID] = true
	if len(s.pollsGranted) >= s.quorumSize() {
		s.startCampaign()
	}
}

// startCampaign ends the pre-vote round, transitions to Candidate with an
// incremented term, and broadcasts the binding Vote requests.
func (s *Server) startCampaign() {
	s.polling = false
	s.becomeCandidate()

	if len(s.votesGranted) >= s.quorumSize() {
		s.becomeLeader()
		return
	}

	lastIndex := s.log.LastIndex()
	lastTerm, _ := s.log.Term(lastIndex)
	term := s.currentTerm

	for _, m := range s.cluster.Configuration().ActiveMembers() {
		if m.ID == s.id {
			continue
		}
		req := copycatpb.VoteRequest{Term: term, Candidate: s.id, LogIndex: lastIndex, LogTerm: lastTerm}
		srv := s
		member := m
		go func() {
			resp, err := srv.transport.SendVote(member.ServerAddress, req)
			srv.submit(&voteResultCmd{from: member, term: term, resp: resp, err: err})
		}()
	}
}

// onVoteResponse tallies a granted vote and promotes to Leader once a
// quorum has been reached.
func (s *Server) onVoteResponse(fromID uint64, granted bool) {
	if !granted {
		return
	}
	s.votesGranted[fromID] = true
	if len(s.votesGranted) >= s.quorumSize() {
		s.becomeLeader()
	}
}

// onHeartbeatTimeout drives the leader's next append cycle.
func (s *Server) onHeartbeatTimeout() {
	if s.role != RoleLeader || s.appender == nil {
		return
	}
	s.appender.tick(time.Now())
}
