package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1008610010/copycat/copycatpb"
)

func TestOnElectionTimeoutIgnoredForNonVotingRoles(t *testing.T) {
	for _, role := range []Role{RoleLeader, RolePassive, RoleReserve, RoleInactive} {
		srv := newTestServer(t, twoMemberSelf()...)
		srv.role = role
		termBefore := srv.currentTerm

		srv.onElectionTimeout()
		require.Equal(t, role, srv.role)
		require.Equal(t, termBefore, srv.currentTerm)
	}
}

func TestOnElectionTimeoutStartsPollRoundForFollower(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	srv.role = RoleFollower

	// with a peer unreachable and quorumSize 2, the advisory poll round
	// cannot reach quorum on self alone, so the term is never bumped and
	// role stays Follower — per spec.md §4.6, Poll precedes Vote and must
	// not disrupt the cluster on its own.
	srv.onElectionTimeout()
	require.Equal(t, RoleFollower, srv.role)
	require.Equal(t, uint64(0), srv.currentTerm)
	require.True(t, srv.polling)
	require.True(t, srv.pollsGranted[srv.id])
}

func TestPollQuorumStartsBindingCampaign(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	srv.role = RoleFollower
	srv.polling = true
	srv.pollTerm = 0
	srv.pollsGranted = map[uint64]bool{srv.id: true}

	srv.onPollResponse(2, true)
	require.Equal(t, RoleCandidate, srv.role)
	require.Equal(t, uint64(1), srv.currentTerm)
	require.True(t, srv.votesGranted[srv.id])
	require.False(t, srv.polling)
}

func TestStalePollResultIgnoredAfterPollRoundEnds(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	srv.role = RoleFollower
	srv.polling = false
	srv.pollTerm = 0

	cmd := &voteResultCmd{from: copycatpb.Member{ID: 2}, term: 0, resp: copycatpb.VoteResponse{Term: 0, Granted: true}, poll: true}
	cmd.execute(srv)
	require.Equal(t, RoleFollower, srv.role)
}

func TestCampaignSingleActiveMemberBecomesLeaderImmediately(t *testing.T) {
	srv := newTestServer(t, []copycatpb.Member{
		{ID: 1, Type: copycatpb.MEMBER_TYPE_ACTIVE, ServerAddress: "self:0"},
	}...)
	srv.role = RoleFollower

	srv.campaign()
	require.Equal(t, RoleLeader, srv.role)
}

func TestOnVoteResponseIgnoresDenial(t *testing.T) {
	srv := newTestServer(t, threeMemberSelf()...)
	srv.role = RoleCandidate
	srv.currentTerm = 1
	srv.votesGranted = map[uint64]bool{srv.id: true}

	srv.onVoteResponse(2, false)
	require.Equal(t, RoleCandidate, srv.role)
}

func TestOnVoteResponsePromotesOnQuorum(t *testing.T) {
	srv := newTestServer(t, threeMemberSelf()...)
	srv.role = RoleCandidate
	srv.currentTerm = 1
	srv.votesGranted = map[uint64]bool{srv.id: true}

	srv.onVoteResponse(2, true)
	require.Equal(t, RoleLeader, srv.role)
}
