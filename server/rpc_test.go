package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1008610010/copycat/cluster"
	"github.com/1008610010/copycat/copycatpb"
)

// newTestServer builds a Server without calling Start, so tests can drive
// handleAppend/handleVote/handleInstall directly on the calling goroutine
// instead of through the dispatch loop and its timers.
func newTestServer(t *testing.T, members ...copycatpb.Member) *Server {
	t.Helper()
	dir := t.TempDir()
	initial := cluster.NewConfiguration(0, 0, 0, members...)
	cfg := Config{
		Name:              "n1",
		Dir:               dir,
		ServerAddress:     members[0].ServerAddress,
		ElectionTimeout:   50 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
		SessionTimeout:    500 * time.Millisecond,
	}
	srv, err := New(cfg, noopTransport{}, &memStateMachine{}, initial)
	require.NoError(t, err)
	srv.electionTimer = time.NewTimer(time.Hour)
	srv.heartbeatTimer = time.NewTimer(time.Hour)
	t.Cleanup(func() {
		require.NoError(t, srv.log.Close())
		require.NoError(t, srv.snapshots.Close())
	})
	return srv
}

func twoMemberSelf() []copycatpb.Member {
	return []copycatpb.Member{
		{ID: 1, Type: copycatpb.MEMBER_TYPE_ACTIVE, ServerAddress: "self:0"},
		{ID: 2, Type: copycatpb.MEMBER_TYPE_ACTIVE, ServerAddress: "peer:0"},
	}
}

func TestHandleAppendRejectsStaleTerm(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	srv.currentTerm = 5

	resp := srv.handleAppend(copycatpb.AppendRequest{Term: 3, Leader: 2})
	require.False(t, resp.Succeeded)
	require.Equal(t, uint64(5), resp.Term)
}

func TestHandleAppendBecomesFollowerOnHigherTerm(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	srv.role = RoleCandidate
	srv.currentTerm = 1

	resp := srv.handleAppend(copycatpb.AppendRequest{Term: 2, Leader: 2})
	require.True(t, resp.Succeeded)
	require.Equal(t, RoleFollower, srv.role)
	require.Equal(t, uint64(2), srv.leaderID)
	require.Equal(t, uint64(2), srv.currentTerm)
}

func TestHandleAppendLogConsistencyCheckFailsOnGap(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)

	resp := srv.handleAppend(copycatpb.AppendRequest{Term: 1, Leader: 2, LogIndex: 5, LogTerm: 1})
	require.False(t, resp.Succeeded)
}

func TestHandleAppendAppendsEntriesAndAdvancesCommit(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)

	resp := srv.handleAppend(copycatpb.AppendRequest{
		Term:   1,
		Leader: 2,
		Entries: []copycatpb.Entry{
			{Index: 1, Term: 1, Type: copycatpb.ENTRY_TYPE_INITIALIZE},
		},
		CommitIndex: 1,
	})
	require.True(t, resp.Succeeded)
	require.Equal(t, uint64(1), srv.log.LastIndex())
	require.Equal(t, uint64(1), srv.commitIndex)
	require.Equal(t, uint64(1), srv.lastApplied)
}

func TestHandleAppendTruncatesConflictingSuffix(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)

	_, err := srv.log.Append(1, copycatpb.Entry{Index: 1, Term: 1, Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.NoError(t, err)
	_, err = srv.log.Append(1, copycatpb.Entry{Index: 2, Term: 1, Type: copycatpb.ENTRY_TYPE_METADATA})
	require.NoError(t, err)

	resp := srv.handleAppend(copycatpb.AppendRequest{
		Term:     2,
		Leader:   2,
		LogIndex: 1,
		LogTerm:  1,
		Entries: []copycatpb.Entry{
			{Index: 2, Term: 2, Type: copycatpb.ENTRY_TYPE_CONFIGURATION},
		},
	})
	require.True(t, resp.Succeeded)

	e, ok := srv.log.Get(2)
	require.True(t, ok)
	require.Equal(t, uint64(2), e.Term)
	require.Equal(t, copycatpb.ENTRY_TYPE_CONFIGURATION, e.Type)
}

func TestHandleVoteGrantedForUpToDateCandidate(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)

	resp := srv.handleVote(copycatpb.VoteRequest{Term: 1, Candidate: 2, LogIndex: 0, LogTerm: 0})
	require.True(t, resp.Granted)
	require.Equal(t, uint64(2), srv.votedFor)
}

func TestHandleVoteDeniedToSecondCandidateSameTerm(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)

	first := srv.handleVote(copycatpb.VoteRequest{Term: 1, Candidate: 2})
	require.True(t, first.Granted)

	second := srv.handleVote(copycatpb.VoteRequest{Term: 1, Candidate: 3})
	require.False(t, second.Granted)
}

func TestHandleVoteDeniedWhenLogIsBehind(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	_, err := srv.log.Append(1, copycatpb.Entry{Index: 1, Term: 1, Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.NoError(t, err)

	resp := srv.handleVote(copycatpb.VoteRequest{Term: 2, Candidate: 2, LogIndex: 0, LogTerm: 0})
	require.False(t, resp.Granted)
}

func TestHandleVotePollDoesNotRecordVote(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)

	resp := srv.handleVote(copycatpb.VoteRequest{Term: 1, Candidate: 2, Poll: true})
	require.True(t, resp.Granted)
	require.Equal(t, uint64(0), srv.votedFor)
	require.Equal(t, uint64(0), srv.currentTerm)
}

func TestHandleVoteRejectsStaleTerm(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	srv.currentTerm = 5

	resp := srv.handleVote(copycatpb.VoteRequest{Term: 3, Candidate: 2})
	require.False(t, resp.Granted)
	require.Equal(t, uint64(5), resp.Term)
}
