package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1008610010/copycat/copycatpb"
)

func TestApplyCommittedStopsAtFirstMissingEntry(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)

	_, err := srv.log.Append(1, copycatpb.Entry{Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.NoError(t, err)
	srv.commitIndex = 5 // further than the log actually reaches

	srv.applyCommitted()
	require.Equal(t, uint64(1), srv.lastApplied)
}

func TestApplyCommittedAppliesConfigurationToCluster(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)

	newMembers := append(twoMemberSelf(), copycatpb.Member{ID: 3, Type: copycatpb.MEMBER_TYPE_ACTIVE, ServerAddress: "peer3:0"})
	_, err := srv.log.Append(1, copycatpb.Entry{Type: copycatpb.ENTRY_TYPE_CONFIGURATION, Members: newMembers})
	require.NoError(t, err)
	srv.commitIndex = 1

	srv.applyCommitted()

	_, ok := srv.cluster.Configuration().MemberByID(3)
	require.True(t, ok)
}

func TestApplyCommittedMarksInitializedOnlyForLeaderOwnEntry(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	srv.currentTerm = 3
	srv.role = RoleLeader

	_, err := srv.log.Append(3, copycatpb.Entry{Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.NoError(t, err)
	srv.commitIndex = 1

	srv.applyCommitted()
	require.True(t, srv.initialized)
}
