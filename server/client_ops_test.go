package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1008610010/copycat/cluster"
	"github.com/1008610010/copycat/copycatpb"
)

// TestConfigureAppliesConfigurationBeforeCommit exercises the same
// propose-then-apply sequence Configure's handler runs, without blocking on
// commit (the peer is unreachable via noopTransport, so the proposal would
// never commit in this setup). It asserts the fix for the race the review
// flagged: a Configuration entry must take effect on the leader's cluster
// immediately on append, not on commit, or CanPropose's single-pending-
// configuration gate would admit a second concurrent reconfiguration.
func TestConfigureAppliesConfigurationBeforeCommit(t *testing.T) {
	srv := newTestServer(t, twoMemberSelf()...)
	srv.role = RoleLeader
	srv.initialized = true
	srv.currentTerm = 1
	srv.appender = newAppender(srv)

	require.NoError(t, srv.cluster.CanPropose(srv.commitIndex, srv.initialized))

	newMembers := append(twoMemberSelf(), copycatpb.Member{ID: 3, Type: copycatpb.MEMBER_TYPE_ACTIVE, ServerAddress: "peer3:0"})
	res := srv.propose(copycatpb.Entry{Type: copycatpb.ENTRY_TYPE_CONFIGURATION, Members: newMembers})
	require.Nil(t, res.err)

	srv.cluster.Apply(newConfigurationFromEntry(copycatpb.Entry{
		Index:   res.index,
		Term:    srv.currentTerm,
		Members: newMembers,
	}))

	require.Equal(t, res.index, srv.cluster.LastConfigIndex())
	_, ok := srv.cluster.Configuration().MemberByID(3)
	require.True(t, ok)

	err := srv.cluster.CanPropose(srv.commitIndex, srv.initialized)
	require.ErrorIs(t, err, cluster.ErrConfiguring)
}
