package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1008610010/copycat/copycatpb"
)

func member(id uint64, t copycatpb.MemberType) copycatpb.Member {
	return copycatpb.Member{ID: id, Type: t, Status: copycatpb.MEMBER_STATUS_AVAILABLE}
}

func TestConfigurationMemberQueries(t *testing.T) {
	cfg := NewConfiguration(1, 1, 0,
		member(1, copycatpb.MEMBER_TYPE_ACTIVE),
		member(2, copycatpb.MEMBER_TYPE_ACTIVE),
		member(3, copycatpb.MEMBER_TYPE_PASSIVE),
	)

	require.Len(t, cfg.ActiveMembers(), 2)
	require.Len(t, cfg.PassiveMembers(), 1)
	require.Equal(t, 3, cfg.Size())

	m, ok := cfg.MemberByID(2)
	require.True(t, ok)
	require.Equal(t, copycatpb.MEMBER_TYPE_ACTIVE, m.Type)

	_, ok = cfg.MemberByID(99)
	require.False(t, ok)
}

func TestCanProposeRejectsWhileConfiguringOrInitializing(t *testing.T) {
	c := New(NewConfiguration(5, 1, 0, member(1, copycatpb.MEMBER_TYPE_ACTIVE)))

	require.ErrorIs(t, c.CanPropose(10, false), ErrInitializing)
	require.NoError(t, c.CanPropose(10, true))

	c2 := New(NewConfiguration(12, 1, 0, member(1, copycatpb.MEMBER_TYPE_ACTIVE)))
	require.ErrorIs(t, c2.CanPropose(10, true), ErrConfiguring)
	require.NoError(t, c2.CanPropose(12, true))
}

func TestJoinAndLeave(t *testing.T) {
	c := New(NewConfiguration(1, 1, 0, member(1, copycatpb.MEMBER_TYPE_ACTIVE)))

	next, err := c.BuildJoin(member(2, copycatpb.MEMBER_TYPE_PASSIVE))
	require.NoError(t, err)
	require.Equal(t, 2, next.Size())

	_, err = c.BuildJoin(member(1, copycatpb.MEMBER_TYPE_ACTIVE))
	require.ErrorIs(t, err, ErrAlreadyMember)

	next.Index = 2
	c.Apply(next)
	require.Equal(t, uint64(2), c.LastConfigIndex())
	require.Equal(t, 2, c.Configuration().Size())

	next2, err := c.BuildLeave(2)
	require.NoError(t, err)
	require.Equal(t, 1, next2.Size())

	_, err = c.BuildLeave(99)
	require.ErrorIs(t, err, ErrUnknownMember)
}

func TestMarkAvailableUnavailable(t *testing.T) {
	c := New(NewConfiguration(1, 1, 0, member(1, copycatpb.MEMBER_TYPE_ACTIVE)))

	c.MarkUnavailable(1)
	m, _ := c.Configuration().MemberByID(1)
	require.Equal(t, copycatpb.MEMBER_STATUS_UNAVAILABLE, m.Status)

	c.MarkAvailable(1)
	m, _ = c.Configuration().MemberByID(1)
	require.Equal(t, copycatpb.MEMBER_STATUS_AVAILABLE, m.Status)
}

func TestObserveAppliesImmediately(t *testing.T) {
	c := New(NewConfiguration(1, 1, 0, member(1, copycatpb.MEMBER_TYPE_ACTIVE)))

	observed := NewConfiguration(7, 2, 1000, member(1, copycatpb.MEMBER_TYPE_ACTIVE), member(2, copycatpb.MEMBER_TYPE_ACTIVE))
	c.Apply(observed)

	require.Equal(t, uint64(7), c.LastConfigIndex())
	require.Equal(t, 2, c.Configuration().Size())
}
