package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleString(t *testing.T) {
	cases := map[Role]string{
		RoleInactive:  "INACTIVE",
		RoleReserve:   "RESERVE",
		RolePassive:   "PASSIVE",
		RoleFollower:  "FOLLOWER",
		RoleCandidate: "CANDIDATE",
		RoleLeader:    "LEADER",
		Role(99):      "UNKNOWN",
	}
	for role, want := range cases {
		require.Equal(t, want, role.String())
	}
}
