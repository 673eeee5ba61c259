// Package cluster tracks the replicated set of members and the single
// pending-configuration invariant of spec.md §4.3.
package cluster

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/1008610010/copycat/copycatpb"
)

// Configuration is one version of the cluster's membership, tagged with
// the log index and term it was logged at.
//
// (spec.md §4.3 data model: Members is a set<Member>, which is why Member
// in copycatpb is kept free of slices/maps so it stays comparable and can
// live directly in a mapset.Set)
type Configuration struct {
	Index     uint64
	Term      uint64
	Timestamp int64
	Members   mapset.Set
}

// NewConfiguration builds a Configuration from a fixed member list.
func NewConfiguration(index, term uint64, timestamp int64, members ...copycatpb.Member) *Configuration {
	set := mapset.NewSet()
	for _, m := range members {
		set.Add(m)
	}
	return &Configuration{Index: index, Term: term, Timestamp: timestamp, Members: set}
}

// clone returns a Configuration with an independent copy of the member set,
// so that building a candidate next configuration never mutates the one
// currently in effect.
func (c *Configuration) clone() *Configuration {
	return &Configuration{
		Index:     c.Index,
		Term:      c.Term,
		Timestamp: c.Timestamp,
		Members:   c.Members.Clone(),
	}
}

// membersOfType returns every member whose Type matches t.
func (c *Configuration) membersOfType(t copycatpb.MemberType) []copycatpb.Member {
	var out []copycatpb.Member
	c.Members.Each(func(v interface{}) bool {
		if m := v.(copycatpb.Member); m.Type == t {
			out = append(out, m)
		}
		return false
	})
	return out
}

// ActiveMembers returns every voting member.
func (c *Configuration) ActiveMembers() []copycatpb.Member {
	return c.membersOfType(copycatpb.MEMBER_TYPE_ACTIVE)
}

// PassiveMembers returns every non-voting replication target.
func (c *Configuration) PassiveMembers() []copycatpb.Member {
	return c.membersOfType(copycatpb.MEMBER_TYPE_PASSIVE)
}

// ReserveMembers returns every member not currently receiving entries.
func (c *Configuration) ReserveMembers() []copycatpb.Member {
	return c.membersOfType(copycatpb.MEMBER_TYPE_RESERVE)
}

// MemberByID returns the member with the given id, if present.
func (c *Configuration) MemberByID(id uint64) (copycatpb.Member, bool) {
	var found copycatpb.Member
	ok := false
	c.Members.Each(func(v interface{}) bool {
		if m := v.(copycatpb.Member); m.ID == id {
			found, ok = m, true
			return true
		}
		return false
	})
	return found, ok
}

// AllMembers returns every member regardless of type, suitable for logging
// the full configuration into a new CONFIGURATION entry.
func (c *Configuration) AllMembers() []copycatpb.Member {
	out := make([]copycatpb.Member, 0, c.Members.Cardinality())
	c.Members.Each(func(v interface{}) bool {
		out = append(out, v.(copycatpb.Member))
		return false
	})
	return out
}

// Size returns the total member count across all types.
func (c *Configuration) Size() int {
	return c.Members.Cardinality()
}

// replace swaps out the member with matching ID for updated, used to flip a
// member's Status between AVAILABLE and UNAVAILABLE without a full
// reconfiguration.
func (c *Configuration) replace(updated copycatpb.Member) {
	c.Members.Each(func(v interface{}) bool {
		if m := v.(copycatpb.Member); m.ID == updated.ID {
			c.Members.Remove(m)
			return true
		}
		return false
	})
	c.Members.Add(updated)
}
