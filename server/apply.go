package server

import (
	"github.com/1008610010/copycat/cluster"
	"github.com/1008610010/copycat/copycatpb"
)

func newConfigurationFromEntry(entry copycatpb.Entry) *cluster.Configuration {
	return cluster.NewConfiguration(entry.Index, entry.Term, entry.Timestamp, entry.Members...)
}

// applyCommitted drives committed-but-not-yet-applied entries through the
// executor (and, for CONFIGURATION entries, the cluster), in index order.
//
// (spec.md §4.5: applying is deterministic and strictly ordered by log
// index; grounded on raft's "apply entries up to CommittedIndex" discipline
// in raft_node.go, generalized to also special-case CONFIGURATION entries
// which the executor itself has no business knowing about)
func (s *Server) applyCommitted() {
	for s.lastApplied < s.commitIndex {
		entry, ok := s.log.Get(s.lastApplied + 1)
		if !ok {
			return
		}

		if entry.Type == copycatpb.ENTRY_TYPE_CONFIGURATION {
			s.cluster.Apply(newConfigurationFromEntry(entry))
		}

		s.executor.Apply(entry)

		if entry.Type == copycatpb.ENTRY_TYPE_INITIALIZE && s.role == RoleLeader && entry.Term == s.currentTerm {
			s.initialized = true
		}

		s.lastApplied = entry.Index
	}
}
