package server

import "github.com/1008610010/copycat/copycatpb"

// HandleAppend services an incoming AppendRequest from the leader.
func (s *Server) HandleAppend(req copycatpb.AppendRequest) copycatpb.AppendResponse {
	resp := make(chan copycatpb.AppendResponse, 1)
	s.submit(&appendRPCCmd{req: req, resp: resp})
	return await(s, resp)
}

// HandleVote services an incoming Vote or (advisory) Poll request.
func (s *Server) HandleVote(req copycatpb.VoteRequest) copycatpb.VoteResponse {
	resp := make(chan copycatpb.VoteResponse, 1)
	s.submit(&voteRPCCmd{req: req, resp: resp})
	return await(s, resp)
}

// HandleInstall services one chunk of an incoming snapshot transfer.
func (s *Server) HandleInstall(req copycatpb.InstallRequest) copycatpb.InstallResponse {
	resp := make(chan copycatpb.InstallResponse, 1)
	s.submit(&installRPCCmd{req: req, resp: resp})
	return await(s, resp)
}

// handleAppend runs on the dispatch loop. It is the 6-step algorithm of
// spec.md §4.6: term check, leader recognition, log-consistency check,
// truncate-and-append, commitIndex advance, reply.
func (s *Server) handleAppend(req copycatpb.AppendRequest) copycatpb.AppendResponse {
	if req.Term < s.currentTerm {
		return copycatpb.AppendResponse{Status: copycatpb.STATUS_OK, Term: s.currentTerm, Succeeded: false}
	}

	if req.Term > s.currentTerm {
		s.becomeFollower(req.Term, req.Leader)
	} else if s.role != RoleFollower {
		s.becomeFollower(req.Term, req.Leader)
	} else {
		s.leaderID = req.Leader
	}
	s.electionTimer.Reset(s.randomizedElectionTimeout)

	if req.LogIndex > 0 {
		term, ok := s.log.Term(req.LogIndex)
		if !ok || term != req.LogTerm {
			hint := req.LogIndex - 1
			if s.log.LastIndex() < hint {
				hint = s.log.LastIndex()
			}
			return copycatpb.AppendResponse{Status: copycatpb.STATUS_OK, Term: s.currentTerm, Succeeded: false, LogIndex: hint}
		}
	}

	for i := range req.Entries {
		e := req.Entries[i]
		if existing, ok := s.log.Get(e.Index); ok {
			if existing.Term == e.Term {
				continue
			}
			if err := s.log.Truncate(e.Index - 1); err != nil {
				logger.Errorf("truncate at %d failed: %v", e.Index, err)
				return copycatpb.AppendResponse{Status: copycatpb.STATUS_ERROR, Term: s.currentTerm, Succeeded: false, LogIndex: s.log.LastIndex()}
			}
		}
		if _, err := s.log.Append(e.Term, e); err != nil {
			logger.Errorf("append entry %d failed: %v", e.Index, err)
			return copycatpb.AppendResponse{Status: copycatpb.STATUS_ERROR, Term: s.currentTerm, Succeeded: false, LogIndex: s.log.LastIndex()}
		}
		if e.Type == copycatpb.ENTRY_TYPE_CONFIGURATION {
			s.cluster.Apply(newConfigurationFromEntry(e))
		}
	}

	if req.CommitIndex > s.commitIndex {
		newCommit := req.CommitIndex
		if last := s.log.LastIndex(); newCommit > last {
			newCommit = last
		}
		if newCommit > s.commitIndex {
			s.commitIndex = newCommit
			s.log.Commit(newCommit)
			s.applyCommitted()
		}
	}

	return copycatpb.AppendResponse{Status: copycatpb.STATUS_OK, Term: s.currentTerm, Succeeded: true, LogIndex: s.log.LastIndex()}
}

// handleVote runs on the dispatch loop, implementing spec.md §4.6's
// Poll/Vote handling: Poll never records a vote or changes currentTerm
// down-stream state beyond what's needed to answer honestly.
func (s *Server) handleVote(req copycatpb.VoteRequest) copycatpb.VoteResponse {
	if req.Term < s.currentTerm {
		return copycatpb.VoteResponse{Status: copycatpb.STATUS_OK, Term: s.currentTerm, Granted: false}
	}

	if req.Term > s.currentTerm && !req.Poll {
		s.becomeFollower(req.Term, 0)
	}

	ourLastIndex := s.log.LastIndex()
	ourLastTerm, _ := s.log.Term(ourLastIndex)
	candidateUpToDate := req.LogTerm > ourLastTerm || (req.LogTerm == ourLastTerm && req.LogIndex >= ourLastIndex)

	canVote := req.Poll || s.votedFor == 0 || s.votedFor == req.Candidate

	if req.Term >= s.currentTerm && canVote && candidateUpToDate {
		if !req.Poll {
			s.votedFor = req.Candidate
			s.persistMeta()
			s.electionTimer.Reset(s.randomizedElectionTimeout)
		}
		return copycatpb.VoteResponse{Status: copycatpb.STATUS_OK, Term: s.currentTerm, Granted: true}
	}

	return copycatpb.VoteResponse{Status: copycatpb.STATUS_OK, Term: s.currentTerm, Granted: false}
}

// handleInstall runs on the dispatch loop, accepting one chunk of a
// snapshot transfer per spec.md §4.6/§6's Install RPC.
func (s *Server) handleInstall(req copycatpb.InstallRequest) copycatpb.InstallResponse {
	if req.Term < s.currentTerm {
		return copycatpb.InstallResponse{Status: copycatpb.STATUS_OK, Term: s.currentTerm}
	}
	if req.Term > s.currentTerm || s.role != RoleFollower {
		s.becomeFollower(req.Term, req.Leader)
	}
	s.electionTimer.Reset(s.randomizedElectionTimeout)

	w, ok := s.installWriters[req.ID]
	if !ok {
		var err error
		w, err = s.snapshots.CreateSnapshot(req.ID, req.Index)
		if err != nil {
			logger.Errorf("create snapshot writer for %d failed: %v", req.ID, err)
			return copycatpb.InstallResponse{Status: copycatpb.STATUS_ERROR, Term: s.currentTerm}
		}
		s.installWriters[req.ID] = w
	}

	if _, err := w.Write(req.Data); err != nil {
		logger.Errorf("write snapshot chunk for %d failed: %v", req.ID, err)
		return copycatpb.InstallResponse{Status: copycatpb.STATUS_ERROR, Term: s.currentTerm}
	}

	if req.Complete {
		delete(s.installWriters, req.ID)
		if err := w.Persist(); err != nil {
			logger.Errorf("persist snapshot %d failed: %v", req.ID, err)
			return copycatpb.InstallResponse{Status: copycatpb.STATUS_ERROR, Term: s.currentTerm}
		}
		if err := w.Complete(); err != nil {
			logger.Errorf("complete snapshot %d failed: %v", req.ID, err)
			return copycatpb.InstallResponse{Status: copycatpb.STATUS_ERROR, Term: s.currentTerm}
		}
		if req.Index > s.commitIndex {
			s.commitIndex = req.Index
			s.log.Commit(req.Index)
		}
		if req.Index > s.lastApplied {
			s.lastApplied = req.Index
		}
		if err := s.log.Compact(req.Index); err != nil {
			logger.Errorf("compact log to %d after install failed: %v", req.Index, err)
		}
	}

	return copycatpb.InstallResponse{Status: copycatpb.STATUS_OK, Term: s.currentTerm}
}
