package server

import (
	"time"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/session"
)

// leaderAddress returns the current leader's client-facing address, for use
// as a retry hint on NO_LEADER errors.
func (s *Server) leaderAddress() string {
	m, ok := s.cluster.Configuration().MemberByID(s.leaderID)
	if !ok {
		return ""
	}
	return m.ClientAddress
}

func (s *Server) noLeaderError() *copycatpb.Error {
	err := copycatpb.NewError(copycatpb.ERROR_NO_LEADER, "%v", ErrNotLeader)
	err.LeaderHint = s.leaderAddress()
	return err
}

func (s *Server) memberAddresses() []copycatpb.Member {
	cfg := s.cluster.Configuration()
	return append(cfg.ActiveMembers(), cfg.PassiveMembers()...)
}

type proposeResult struct {
	future *appendFuture
	index  uint64
	err    *copycatpb.Error
}

// propose appends entry under the leader's current term and registers a
// commit future, failing fast if this replica is not the leader.
func (s *Server) propose(entry copycatpb.Entry) proposeResult {
	if s.role != RoleLeader {
		return proposeResult{err: s.noLeaderError()}
	}
	entry.Timestamp = time.Now().UnixMilli()
	idx, err := s.log.Append(s.currentTerm, entry)
	if err != nil {
		return proposeResult{err: copycatpb.NewError(copycatpb.ERROR_INTERNAL_ERROR, "%v", err)}
	}
	future := s.appender.appendEntries(idx)
	s.appender.recomputeCommitIndex() // covers the single-active-member cluster, which never receives its own ack
	return proposeResult{future: future, index: idx}
}

// Connect binds a transport connection to a session and reports cluster
// metadata, per spec.md §6's Connect RPC.
func (s *Server) Connect(req copycatpb.ConnectRequest) copycatpb.ConnectResponse {
	resultCh := make(chan copycatpb.ConnectResponse, 1)
	s.submit(&funcCmd{fn: func(s *Server) {
		if req.Session != 0 {
			if sess, err := s.sessions.Get(req.Session); err == nil {
				sess.Bind(req.ConnectionID)
			}
		}
		resultCh <- copycatpb.ConnectResponse{Leader: s.leaderAddress(), Members: s.memberAddresses()}
	}})
	return await(s, resultCh)
}

// Register opens a new session via an OPEN_SESSION log entry.
func (s *Server) Register(req copycatpb.RegisterRequest) copycatpb.RegisterResponse {
	type out struct {
		res proposeResult
		to  int64
	}
	resultCh := make(chan out, 1)
	s.submit(&funcCmd{fn: func(s *Server) {
		to := req.Timeout
		if to == 0 {
			to = s.config.SessionTimeout.Milliseconds()
		}
		res := s.propose(copycatpb.Entry{
			Type:           copycatpb.ENTRY_TYPE_OPEN_SESSION,
			SessionName:    req.Name,
			SessionType:    req.Type,
			SessionTimeout: to,
		})
		resultCh <- out{res: res, to: to}
	}})
	o := await(s, resultCh)
	if o.res.err != nil {
		return copycatpb.RegisterResponse{Error: o.res.err}
	}
	if ferr := o.res.future.Wait(); ferr != nil {
		return copycatpb.RegisterResponse{Error: ferr}
	}
	return copycatpb.RegisterResponse{
		Session: o.res.index, // spec.md §4.4: "session id = the log index of its OPEN_SESSION entry"
		Leader:  s.leaderAddress(),
		Members: s.memberAddresses(),
		Timeout: o.to,
	}
}

// KeepAlive appends a batched liveness/ack update, per spec.md §4.4.
func (s *Server) KeepAlive(req copycatpb.KeepAliveRequest) copycatpb.KeepAliveResponse {
	resultCh := make(chan proposeResult, 1)
	s.submit(&funcCmd{fn: func(s *Server) {
		resultCh <- s.propose(copycatpb.Entry{
			Type:                      copycatpb.ENTRY_TYPE_KEEP_ALIVE,
			KeepAliveSessionIDs:       req.SessionIDs,
			KeepAliveCommandSequences: req.CommandSequences,
			KeepAliveEventIndexes:     req.EventIndexes,
			KeepAliveConnectionIDs:    req.ConnectionIDs,
		})
	}})
	res := await(s, resultCh)
	if res.err != nil {
		return copycatpb.KeepAliveResponse{Error: res.err}
	}
	if ferr := res.future.Wait(); ferr != nil {
		return copycatpb.KeepAliveResponse{Error: ferr}
	}
	return copycatpb.KeepAliveResponse{Leader: s.leaderAddress(), Members: s.memberAddresses(), Events: s.drainEvents(req.SessionIDs)}
}

// drainEvents collects the pending events for every session named in ids,
// flattening them into one batch for the KeepAliveResponse. Sessions that
// no longer exist (closed/expired) are silently skipped.
func (s *Server) drainEvents(ids []uint64) []copycatpb.Event {
	var events []copycatpb.Event
	for _, id := range ids {
		sess, err := s.sessions.Get(id)
		if err != nil {
			continue
		}
		for _, e := range sess.DrainEvents() {
			events = append(events, copycatpb.Event{Index: e.Index, Payload: e.Payload})
		}
	}
	return events
}

// CloseSession explicitly terminates a session.
func (s *Server) CloseSession(req copycatpb.CloseSessionRequest) copycatpb.CloseSessionResponse {
	resultCh := make(chan proposeResult, 1)
	s.submit(&funcCmd{fn: func(s *Server) {
		resultCh <- s.propose(copycatpb.Entry{Type: copycatpb.ENTRY_TYPE_CLOSE_SESSION, Session: req.Session})
	}})
	res := await(s, resultCh)
	if res.err != nil {
		return copycatpb.CloseSessionResponse{Error: res.err}
	}
	if ferr := res.future.Wait(); ferr != nil {
		return copycatpb.CloseSessionResponse{Error: ferr}
	}
	return copycatpb.CloseSessionResponse{}
}

// Command submits a sequence-numbered write, per spec.md §4.4's
// at-most-once admission gate: a sequence not greater than the session's
// last-admitted one is either a retransmit (served from the dedup cache)
// or stale, and is never re-appended to the log.
func (s *Server) Command(req copycatpb.CommandRequest) copycatpb.CommandResponse {
	type out struct {
		res    proposeResult
		cached *session.Result
	}
	resultCh := make(chan out, 1)
	s.submit(&funcCmd{fn: func(s *Server) {
		sess, err := s.sessions.Get(req.Session)
		if err != nil {
			resultCh <- out{res: proposeResult{err: copycatpb.NewError(copycatpb.ERROR_UNKNOWN_SESSION, "%v", err)}}
			return
		}
		if !sess.SetRequestSequence(req.Sequence) {
			if r, ok := sess.CachedResult(req.Sequence); ok {
				resultCh <- out{cached: &r}
				return
			}
			resultCh <- out{res: proposeResult{err: copycatpb.NewError(copycatpb.ERROR_COMMAND_ERROR, "stale sequence %d", req.Sequence)}}
			return
		}
		resultCh <- out{res: s.propose(copycatpb.Entry{
			Type:     copycatpb.ENTRY_TYPE_COMMAND,
			Session:  req.Session,
			Sequence: req.Sequence,
			Payload:  req.Payload,
		})}
	}})

	o := await(s, resultCh)
	if o.cached != nil {
		return copycatpb.CommandResponse{Result: o.cached.Payload, Error: o.cached.Err}
	}
	if o.res.err != nil {
		return copycatpb.CommandResponse{Error: o.res.err}
	}
	if ferr := o.res.future.Wait(); ferr != nil {
		return copycatpb.CommandResponse{Error: ferr}
	}

	sess, err := s.sessions.Get(req.Session)
	if err != nil {
		return copycatpb.CommandResponse{Error: copycatpb.NewError(copycatpb.ERROR_UNKNOWN_SESSION, "%v", err)}
	}
	r, _ := sess.CachedResult(req.Sequence)
	return copycatpb.CommandResponse{Index: o.res.index, EventIndex: sess.EventIndex(), Result: r.Payload, Error: r.Err}
}

// Query executes a read at the requested consistency level, per spec.md
// §4.4's CONSISTENCY_SEQUENTIAL / CONSISTENCY_LINEARIZABLE split.
func (s *Server) Query(req copycatpb.QueryRequest) copycatpb.QueryResponse {
	if req.Consistency == copycatpb.CONSISTENCY_LINEARIZABLE_LEASE {
		return copycatpb.QueryResponse{Error: copycatpb.NewError(copycatpb.ERROR_QUERY_ERROR, "CONSISTENCY_LINEARIZABLE_LEASE is not supported")}
	}

	if req.Consistency == copycatpb.CONSISTENCY_LINEARIZABLE {
		// force a fresh quorum round before serving the read, so it
		// reflects every write any client could already have observed.
		barrierCh := make(chan proposeResult, 1)
		s.submit(&funcCmd{fn: func(s *Server) {
			barrierCh <- s.propose(copycatpb.Entry{Type: copycatpb.ENTRY_TYPE_METADATA})
		}})
		b := await(s, barrierCh)
		if b.err != nil {
			return copycatpb.QueryResponse{Error: b.err}
		}
		if ferr := b.future.Wait(); ferr != nil {
			return copycatpb.QueryResponse{Error: ferr}
		}
	}

	// Query, like Apply, must run on the dispatch loop: the executor keeps
	// no internal locking of its own around either (statemachine.Executor
	// doc comment), relying entirely on its caller for serialization.
	type out struct {
		result     []byte
		eventIndex uint64
		err        error
	}
	resultCh := make(chan out, 1)
	s.submit(&funcCmd{fn: func(s *Server) {
		result, err := s.executor.Query(req.Session, req.Index, req.Sequence, req.Payload)
		var eventIndex uint64
		if sess, serr := s.sessions.Get(req.Session); serr == nil {
			eventIndex = sess.EventIndex()
		}
		resultCh <- out{result: result, eventIndex: eventIndex, err: err}
	}})
	o := await(s, resultCh)
	if o.err != nil {
		return copycatpb.QueryResponse{Error: copycatpb.NewError(copycatpb.ERROR_QUERY_ERROR, "%v", o.err)}
	}
	return copycatpb.QueryResponse{Index: req.Index, EventIndex: o.eventIndex, Result: o.result}
}

// Metadata lists the ids of every currently open session.
func (s *Server) Metadata(req copycatpb.MetadataRequest) copycatpb.MetadataResponse {
	resultCh := make(chan []uint64, 1)
	s.submit(&funcCmd{fn: func(s *Server) {
		ids := make([]uint64, 0, len(s.sessions.Sessions()))
		for _, sess := range s.sessions.Sessions() {
			ids = append(ids, sess.ID)
		}
		resultCh <- ids
	}})
	return copycatpb.MetadataResponse{Sessions: await(s, resultCh)}
}

// Configure services a Join/Leave/Reconfigure request, gated by
// cluster.Cluster.CanPropose per spec.md §4.3.
func (s *Server) Configure(req copycatpb.ConfigureRequest) copycatpb.ConfigureResponse {
	resultCh := make(chan proposeResult, 1)
	s.submit(&funcCmd{fn: func(s *Server) {
		if s.role != RoleLeader {
			resultCh <- proposeResult{err: s.noLeaderError()}
			return
		}
		if err := s.cluster.CanPropose(s.commitIndex, s.initialized); err != nil {
			resultCh <- proposeResult{err: copycatpb.NewError(copycatpb.ERROR_CONFIGURATION_ERROR, "%v", err)}
			return
		}
		res := s.propose(copycatpb.Entry{Type: copycatpb.ENTRY_TYPE_CONFIGURATION, Members: req.Members})
		if res.err == nil {
			// takes effect on observation of append, not on commit, so a
			// second Configure racing before this one commits is correctly
			// rejected by CanPropose's lastConfigIndex > commitIndex gate,
			// mirroring becomeLeader's own Configuration entry.
			s.cluster.Apply(newConfigurationFromEntry(copycatpb.Entry{
				Index:     res.index,
				Term:      s.currentTerm,
				Timestamp: time.Now().UnixMilli(),
				Members:   req.Members,
			}))
		}
		resultCh <- res
	}})
	res := await(s, resultCh)
	if res.err != nil {
		return copycatpb.ConfigureResponse{Error: res.err}
	}
	if ferr := res.future.Wait(); ferr != nil {
		return copycatpb.ConfigureResponse{Error: ferr}
	}
	cfg := s.cluster.Configuration()
	return copycatpb.ConfigureResponse{Index: res.index, Term: s.currentTerm, Timestamp: time.Now().UnixMilli(), Members: cfg.ActiveMembers()}
}
