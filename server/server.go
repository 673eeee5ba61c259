package server

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/1008610010/copycat/cluster"
	"github.com/1008610010/copycat/copycatpb"
	golog "github.com/1008610010/copycat/log"
	"github.com/1008610010/copycat/session"
	"github.com/1008610010/copycat/snapshot"
	"github.com/1008610010/copycat/statemachine"
	"github.com/1008610010/copycat/xlog"
)

var logger = xlog.NewLogger("server")

// Server is one replica's Role State Machine, Leader Appender, and
// single-threaded dispatch loop: spec.md §4.6, §4.7, and §5 combined into
// the unit a transport implementation drives.
//
// All fields below this comment are mutated exclusively from the loop
// goroutine started by Start — every other goroutine (RPC handlers,
// appender background sends, timers) only ever submits a command and
// waits for its response.
//
// (grounded on raft/06_raft_node.go's raftNode: {id, state, term,
// votedFor, leaderID, tickFunc, stepFunc} plus spec.md's explicit
// {commitIndex, lastApplied, initialized} beyond what bare Raft tracks)
type Server struct {
	id     uint64
	config Config

	transport Transport
	log       *golog.Log
	cluster   *cluster.Cluster
	sessions  *session.Manager
	sm        statemachine.StateMachine
	executor  *statemachine.Executor
	snapshots *snapshot.Store

	role        Role
	currentTerm uint64
	votedFor    uint64
	leaderID    uint64

	commitIndex uint64
	lastApplied uint64

	// initialized is true once the leader's own no-op INITIALIZE entry for
	// currentTerm has committed; cluster.Cluster.CanPropose consults it.
	initialized bool

	appender *appender

	installWriters map[uint64]*snapshot.Writer

	votesGranted map[uint64]bool

	// polling, pollTerm, and pollsGranted track the advisory pre-vote round
	// spec.md §4.6 requires before a candidacy's binding Vote broadcast:
	// "issues Poll (pre-vote) then Vote requests with incremented term."
	// pollTerm is the term the poll was issued at (currentTerm, not yet
	// incremented), so a stale poll response can't be mistaken for one
	// belonging to a newer poll or to the binding vote round that follows.
	polling      bool
	pollTerm     uint64
	pollsGranted map[uint64]bool

	electionTimeout           time.Duration
	randomizedElectionTimeout time.Duration
	electionTimer             *time.Timer
	heartbeatTimer            *time.Timer

	rnd *rand.Rand

	commandCh chan command
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a Server from durable state on disk (or fresh state, if none
// exists yet) and the given initial cluster configuration. Start must be
// called before the server does any work.
func New(config Config, transport Transport, sm statemachine.StateMachine, initial *cluster.Configuration) (*Server, error) {
	config = config.WithDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	var id uint64
	for _, m := range initial.ActiveMembers() {
		if m.ServerAddress == config.ServerAddress {
			id = m.ID
		}
	}
	for _, m := range initial.PassiveMembers() {
		if m.ServerAddress == config.ServerAddress {
			id = m.ID
		}
	}

	meta, err := LoadMeta(config.Dir, config.Name)
	if err != nil {
		return nil, fmt.Errorf("server: load meta: %w", err)
	}

	l, err := golog.Open(golog.Options{
		Dir:                  config.Dir,
		Name:                 config.Name,
		MaxEntriesPerSegment: config.MaxEntriesPerSegment,
		MaxSegmentBytes:      config.MaxSegmentSize,
	})
	if err != nil {
		return nil, fmt.Errorf("server: open log: %w", err)
	}

	snaps, err := snapshot.Open(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("server: open snapshot store: %w", err)
	}

	sessions := session.NewManager()

	s := &Server{
		id:            id,
		config:        config,
		transport:     transport,
		log:           l,
		cluster:       cluster.New(initial),
		sessions:      sessions,
		sm:            sm,
		snapshots:     snaps,
		role:          RoleFollower,
		currentTerm:   meta.CurrentTerm,
		votedFor:      meta.VotedFor,
		electionTimeout: config.ElectionTimeout,
		rnd:             rand.New(rand.NewSource(int64(id))),
		installWriters:  make(map[uint64]*snapshot.Writer),
		commandCh:       make(chan command, 64),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	s.executor = statemachine.NewExecutor(sm, sessions, config.SnapshotIntervalMs, s.triggerSnapshot)
	return s, nil
}

// ID returns this replica's member id.
func (s *Server) ID() uint64 { return s.id }

// Start launches the single-threaded dispatch loop.
func (s *Server) Start() {
	s.randomizeElectionTimeout()
	s.electionTimer = time.NewTimer(s.randomizedElectionTimeout)
	s.heartbeatTimer = time.NewTimer(s.config.HeartbeatInterval)
	s.heartbeatTimer.Stop()
	go s.run()
}

// Stop halts the dispatch loop and closes the log and snapshot store.
func (s *Server) Stop() error {
	close(s.stopCh)
	<-s.doneCh
	if err := s.log.Close(); err != nil {
		return err
	}
	return s.snapshots.Close()
}

func (s *Server) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.electionTimer.C:
			(&electionTimeoutCmd{}).execute(s)
			s.electionTimer.Reset(s.randomizedElectionTimeout)
		case <-s.heartbeatTimer.C:
			(&heartbeatTimeoutCmd{}).execute(s)
			s.heartbeatTimer.Reset(s.config.HeartbeatInterval)
		case cmd := <-s.commandCh:
			cmd.execute(s)
		}
	}
}

// submit hands cmd to the loop goroutine and blocks the caller until
// execute runs, via a channel embedded in cmd by its constructor.
func (s *Server) submit(cmd command) {
	select {
	case s.commandCh <- cmd:
	case <-s.stopCh:
	}
}

// await waits for a command's result, unblocking with the zero value if
// Stop is called before the dispatch loop ever runs cmd (submit's own
// stopCh race leaves no one to write to ch in that case).
func await[T any](s *Server, ch <-chan T) T {
	select {
	case v := <-ch:
		return v
	case <-s.doneCh:
		var zero T
		return zero
	}
}

func (s *Server) randomizeElectionTimeout() {
	s.randomizedElectionTimeout = s.electionTimeout + time.Duration(s.rnd.Int63n(int64(s.electionTimeout)))
}

// persistMeta durably writes currentTerm/votedFor, the way raftwal commits
// a HardState before any dependent message is sent.
func (s *Server) persistMeta() {
	if err := SaveMeta(s.config.Dir, s.config.Name, Meta{CurrentTerm: s.currentTerm, VotedFor: s.votedFor}); err != nil {
		logger.Errorf("persist meta failed: %v", err)
	}
}

// becomeFollower transitions to Follower for term, recording leaderID (0 if
// unknown) and resetting the election timer.
func (s *Server) becomeFollower(term, leaderID uint64) {
	if s.role == RoleLeader && s.appender != nil {
		s.appender.failAll(copycatpb.NewError(copycatpb.ERROR_ILLEGAL_MEMBER_STATE, "%v", ErrProposalDropped))
		s.appender = nil
	}
	if term != s.currentTerm {
		s.votedFor = 0
	}
	s.polling = false
	s.role = RoleFollower
	s.currentTerm = term
	s.leaderID = leaderID
	s.initialized = false
	s.persistMeta()
	s.randomizeElectionTimeout()
	s.heartbeatTimer.Stop()
	logger.Infof("%x became follower at term %d (leader=%x)", s.id, s.currentTerm, s.leaderID)
}

// becomeCandidate transitions to Candidate, incrementing the term and
// voting for itself.
func (s *Server) becomeCandidate() {
	s.role = RoleCandidate
	s.currentTerm++
	s.votedFor = s.id
	s.leaderID = 0
	s.votesGranted = map[uint64]bool{s.id: true}
	s.persistMeta()
	s.randomizeElectionTimeout()
	logger.Infof("%x became candidate at term %d", s.id, s.currentTerm)
}

// becomeLeader transitions to Leader: starts the appender and proposes an
// INITIALIZE no-op entry followed by a CONFIGURATION entry for the current
// membership, per spec.md §4.6 step 4. The INITIALIZE entry's commit sets
// s.initialized per spec.md §4.3's "leader's noop has not yet committed"
// gate; the CONFIGURATION entry takes effect immediately on append (see
// handleAppend), not on commit, so a joining member learns it belongs to
// the cluster before quorum is reached.
func (s *Server) becomeLeader() {
	s.role = RoleLeader
	s.leaderID = s.id
	s.appender = newAppender(s)
	s.heartbeatTimer.Reset(s.config.HeartbeatInterval)
	s.electionTimer.Stop()
	logger.Infof("%x became leader at term %d", s.id, s.currentTerm)

	now := time.Now().UnixMilli()

	idx, err := s.log.Append(s.currentTerm, copycatpb.Entry{
		Type:      copycatpb.ENTRY_TYPE_INITIALIZE,
		Timestamp: now,
	})
	if err != nil {
		logger.Errorf("append initialize entry failed: %v", err)
		return
	}
	s.appender.appendEntries(idx)

	cfgEntry := copycatpb.Entry{
		Type:      copycatpb.ENTRY_TYPE_CONFIGURATION,
		Timestamp: now,
		Members:   s.cluster.Configuration().AllMembers(),
	}
	cfgIdx, err := s.log.Append(s.currentTerm, cfgEntry)
	if err != nil {
		logger.Errorf("append configuration entry failed: %v", err)
		return
	}
	cfgEntry.Index = cfgIdx
	cfgEntry.Term = s.currentTerm
	s.cluster.Apply(newConfigurationFromEntry(cfgEntry))
	s.appender.appendEntries(cfgIdx)

	s.appender.recomputeCommitIndex() // covers the single-active-member case, where no follower ack ever arrives
}

// stepDown reverts a Leader or Candidate to Follower upon observing a
// higher term, per spec.md §4.7's "fails all outstanding futures".
func (s *Server) stepDown(term uint64) {
	s.becomeFollower(term, 0)
}

func (s *Server) quorumSize() int {
	return len(s.cluster.Configuration().ActiveMembers())/2 + 1
}

// snapshotter is the optional interface a StateMachine implements to
// supply its own byte representation for a snapshot, matching raftsnap's
// separation between "when to snapshot" (this package, on the executor's
// cadence) and "how to serialize" (the application).
type snapshotter interface {
	CreateSnapshot() ([]byte, error)
}

// triggerSnapshot is the Executor's onSnapshotDue callback: it captures a
// snapshot of committed state via the snapshot package, gated by every
// open session having acknowledged events through this index (spec.md §3's
// snapshot completeness rule).
func (s *Server) triggerSnapshot(index uint64) {
	sser, ok := s.sm.(snapshotter)
	if !ok {
		logger.Infof("%x snapshot due at index %d, state machine does not implement snapshotter", s.id, index)
		return
	}
	data, err := sser.CreateSnapshot()
	if err != nil {
		logger.Warningf("%x snapshot capture at index %d failed: %v", s.id, index, err)
		return
	}

	w, err := s.snapshots.CreateSnapshot(s.id, index)
	if err != nil {
		logger.Warningf("%x snapshot writer at index %d failed: %v", s.id, index, err)
		return
	}
	if _, err := w.Write(data); err != nil {
		logger.Warningf("%x snapshot write at index %d failed: %v", s.id, index, err)
		return
	}
	if err := w.Persist(); err != nil {
		logger.Warningf("%x snapshot persist at index %d failed: %v", s.id, index, err)
		return
	}
	if !s.sessions.SnapshotReady(index) {
		logger.Infof("%x snapshot at index %d taken, completion deferred pending session acks", s.id, index)
		return
	}
	if err := w.Complete(); err != nil {
		logger.Warningf("%x snapshot complete at index %d failed: %v", s.id, index, err)
		return
	}
	logger.Infof("%x snapshot complete at index %d", s.id, index)
}
