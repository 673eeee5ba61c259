// Package statemachine implements the deterministic, single-threaded
// apply pipeline of spec.md §4.5: a logical clock, a time-ordered
// scheduled-task list, session-aware command/query dispatch with ordering
// and deduplication, and snapshot-cadence bookkeeping.
package statemachine

import (
	"sync"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/session"
	"github.com/1008610010/copycat/xlog"
)

var logger = xlog.NewLogger("statemachine")

// StateMachine is the user-provided application logic. Apply and Query
// receive opaque payloads; per-operation dispatch inside that payload is
// left to the implementation, matching spec.md's explicit "wire encoding
// is out of scope" carve-out for the payload field itself.
type StateMachine interface {
	Apply(ctx Context, payload []byte) ([]byte, error)
	Query(payload []byte) ([]byte, error)
}

// Context is passed to StateMachine.Apply so it can publish events as a
// side effect of the command it is applying, per spec.md §4.5 step 5
// ("after a command, drain queued side-effect callbacks and publish events
// with eventIndex = entry.index").
//
// (grounded on Copycat's Commit/StateMachineExecutor.Context, which gives
// the state machine both the committing session's id and a handle to
// publish to any session, collapsed here into one minimal interface)
type Context interface {
	// Index is the log index of the command entry being applied.
	Index() uint64
	// Timestamp is the leader-assigned time of the command entry, in unix
	// millis.
	Timestamp() int64
	// Session is the id of the session that submitted this command.
	Session() uint64
	// Publish queues an event for delivery to sessionID, stamped with this
	// command's log index. sessionID need not be the committing session.
	Publish(sessionID uint64, payload []byte)
}

type applyContext struct {
	e     *Executor
	entry copycatpb.Entry
}

func (c *applyContext) Index() uint64    { return c.entry.Index }
func (c *applyContext) Timestamp() int64 { return c.entry.Timestamp }
func (c *applyContext) Session() uint64  { return c.entry.Session }

func (c *applyContext) Publish(sessionID uint64, payload []byte) {
	if err := c.e.PublishEvent(sessionID, c.entry.Index, payload); err != nil {
		logger.Errorf("publish event to session %d at index %d failed: %v", sessionID, c.entry.Index, err)
	}
}

// Executor runs the deterministic apply pipeline against one StateMachine,
// coordinating with a session.Manager for dedup, ordering, and expiration.
//
// (spec.md §4.5: "Single-threaded." — Executor has no internal locking
// around apply/query dispatch itself; callers are expected to drive it
// from a single goroutine, the same way server's dispatch loop drives
// everything else in the "executor context")
type Executor struct {
	clock     *Clock
	scheduler *scheduler
	sm        StateMachine
	sessions  *session.Manager

	nextCommandSeq map[uint64]uint64                    // sessionID -> next expected sequence
	commandBuffer  map[uint64]map[uint64]copycatpb.Entry // sessionID -> sequence -> buffered entry

	snapshotIntervalMs int64
	snapshotStarted    bool // guards against snapshotTime's zero value colliding with a genuine timestamp of 0
	snapshotTime       int64
	snapshotIndex      uint64
	onSnapshotDue      func(index uint64)

	mu sync.Mutex // guards nextCommandSeq/commandBuffer/snapshot bookkeeping
}

// NewExecutor creates an Executor. onSnapshotDue, if non-nil, is invoked
// (synchronously, within Apply) once every snapshotIntervalMs of logical
// time, with the index of the entry that crossed the interval boundary;
// the caller is responsible for actually capturing and persisting the
// snapshot via the snapshot package.
func NewExecutor(sm StateMachine, sessions *session.Manager, snapshotIntervalMs int64, onSnapshotDue func(index uint64)) *Executor {
	return &Executor{
		clock:              &Clock{},
		scheduler:          newScheduler(),
		sm:                 sm,
		sessions:           sessions,
		nextCommandSeq:     make(map[uint64]uint64),
		commandBuffer:      make(map[uint64]map[uint64]copycatpb.Entry),
		snapshotIntervalMs: snapshotIntervalMs,
		onSnapshotDue:      onSnapshotDue,
	}
}

// Now returns the executor's current logical time.
func (e *Executor) Now() int64 { return e.clock.Now() }

// Schedule registers a one-shot callback to fire once the executor's
// logical clock reaches at.
func (e *Executor) Schedule(at int64, fn func(now int64)) uint64 {
	return e.scheduler.schedule(at, 0, fn)
}

// ScheduleRepeating registers a callback that fires at "at" and every
// interval thereafter until cancelled.
func (e *Executor) ScheduleRepeating(at, interval int64, fn func(now int64)) uint64 {
	return e.scheduler.schedule(at, interval, fn)
}

// CancelScheduled removes a previously scheduled task.
func (e *Executor) CancelScheduled(id uint64) { e.scheduler.cancel(id) }

// Apply runs the full per-entry apply sequence of spec.md §4.5 steps 1-5
// against a single committed log entry, returning the result payload for
// COMMAND entries (nil for every other entry type).
func (e *Executor) Apply(entry copycatpb.Entry) ([]byte, *copycatpb.Error) {
	now := e.clock.Advance(entry.Timestamp)

	e.scheduler.fireExpired(now)

	for _, id := range e.sessions.ExpireBefore(now) {
		logger.Infof("session %d expired at time %d", id, now)
	}

	var result []byte
	var applyErr *copycatpb.Error

	switch entry.Type {
	case copycatpb.ENTRY_TYPE_OPEN_SESSION:
		e.sessions.Register(entry.Index, entry.SessionName, entry.SessionType, entry.SessionTimeout, entry.Timestamp)

	case copycatpb.ENTRY_TYPE_KEEP_ALIVE:
		e.sessions.KeepAlive(entry.Index, entry.Timestamp, entry.KeepAliveSessionIDs, entry.KeepAliveCommandSequences, entry.KeepAliveEventIndexes, entry.KeepAliveConnectionIDs)

	case copycatpb.ENTRY_TYPE_CLOSE_SESSION:
		if err := e.sessions.Close(entry.Session); err != nil {
			applyErr = copycatpb.NewError(copycatpb.ERROR_UNKNOWN_SESSION, "close session %d: %v", entry.Session, err)
		}

	case copycatpb.ENTRY_TYPE_COMMAND:
		result, applyErr = e.applyCommand(entry)

	case copycatpb.ENTRY_TYPE_QUERY:
		// logged queries are not part of this spec's query path (queries
		// execute unlogged, see Query below); a QUERY entry type reaching
		// Apply would only happen for a legacy/foreign log, so treat it as
		// a no-op read against committed state.
		var err error
		result, err = e.sm.Query(entry.Payload)
		if err != nil {
			applyErr = copycatpb.NewError(copycatpb.ERROR_QUERY_ERROR, "%v", err)
		}

	case copycatpb.ENTRY_TYPE_CONFIGURATION, copycatpb.ENTRY_TYPE_INITIALIZE, copycatpb.ENTRY_TYPE_METADATA:
		// observed for bookkeeping elsewhere (cluster/server); no executor
		// action beyond advancing the clock.
	}

	e.maybeSnapshot(entry.Index, now)

	return result, applyErr
}

func (e *Executor) applyCommand(entry copycatpb.Entry) ([]byte, *copycatpb.Error) {
	sess, err := e.sessions.Get(entry.Session)
	if err != nil {
		return nil, copycatpb.NewError(copycatpb.ERROR_UNKNOWN_SESSION, "session %d: %v", entry.Session, err)
	}

	e.mu.Lock()
	next, ok := e.nextCommandSeq[entry.Session]
	if !ok {
		next = 1
	}
	e.mu.Unlock()

	switch {
	case entry.Sequence < next:
		if r, ok := sess.CachedResult(entry.Sequence); ok {
			return r.Payload, r.Err
		}
		return nil, nil

	case entry.Sequence > next:
		e.mu.Lock()
		buf, ok := e.commandBuffer[entry.Session]
		if !ok {
			buf = make(map[uint64]copycatpb.Entry)
			e.commandBuffer[entry.Session] = buf
		}
		buf[entry.Sequence] = entry
		e.mu.Unlock()
		return nil, nil

	default:
		result, applyErr := e.applyOneCommand(sess, entry)
		e.drainBuffered(sess, entry.Session)
		return result, applyErr
	}
}

// applyOneCommand invokes the user state machine for a single in-order
// command and caches the result for dedup against retransmits.
func (e *Executor) applyOneCommand(sess *session.Session, entry copycatpb.Entry) ([]byte, *copycatpb.Error) {
	ctx := &applyContext{e: e, entry: entry}
	payload, err := e.sm.Apply(ctx, entry.Payload)

	var applyErr *copycatpb.Error
	if err != nil {
		applyErr = copycatpb.NewError(copycatpb.ERROR_APPLICATION_ERROR, "%v", err)
	}

	sess.CacheResult(entry.Sequence, session.Result{Sequence: entry.Sequence, Payload: payload, Err: applyErr})
	sess.RecordApply(entry.Index, entry.Timestamp)

	e.mu.Lock()
	e.nextCommandSeq[entry.Session] = entry.Sequence + 1
	e.mu.Unlock()

	return payload, applyErr
}

// drainBuffered applies any contiguous run of previously-buffered commands
// now unblocked by applying entry.Sequence.
func (e *Executor) drainBuffered(sess *session.Session, sessionID uint64) {
	for {
		e.mu.Lock()
		next := e.nextCommandSeq[sessionID]
		buf := e.commandBuffer[sessionID]
		var pending copycatpb.Entry
		found := false
		if buf != nil {
			pending, found = buf[next]
			if found {
				delete(buf, next)
			}
		}
		e.mu.Unlock()

		if !found {
			return
		}
		e.applyOneCommand(sess, pending)
	}
}

// PublishEvent queues an event for delivery to session, stamped with the
// index of the command entry that produced it.
//
// (spec.md §4.5 step 5: "After a command, drain queued side-effect
// callbacks and publish events with eventIndex = entry.index")
func (e *Executor) PublishEvent(sessionID, entryIndex uint64, payload []byte) error {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	sess.PublishEvent(entryIndex, payload)
	return nil
}

// Query executes a read against committed state without going through the
// log, provided session.commandSequence ≥ sequence-1 and
// session.lastApplied ≥ index. If either does not hold it returns
// ErrQueryNotReady at once; it does not wait for them to become true.
//
// (spec.md §4.5: query ordering constraints on (index, sequence))
func (e *Executor) Query(sessionID, index, sequence uint64, payload []byte) ([]byte, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sequence > 1 && sess.CommandSequence() < sequence-1 {
		return nil, ErrQueryNotReady
	}
	if sess.LastApplied() < index {
		return nil, ErrQueryNotReady
	}
	return e.sm.Query(payload)
}

// maybeSnapshot fires onSnapshotDue once every snapshotIntervalMs of logical
// time per spec.md §4.5 step 6. The first applied entry only starts the
// interval clock; it does not itself count as a due snapshot.
func (e *Executor) maybeSnapshot(index uint64, now int64) {
	if e.snapshotIntervalMs <= 0 || e.onSnapshotDue == nil {
		return
	}

	e.mu.Lock()
	if !e.snapshotStarted {
		e.snapshotStarted = true
		e.snapshotTime = now
		e.mu.Unlock()
		return
	}

	due := now-e.snapshotTime >= e.snapshotIntervalMs
	if due {
		e.snapshotTime = now
		e.snapshotIndex = index
	}
	e.mu.Unlock()

	if due {
		e.onSnapshotDue(index)
	}
}

// SnapshotIndex returns the log index of the most recently triggered
// snapshot cycle.
func (e *Executor) SnapshotIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotIndex
}
