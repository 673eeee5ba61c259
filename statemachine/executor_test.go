package statemachine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1008610010/copycat/copycatpb"
	"github.com/1008610010/copycat/session"
)

type kvStateMachine struct {
	values map[string]string

	// publishTo, if non-zero, is the session every Apply call also
	// publishes its payload to, exercising Context.Publish.
	publishTo uint64
}

func newKV() *kvStateMachine { return &kvStateMachine{values: make(map[string]string)} }

func (k *kvStateMachine) Apply(ctx Context, payload []byte) ([]byte, error) {
	k.values[fmt.Sprintf("k%d", ctx.Index())] = string(payload)
	if k.publishTo != 0 {
		ctx.Publish(k.publishTo, payload)
	}
	return []byte("ok"), nil
}

func (k *kvStateMachine) Query(payload []byte) ([]byte, error) {
	return []byte("query-ok"), nil
}

func TestApplyCommandInOrder(t *testing.T) {
	sm := newKV()
	sessions := session.NewManager()
	ex := NewExecutor(sm, sessions, 0, nil)

	sessions.Register(1, "kv", "kv", 10000, 0)

	r, applyErr := ex.Apply(copycatpb.Entry{Index: 2, Timestamp: 100, Type: copycatpb.ENTRY_TYPE_COMMAND, Session: 1, Sequence: 1, Payload: []byte("v1")})
	require.Nil(t, applyErr)
	require.Equal(t, "ok", string(r))

	r, applyErr = ex.Apply(copycatpb.Entry{Index: 3, Timestamp: 200, Type: copycatpb.ENTRY_TYPE_COMMAND, Session: 1, Sequence: 1, Payload: []byte("v1-retry")})
	require.Nil(t, applyErr)
	require.Equal(t, "ok", string(r)) // cached replay
}

func TestApplyCommandOutOfOrderBuffers(t *testing.T) {
	sm := newKV()
	sessions := session.NewManager()
	ex := NewExecutor(sm, sessions, 0, nil)
	sessions.Register(1, "kv", "kv", 10000, 0)

	r, _ := ex.Apply(copycatpb.Entry{Index: 2, Timestamp: 100, Type: copycatpb.ENTRY_TYPE_COMMAND, Session: 1, Sequence: 3, Payload: []byte("c3")})
	require.Nil(t, r)

	r, _ = ex.Apply(copycatpb.Entry{Index: 3, Timestamp: 100, Type: copycatpb.ENTRY_TYPE_COMMAND, Session: 1, Sequence: 1, Payload: []byte("c1")})
	require.Equal(t, "ok", string(r))

	r, _ = ex.Apply(copycatpb.Entry{Index: 4, Timestamp: 100, Type: copycatpb.ENTRY_TYPE_COMMAND, Session: 1, Sequence: 2, Payload: []byte("c2")})
	require.Equal(t, "ok", string(r))

	sess, err := sessions.Get(1)
	require.NoError(t, err)
	require.Equal(t, uint64(4), sess.LastApplied())
}

func TestQueryOrderingGate(t *testing.T) {
	sm := newKV()
	sessions := session.NewManager()
	ex := NewExecutor(sm, sessions, 0, nil)
	sessions.Register(1, "kv", "kv", 10000, 0)

	_, err := ex.Query(1, 5, 1, nil)
	require.ErrorIs(t, err, ErrQueryNotReady)

	ex.Apply(copycatpb.Entry{Index: 5, Timestamp: 50, Type: copycatpb.ENTRY_TYPE_COMMAND, Session: 1, Sequence: 1, Payload: []byte("x")})

	result, err := ex.Query(1, 5, 1, nil)
	require.NoError(t, err)
	require.Equal(t, "query-ok", string(result))
}

func TestSessionExpiresDuringApply(t *testing.T) {
	sm := newKV()
	sessions := session.NewManager()
	ex := NewExecutor(sm, sessions, 0, nil)
	sessions.Register(1, "kv", "kv", 1000, 0)

	ex.Apply(copycatpb.Entry{Index: 2, Timestamp: 5000, Type: copycatpb.ENTRY_TYPE_COMMAND, Session: 99, Sequence: 1})

	_, err := sessions.Get(1)
	require.Error(t, err)
}

func TestScheduledTaskFires(t *testing.T) {
	sm := newKV()
	sessions := session.NewManager()
	ex := NewExecutor(sm, sessions, 0, nil)

	var fired int64 = -1
	ex.Schedule(1000, func(now int64) { fired = now })

	ex.Apply(copycatpb.Entry{Index: 1, Timestamp: 500, Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.Equal(t, int64(-1), fired)

	ex.Apply(copycatpb.Entry{Index: 2, Timestamp: 1000, Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.Equal(t, int64(1000), fired)
}

func TestApplyPublishesEventToOtherSession(t *testing.T) {
	sm := newKV()
	sessions := session.NewManager()
	ex := NewExecutor(sm, sessions, 0, nil)

	sessions.Register(1, "writer", "kv", 10000, 0)
	sessions.Register(2, "watcher", "kv", 10000, 0)
	sm.publishTo = 2

	_, applyErr := ex.Apply(copycatpb.Entry{Index: 3, Timestamp: 100, Type: copycatpb.ENTRY_TYPE_COMMAND, Session: 1, Sequence: 1, Payload: []byte("v1")})
	require.Nil(t, applyErr)

	watcher, err := sessions.Get(2)
	require.NoError(t, err)

	events := watcher.DrainEvents()
	require.Len(t, events, 1)
	require.Equal(t, uint64(3), events[0].Index)
	require.Equal(t, "v1", string(events[0].Payload))
}

func TestSnapshotDueCallback(t *testing.T) {
	sm := newKV()
	sessions := session.NewManager()

	var due []uint64
	ex := NewExecutor(sm, sessions, 1000, func(index uint64) { due = append(due, index) })

	// the first applied entry only starts the interval clock.
	ex.Apply(copycatpb.Entry{Index: 1, Timestamp: 0, Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.Len(t, due, 0)

	ex.Apply(copycatpb.Entry{Index: 2, Timestamp: 500, Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.Len(t, due, 0)

	ex.Apply(copycatpb.Entry{Index: 3, Timestamp: 1500, Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.Equal(t, []uint64{3}, due)

	ex.Apply(copycatpb.Entry{Index: 4, Timestamp: 2600, Type: copycatpb.ENTRY_TYPE_INITIALIZE})
	require.Equal(t, []uint64{3, 4}, due)
}
