package main

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	"github.com/1008610010/copycat/statemachine"
)

// kvOp is the gob-encoded payload carried by ENTRY_TYPE_COMMAND/QUERY
// entries for this demo state machine: a tiny key/value store, grounded
// on raft-example's dataStore but adapted to statemachine.StateMachine's
// Apply/Query shape instead of a propose/commit channel pair.
type kvOp struct {
	Put   bool
	Key   string
	Value string
}

type kvStore struct {
	mu    sync.RWMutex
	store map[string]string
}

func newKVStore() *kvStore {
	return &kvStore{store: make(map[string]string)}
}

// Apply implements statemachine.StateMachine. A successful Put also
// publishes the new value to the issuing session as an event, giving the
// demo a concrete exercise of the event-delivery path.
func (kv *kvStore) Apply(ctx statemachine.Context, payload []byte) ([]byte, error) {
	var op kvOp
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&op); err != nil {
		return nil, fmt.Errorf("kvstore: decode command: %w", err)
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	if !op.Put {
		return nil, fmt.Errorf("kvstore: Apply given a non-Put op")
	}
	kv.store[op.Key] = op.Value
	ctx.Publish(ctx.Session(), []byte(op.Key+"="+op.Value))
	return nil, nil
}

// Query implements statemachine.StateMachine.
func (kv *kvStore) Query(payload []byte) ([]byte, error) {
	var op kvOp
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&op); err != nil {
		return nil, fmt.Errorf("kvstore: decode query: %w", err)
	}

	kv.mu.RLock()
	defer kv.mu.RUnlock()

	return []byte(kv.store[op.Key]), nil
}

// CreateSnapshot implements server's optional snapshotter interface.
func (kv *kvStore) CreateSnapshot() ([]byte, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(kv.store); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadSnapshot restores kv's state from a previously captured snapshot.
func (kv *kvStore) LoadSnapshot(r io.Reader) error {
	var store map[string]string
	if err := gob.NewDecoder(r).Decode(&store); err != nil {
		return err
	}
	kv.mu.Lock()
	kv.store = store
	kv.mu.Unlock()
	return nil
}

func encodePutOp(key, value string) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(kvOp{Put: true, Key: key, Value: value})
	return buf.Bytes(), err
}

func encodeGetOp(key string) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(kvOp{Key: key})
	return buf.Bytes(), err
}
