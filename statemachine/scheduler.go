package statemachine

import (
	"sync"

	"github.com/google/btree"
)

// scheduledTask is one entry of the executor's time-ordered task list. It
// implements btree.Item so the list stays sorted by (time, seq) with
// O(log n) insertion.
//
// (spec.md §4.5: "a sorted-by-time scheduled-task list (insertion via
// binary-search)")
type scheduledTask struct {
	time     int64
	seq      uint64
	interval int64 // 0 for one-shot tasks
	fn       func(now int64)
}

func (t *scheduledTask) Less(than btree.Item) bool {
	o := than.(*scheduledTask)
	if t.time != o.time {
		return t.time < o.time
	}
	return t.seq < o.seq
}

// scheduler is the executor's scheduled-task list, backed by a btree for
// the binary-searchable insertion spec.md calls out.
//
// (grounded on statemachine/clock.go's own Clock for the determinism
// discipline, and google/btree as the pack's sorted-container library —
// see DESIGN.md's domain-stack wiring)
type scheduler struct {
	mu    sync.Mutex
	tree  *btree.BTree
	byID  map[uint64]*scheduledTask
	nextID uint64
}

func newScheduler() *scheduler {
	return &scheduler{
		tree: btree.New(8),
		byID: make(map[uint64]*scheduledTask),
	}
}

// schedule inserts a new task at the given time. A non-zero interval makes
// it repeating: after it fires it is reinserted at now+interval.
func (s *scheduler) schedule(at int64, interval int64, fn func(now int64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	t := &scheduledTask{time: at, seq: id, interval: interval, fn: fn}
	s.tree.ReplaceOrInsert(t)
	s.byID[id] = t
	return id
}

// cancel removes a scheduled task before it fires. It is a no-op if the
// task has already fired and was not repeating, or never existed.
func (s *scheduler) cancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return
	}
	s.tree.Delete(t)
	delete(s.byID, id)
}

// fireExpired fires every task with time <= now, in time order, reinserting
// repeating ones at now+interval.
//
// (spec.md §4.5 apply sequence step 2: "Fire expired scheduled tasks (all
// with scheduledTime ≤ time), reinserting repeating ones")
func (s *scheduler) fireExpired(now int64) {
	s.mu.Lock()
	var expired []*scheduledTask
	s.tree.Ascend(func(i btree.Item) bool {
		t := i.(*scheduledTask)
		if t.time > now {
			return false
		}
		expired = append(expired, t)
		return true
	})
	for _, t := range expired {
		s.tree.Delete(t)
		delete(s.byID, t.seq)
	}
	s.mu.Unlock()

	for _, t := range expired {
		t.fn(now)
		if t.interval > 0 {
			// keep the task's id so cancel still finds it after it fires
			s.mu.Lock()
			t.time = now + t.interval
			s.tree.ReplaceOrInsert(t)
			s.byID[t.seq] = t
			s.mu.Unlock()
		}
	}
}
