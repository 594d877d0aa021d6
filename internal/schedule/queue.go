// Package schedule implements the serialized timer queue that orders every
// overlay show/hide action. A Queue is owned by one goroutine: the monitoring
// unit's event loop schedules, cancels and runs tasks; nothing else touches it.
package schedule

import (
	"container/heap"
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

type task struct {
	id    domain.TaskID
	at    time.Time
	seq   uint64
	fn    func()
	index int
}

// taskHeap orders tasks by deadline, then by scheduling order.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Queue is a single-consumer timer queue with cancellation tokens.
type Queue struct {
	clock  Clock
	lastID domain.TaskID
	seq    uint64
	tasks  taskHeap
	byID   map[domain.TaskID]*task
}

// New creates an empty queue driven by clock.
func New(clock Clock) *Queue {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Queue{
		clock: clock,
		byID:  make(map[domain.TaskID]*task),
	}
}

// After schedules fn to run once d has elapsed. Negative delays run on the next RunDue.
func (q *Queue) After(d time.Duration, fn func()) domain.TaskID {
	if d < 0 {
		d = 0
	}
	q.lastID++
	q.seq++
	t := &task{
		id:  q.lastID,
		at:  q.clock.Now().Add(d),
		seq: q.seq,
		fn:  fn,
	}
	heap.Push(&q.tasks, t)
	q.byID[t.id] = t
	return t.id
}

// Cancel drops a pending task. It returns false when the task already ran,
// was already canceled or never existed.
func (q *Queue) Cancel(id domain.TaskID) bool {
	t, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.tasks, t.index)
	delete(q.byID, id)
	return true
}

// RunDue runs every task whose deadline has passed, in deadline order,
// and returns how many ran. Tasks scheduled by a running task with a
// deadline that has already passed run in the same call.
func (q *Queue) RunDue() int {
	now := q.clock.Now()
	ran := 0
	for len(q.tasks) > 0 && !q.tasks[0].at.After(now) {
		t := heap.Pop(&q.tasks).(*task)
		delete(q.byID, t.id)
		t.fn()
		ran++
	}
	return ran
}

// Next returns the earliest pending deadline.
func (q *Queue) Next() (time.Time, bool) {
	if len(q.tasks) == 0 {
		return time.Time{}, false
	}
	return q.tasks[0].at, true
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Clear drops every pending task.
func (q *Queue) Clear() {
	q.tasks = nil
	q.byID = make(map[domain.TaskID]*task)
}

// Ensure Queue implements domain.Scheduler.
var _ domain.Scheduler = (*Queue)(nil)
