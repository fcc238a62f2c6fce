package transfer

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrDuplicateTask = errors.New("task already exists")
	ErrTaskNotFound  = errors.New("task not found")
)

// Ledger holds active and completed tasks. A task lives in exactly one of
// the two maps until it is removed. Not safe for concurrent use.
type Ledger struct {
	active    map[string]*Task
	completed map[string]*Task
}

func NewLedger() *Ledger {
	return &Ledger{
		active:    make(map[string]*Task),
		completed: make(map[string]*Task),
	}
}

func (l *Ledger) Add(t *Task) error {
	if _, ok := l.active[t.ID]; ok {
		return ErrDuplicateTask
	}
	if _, ok := l.completed[t.ID]; ok {
		return ErrDuplicateTask
	}
	l.active[t.ID] = t
	return nil
}

func (l *Ledger) Active(id string) (*Task, bool) {
	t, ok := l.active[id]
	return t, ok
}

func (l *Ledger) Completed(id string) (*Task, bool) {
	t, ok := l.completed[id]
	return t, ok
}

// Complete moves an active task to the completed ledger. It returns false if
// the task is not active, so late callbacks are no-ops.
func (l *Ledger) Complete(id string) (*Task, bool) {
	t, ok := l.active[id]
	if !ok {
		return nil, false
	}
	delete(l.active, id)
	t.SetProgress(100)
	t.Status = StatusCompleted
	t.FinishedAt = time.Now()
	l.completed[id] = t
	return t, true
}

// Remove drops an active task after cancellation or failure.
func (l *Ledger) Remove(id string, status Status) (*Task, bool) {
	t, ok := l.active[id]
	if !ok {
		return nil, false
	}
	delete(l.active, id)
	t.Status = status
	t.FinishedAt = time.Now()
	return t, true
}

func (l *Ledger) ActiveTasks() []Task {
	return snapshots(l.active)
}

func (l *Ledger) CompletedTasks() []Task {
	return snapshots(l.completed)
}

func snapshots(m map[string]*Task) []Task {
	out := make([]Task, 0, len(m))
	for _, t := range m {
		out = append(out, t.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
