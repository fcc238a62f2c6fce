package transfer

import (
	"math/rand"
	"time"
)

const (
	DefaultFallbackInterval = 300 * time.Millisecond
	DefaultFallbackMaxStep  = 10.0
	// DefaultFallbackMinStep keeps the number of ticks bounded.
	DefaultFallbackMinStep = 1.0
)

// Stopper cancels a scheduled function.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f after d. The node's scheduler runs f on its event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type FallbackOptions struct {
	Interval  time.Duration
	MaxStep   float64
	MinStep   float64
	Rand      func() float64
	Scheduler Scheduler
	// OnProgress runs after every tick that moved the task.
	OnProgress func(t *Task)
	// OnComplete runs once when the task reaches 100. It must complete the
	// task through the same path as a direct transfer.
	OnComplete func(t *Task)
}

// Fallback delivers a task without a peer by advancing its progress on a
// timer until it reaches 100.
type Fallback struct {
	opts   FallbackOptions
	ledger *Ledger
	runs   map[string]Stopper
}

func NewFallback(ledger *Ledger, opts FallbackOptions) *Fallback {
	if opts.Interval <= 0 {
		opts.Interval = DefaultFallbackInterval
	}
	if opts.MaxStep <= 0 {
		opts.MaxStep = DefaultFallbackMaxStep
	}
	if opts.MinStep <= 0 {
		opts.MinStep = DefaultFallbackMinStep
	}
	if opts.MinStep > opts.MaxStep {
		opts.MinStep = opts.MaxStep
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timeScheduler{}
	}
	return &Fallback{
		opts:   opts,
		ledger: ledger,
		runs:   make(map[string]Stopper),
	}
}

// Start begins fallback delivery for an active task. It returns false if the
// task is not active or already running.
func (f *Fallback) Start(id string) bool {
	t, ok := f.ledger.Active(id)
	if !ok {
		return false
	}
	if _, running := f.runs[id]; running {
		return false
	}
	t.Fallback = true
	f.schedule(id)
	return true
}

func (f *Fallback) Running(id string) bool {
	_, ok := f.runs[id]
	return ok
}

func (f *Fallback) Stop(id string) {
	if s, ok := f.runs[id]; ok {
		s.Stop()
		delete(f.runs, id)
	}
}

func (f *Fallback) StopAll() {
	for id := range f.runs {
		f.Stop(id)
	}
}

// Step returns the next progress increment.
func (f *Fallback) Step() float64 {
	step := f.opts.Rand() * f.opts.MaxStep
	if step < f.opts.MinStep {
		step = f.opts.MinStep
	}
	return step
}

func (f *Fallback) schedule(id string) {
	f.runs[id] = f.opts.Scheduler.AfterFunc(f.opts.Interval, func() { f.tick(id) })
}

func (f *Fallback) tick(id string) {
	if _, ok := f.runs[id]; !ok {
		return
	}
	t, ok := f.ledger.Active(id)
	if !ok {
		delete(f.runs, id)
		return
	}

	t.Advance(f.Step())
	if f.opts.OnProgress != nil {
		f.opts.OnProgress(t)
	}

	if t.Done() {
		delete(f.runs, id)
		if f.opts.OnComplete != nil {
			f.opts.OnComplete(t)
		}
		return
	}
	f.schedule(id)
}
