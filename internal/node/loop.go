package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
)

var ErrStopped = errors.New("node is not running")

// loop runs every piece of node state mutation on one goroutine. The queue
// is unbounded so transport callbacks fired from inside a handler (closing a
// connection reports its state synchronously) never block.
type loop struct {
	mu      sync.Mutex
	queue   []func()
	timers  map[*time.Timer]struct{}
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newLoop() *loop {
	return &loop{
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			fn()

			select {
			case <-l.quit:
				return
			default:
			}
		}
	}
}

// post queues fn. It reports false once the loop has stopped.
func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the loop and waits for it to finish.
func (l *loop) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.post(func() {
		fn()
		close(finished)
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// after runs fn on the loop once d has elapsed. Stopping the returned timer
// before it fires cancels fn.
func (l *loop) after(d time.Duration, fn func()) *time.Timer {
	var t *time.Timer
	l.mu.Lock()
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.post(fn)
	})
	if l.stopped {
		t.Stop()
	} else {
		l.timers[t] = struct{}{}
	}
	l.mu.Unlock()
	return t
}

// stop halts the loop and every pending timer. Queued work is discarded.
func (l *loop) stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	for t := range l.timers {
		t.Stop()
	}
	l.timers = nil
	l.queue = nil
	l.mu.Unlock()

	close(l.quit)
	<-l.done
}

// scheduler adapts the loop for transfer.Fallback.
type scheduler struct {
	l *loop
}

func (s scheduler) AfterFunc(d time.Duration, f func()) transfer.Stopper {
	return s.l.after(d, f)
}
