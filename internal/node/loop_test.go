package node

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := newLoop()
	go l.run()
	defer l.stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.post(func() { got = append(got, i) })
	}
	if err := l.call(context.Background(), func() {}); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	if len(got) != 100 {
		t.Fatalf("expected 100 callbacks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}
}

func TestLoopPostFromInsideLoop(t *testing.T) {
	l := newLoop()
	go l.run()
	defer l.stop()

	done := make(chan struct{})
	l.post(func() {
		for i := 0; i < 1000; i++ {
			l.post(func() {})
		}
		l.post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested posts never ran")
	}
}

func TestLoopAfter(t *testing.T) {
	l := newLoop()
	go l.run()
	defer l.stop()

	fired := make(chan struct{})
	l.after(10*time.Millisecond, func() { close(fired) })

	cancelled := l.after(10*time.Millisecond, func() { t.Error("stopped timer fired") })
	cancelled.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	time.Sleep(30 * time.Millisecond)
}

func TestLoopStop(t *testing.T) {
	l := newLoop()
	go l.run()

	var mu sync.Mutex
	fired := false
	l.after(20*time.Millisecond, func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	l.stop()
	l.stop()

	if l.post(func() {}) {
		t.Error("post succeeded after stop")
	}
	if err := l.call(context.Background(), func() {}); err != ErrStopped {
		t.Errorf("expected ErrStopped, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired {
		t.Error("timer fired after stop")
	}
}
