package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/config"
	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/session"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
	"github.com/stretchr/testify/require"
)

var signalCodec = protocol.NewSignalCodec()

// fakeSignaler stands in for the tracker session. Messages the node sends are
// recorded; deliver feeds messages back as if the tracker sent them.
type fakeSignaler struct {
	mu      sync.Mutex
	handler session.Handler
	sent    []protocol.Signal
	sendErr error
	closed  bool
}

func (f *fakeSignaler) Start(_ context.Context, h session.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return nil
}

func (f *fakeSignaler) Send(msg protocol.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSignaler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSignaler) h() session.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeSignaler) open() {
	f.h().OnOpen()
}

func (f *fakeSignaler) drop() {
	f.h().OnClose(errors.New("connection reset"))
}

func (f *fakeSignaler) deliver(t *testing.T, msg protocol.Signal) {
	t.Helper()
	data, err := signalCodec.EncodeToBytes(msg)
	require.NoError(t, err)
	f.h().OnMessage(data)
}

func (f *fakeSignaler) count(kind protocol.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.Kind() == kind {
			n++
		}
	}
	return n
}

func (f *fakeSignaler) last(kind protocol.Kind) protocol.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].Kind() == kind {
			return f.sent[i]
		}
	}
	return nil
}

// recorder is an Observer that keeps everything it sees.
type recorder struct {
	mu       sync.Mutex
	notes    []Notification
	progress map[string][]float64
	catalogs [][]protocol.RemoteFile
}

func newRecorder() *recorder {
	return &recorder{progress: make(map[string][]float64)}
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) Progress(t transfer.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[t.ID] = append(r.progress[t.ID], t.Progress)
}

func (r *recorder) CatalogUpdated(files []protocol.RemoteFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalogs = append(r.catalogs, files)
}

func (r *recorder) titled(title string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Title == title {
			n++
		}
	}
	return n
}

func (r *recorder) progressOf(id string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.progress[id]...)
}

func testConfig() config.NodeConfig {
	return config.NodeConfig{
		ChannelLabel:       "fileTransfer",
		ReconnectDelay:     50 * time.Millisecond,
		HeartbeatInterval:  time.Second,
		RefreshDelay:       100 * time.Millisecond,
		RequestTimeout:     200 * time.Millisecond,
		NegotiationTimeout: 300 * time.Millisecond,
		ResponderDelay:     50 * time.Millisecond,
		FallbackInterval:   10 * time.Millisecond,
		FallbackMaxStep:    40,
	}
}

func newTestNode(t *testing.T, opts Options) (*Node, *fakeSignaler, *recorder) {
	t.Helper()
	sig := &fakeSignaler{}
	rec := newRecorder()
	if opts.NodeID == "" {
		opts.NodeID = "node_y"
	}
	if opts.Config.ChannelLabel == "" {
		opts.Config = testConfig()
	}
	if opts.Signaler == nil {
		opts.Signaler = sig
	}
	if opts.Observer == nil {
		opts.Observer = rec
	}
	opts.Logger = logger.Discard()

	n, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Shutdown() })
	require.NoError(t, n.Start(context.Background()))
	return n, sig, rec
}

// flush waits until everything queued on the loop so far has run.
func flush(t *testing.T, n *Node) {
	t.Helper()
	require.NoError(t, n.loop.call(context.Background(), func() {}))
}

func waitForStatus(t *testing.T, n *Node, id string, status transfer.Status, within time.Duration) transfer.Task {
	t.Helper()
	var task transfer.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = n.Task(context.Background(), id)
		return err == nil && task.Status == status
	}, within, 10*time.Millisecond, "task %s never reached %s", id, status)
	return task
}

func requireMonotonic(t *testing.T, values []float64) {
	t.Helper()
	for i := 1; i < len(values); i++ {
		require.GreaterOrEqual(t, values[i], values[i-1], "progress went backwards at %d: %v", i, values)
	}
	for _, v := range values {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 100.0)
	}
}
