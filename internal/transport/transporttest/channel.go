package transporttest

import (
	"errors"
	"sync"

	"github.com/rudransh-shrivastava/peer-share/internal/transport"
)

// Channel is an in-memory transport.DataChannel. Messages are delivered in
// order on a single goroutine once a message handler is installed.
type Channel struct {
	label string

	mu      sync.Mutex
	peer    *Channel
	opened  bool
	closed  bool
	onOpen  func()
	onMsg   func(transport.Message)
	onClose func()
	inbox   chan transport.Message
	ready   chan struct{}
	isReady bool
	sent    [][]byte
}

func newChannel(label string) *Channel {
	ch := &Channel{
		label: label,
		inbox: make(chan transport.Message, 64),
		ready: make(chan struct{}),
	}
	go ch.pump()
	return ch
}

func (ch *Channel) pair(other *Channel) {
	ch.mu.Lock()
	ch.peer = other
	ch.mu.Unlock()

	other.mu.Lock()
	other.peer = ch
	other.mu.Unlock()
}

func (ch *Channel) open() {
	ch.mu.Lock()
	if ch.opened || ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.opened = true
	fn := ch.onOpen
	ch.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

func (ch *Channel) pump() {
	<-ch.ready
	for msg := range ch.inbox {
		ch.mu.Lock()
		fn := ch.onMsg
		ch.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	}
}

func (ch *Channel) Label() string { return ch.label }

// Sent returns every payload written to this side.
func (ch *Channel) Sent() [][]byte {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([][]byte(nil), ch.sent...)
}

func (ch *Channel) Send(data []byte) error {
	return ch.deliver(transport.Message{Data: append([]byte(nil), data...)})
}

func (ch *Channel) SendText(text string) error {
	return ch.deliver(transport.Message{Data: []byte(text), IsString: true})
}

func (ch *Channel) deliver(msg transport.Message) error {
	ch.mu.Lock()
	if !ch.opened || ch.closed || ch.peer == nil {
		ch.mu.Unlock()
		return transport.ErrChannelNotOpen
	}
	peer := ch.peer
	ch.sent = append(ch.sent, msg.Data)
	ch.mu.Unlock()

	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return transport.ErrChannelNotOpen
	}
	select {
	case peer.inbox <- msg:
		return nil
	default:
		return errors.New("channel buffer full")
	}
}

// OnOpen fires fn immediately when the channel is already open.
func (ch *Channel) OnOpen(fn func()) {
	ch.mu.Lock()
	ch.onOpen = fn
	opened := ch.opened && !ch.closed
	ch.mu.Unlock()
	if opened {
		go fn()
	}
}

func (ch *Channel) OnMessage(fn func(transport.Message)) {
	ch.mu.Lock()
	ch.onMsg = fn
	ch.markReady()
	ch.mu.Unlock()
}

func (ch *Channel) OnClose(fn func()) {
	ch.mu.Lock()
	ch.onClose = fn
	ch.mu.Unlock()
}

func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	wasOpen := ch.opened
	peer := ch.peer
	fn := ch.onClose
	close(ch.inbox)
	ch.markReady()
	ch.mu.Unlock()

	if wasOpen && fn != nil {
		go fn()
	}
	if peer != nil {
		_ = peer.Close()
	}
	return nil
}

// markReady releases the pump. Callers hold ch.mu.
func (ch *Channel) markReady() {
	if !ch.isReady {
		ch.isReady = true
		close(ch.ready)
	}
}
