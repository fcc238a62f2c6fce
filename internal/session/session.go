package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected = errors.New("signaling channel is not connected")
	ErrClosed       = errors.New("session is closed")
)

const (
	writeWait = 10 * time.Second

	defaultReconnectDelay    = 3 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
)

// NewNodeID returns a fresh identifier for this process.
func NewNodeID() string {
	return "node_" + uuid.NewString()
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler receives session events. Callbacks run on the session's own
// goroutines and must not block for long.
type Handler interface {
	OnOpen()
	OnClose(err error)
	OnMessage(data []byte)
}

type Options struct {
	URL               string
	NodeID            string
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer
	Logger            *logrus.Logger
}

// Session owns the signaling websocket. It reconnects after a fixed delay,
// forever, until Close is called.
type Session struct {
	opts  Options
	log   *logrus.Entry
	codec *protocol.Codec[protocol.Signal]

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	handler   Handler
	reconnect *time.Timer
	ctx       context.Context
	cancel    context.CancelFunc

	writeMu sync.Mutex
}

func New(opts Options) *Session {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.NodeID == "" {
		opts.NodeID = NewNodeID()
	}

	return &Session{
		opts:  opts,
		log:   opts.Logger.WithField("node", opts.NodeID),
		codec: protocol.NewSignalCodec(),
		state: StateDisconnected,
	}
}

func (s *Session) ID() string {
	return s.opts.NodeID
}

// Endpoint is the URL the session dials; the node id is the last path segment.
func (s *Session) Endpoint() string {
	return strings.TrimRight(s.opts.URL, "/") + "/" + s.opts.NodeID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start dials the tracker. A failed first dial is not an error: the session
// is marked degraded and keeps retrying in the background.
func (s *Session) Start(ctx context.Context, h Handler) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.handler != nil {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.handler = h
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.connect(); err != nil {
		s.log.Warnf("Tracker unreachable, running degraded: %v", err)
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = StateDegraded
			s.scheduleReconnectLocked()
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) connect() error {
	conn, resp, err := s.opts.Dialer.DialContext(s.ctx, s.Endpoint(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", s.Endpoint(), err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", s.Endpoint(), err)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.state = StateConnected
	h := s.handler
	s.mu.Unlock()

	s.log.Infof("Connected to tracker at %s", s.opts.URL)
	h.OnOpen()

	done := make(chan struct{})
	go s.readLoop(conn, done)
	go s.heartbeat(conn, done)
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(conn, err)
			return
		}
		s.handler.OnMessage(data)
	}
}

func (s *Session) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.write(conn, protocol.Heartbeat{}); err != nil {
				s.log.Debugf("Heartbeat failed: %v", err)
				return
			}
		}
	}
}

func (s *Session) handleClose(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	_ = conn.Close()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.scheduleReconnectLocked()
	h := s.handler
	s.mu.Unlock()

	s.log.Warnf("Tracker connection lost, reconnecting in %s: %v", s.opts.ReconnectDelay, err)
	h.OnClose(err)
}

// scheduleReconnectLocked arms the reconnect timer unless one is already pending.
func (s *Session) scheduleReconnectLocked() {
	if s.reconnect != nil {
		return
	}
	s.reconnect = time.AfterFunc(s.opts.ReconnectDelay, s.retry)
}

func (s *Session) retry() {
	s.mu.Lock()
	s.reconnect = nil
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.connect(); err != nil {
		s.log.Debugf("Reconnect failed: %v", err)
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = StateDegraded
			s.scheduleReconnectLocked()
		}
		s.mu.Unlock()
	}
}

// Send encodes and writes a signaling message.
func (s *Session) Send(msg protocol.Signal) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return s.write(conn, msg)
}

func (s *Session) write(conn *websocket.Conn, msg protocol.Signal) error {
	data, err := s.codec.EncodeToBytes(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close stops reconnecting and closes the socket. It is safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return conn.Close()
}

// Connected reports whether the signaling channel is currently up.
func (s *Session) Connected() bool {
	return s.State() == StateConnected
}
