package tracker

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"golang.org/x/time/rate"
)

// client is one connected node.
type client struct {
	server  *Server
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	done chan struct{}
	once sync.Once
}

func (s *Server) newClient(id string, conn *websocket.Conn) *client {
	limit := rate.Inf
	if s.config.RateLimit > 0 {
		limit = rate.Limit(s.config.RateLimit)
	}
	burst := s.config.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &client{
		server:  s,
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		limiter: rate.NewLimiter(limit, burst),
		done:    make(chan struct{}),
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) readDeadline() time.Time {
	return time.Now().Add(2 * c.server.config.HeartbeatInterval)
}

// readPump decodes messages from the node until the socket fails or the node
// stays silent for two heartbeat intervals.
func (c *client) readPump() {
	s := c.server
	defer s.unregister(c)

	c.conn.SetReadLimit(s.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(c.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(c.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debugf("Read from %s failed: %v", c.id, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(c.readDeadline())

		if !c.limiter.Allow() {
			s.metrics.MessageError("unknown", "rate_limited")
			s.send(c, protocol.PeerError{Message: "rate limit exceeded"})
			continue
		}

		msg, err := s.codec.DecodeFromBytes(data)
		if err != nil {
			s.metrics.MessageError("unknown", errorType(err))
			s.logger.Debugf("Dropping message from %s: %v", c.id, err)
			continue
		}
		s.metrics.MessageReceived(msg.Kind().String(), len(data))
		s.handleMessage(c, msg)
	}
}

// writePump owns all writes to the socket. Queued messages are flushed
// before the connection is closed.
func (c *client) writePump() {
	s := c.server
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	heartbeat, _ := s.codec.EncodeToBytes(protocol.Heartbeat{})

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.TextMessage, heartbeat); err != nil {
				return
			}
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			for {
				select {
				case data := <-c.send:
					if err := c.write(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					_ = c.write(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, protocol.ErrMissingKind):
		return "missing_kind"
	case errors.Is(err, protocol.ErrMissingPeer):
		return "missing_peer"
	default:
		return "malformed"
	}
}
