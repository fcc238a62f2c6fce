package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peer-share/internal/config"
	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/metrics"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

type Config struct {
	Addr              string
	HeartbeatInterval time.Duration
	MaxMessageSize    int64
	RateLimit         float64
	RateBurst         int
	ShutdownTimeout   time.Duration
	Logger            *logrus.Logger
	Metrics           metrics.Collector
}

// ConfigFrom maps the tracker section of the config file.
func ConfigFrom(c config.TrackerConfig) Config {
	return Config{
		Addr:              c.Address,
		HeartbeatInterval: c.HeartbeatInterval,
		MaxMessageSize:    c.MaxMessageSize,
		RateLimit:         c.RateLimit,
		RateBurst:         c.RateBurst,
		ShutdownTimeout:   c.ShutdownTimeout,
	}
}

// Server is the rendezvous point: it keeps the file index and relays
// offers, answers and candidates between connected nodes.
type Server struct {
	config   Config
	logger   *logrus.Logger
	metrics  metrics.Collector
	store    *Store
	codec    *protocol.Codec[protocol.Signal]
	upgrader websocket.Upgrader
	router   *mux.Router
	http     *http.Server

	mu       sync.RWMutex
	clients  map[string]*client
	listener net.Listener
}

func NewServer(cfg Config) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = protocol.MaxMessageSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger("info", "text")
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	s := &Server{
		config:  cfg,
		logger:  log,
		metrics: collector,
		store:   NewStore(),
		codec:   protocol.NewSignalCodec(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*client),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws/{node_id}", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", collector.Handler()).Methods(http.MethodGet)
	s.router = r
	s.http = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listening address once Start has bound it.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// Start serves until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Infof("Tracker server listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown tells every node the server is going away, closes their sockets
// and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down tracker server")

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for id, c := range s.clients {
		clients = append(clients, c)
		delete(s.clients, id)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.send(c, protocol.ServerShutdown{})
		c.close()
		s.metrics.NodeDisconnected()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	nodes := len(s.clients)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"nodes":  nodes,
		"files":  s.store.Len(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["node_id"]
	if err := config.ValidateVar(nodeID, "required,nodeid"); err != nil {
		http.Error(w, "invalid node id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	c := s.newClient(nodeID, conn)
	s.register(c)
	go c.writePump()
	c.readPump()
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	old := s.clients[c.id]
	s.clients[c.id] = c
	others := make([]string, 0, len(s.clients))
	for id := range s.clients {
		if id != c.id {
			others = append(others, id)
		}
	}
	s.mu.Unlock()

	if old != nil {
		s.logger.Warnf("Node %s reconnected, replacing its previous connection", c.id)
		old.close()
		s.metrics.NodeDisconnected()
	}
	s.metrics.NodeConnected()
	s.logger.Infof("Node %s connected", c.id)

	sort.Strings(others)
	s.broadcast(protocol.NodeStatus{NodeID: c.id, Status: protocol.StatusConnected}, c.id)
	s.send(c, protocol.NodeList{Nodes: others})
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	current := s.clients[c.id] == c
	if current {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()

	c.close()
	if !current {
		return
	}

	removed := s.store.RemoveNode(c.id)
	s.metrics.FilesIndexed(s.store.Len())
	s.metrics.NodeDisconnected()
	s.logger.Infof("Node %s disconnected, %d files withdrawn", c.id, removed)

	s.broadcast(protocol.NodeStatus{NodeID: c.id, Status: protocol.StatusDisconnected}, c.id)
}

func (s *Server) lookup(id string) (*client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// broadcast sends msg to every node except the excluded ids.
func (s *Server) broadcast(msg protocol.Signal, exclude ...string) {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for id, c := range s.clients {
		skip := false
		for _, ex := range exclude {
			if id == ex {
				skip = true
				break
			}
		}
		if !skip {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		s.send(c, msg)
	}
}

func (s *Server) send(c *client, msg protocol.Signal) {
	data, err := s.codec.EncodeToBytes(msg)
	if err != nil {
		s.logger.Errorf("Failed to encode %s for %s: %v", msg.Kind(), c.id, err)
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
		s.metrics.MessageSent(msg.Kind().String(), len(data))
	case <-c.done:
	default:
		s.logger.Warnf("Send buffer full for %s, dropping the connection", c.id)
		c.close()
	}
}

func (s *Server) handleMessage(c *client, msg protocol.Signal) {
	switch m := msg.(type) {
	case *protocol.FileShared:
		f := m.File
		if f.ID == "" {
			s.metrics.MessageError(m.Kind().String(), "missing_file_id")
			return
		}
		if f.NodeID == "" {
			f.NodeID = c.id
		}
		if s.store.AddFile(c.id, f) {
			s.logger.Infof("Node %s shared %s", c.id, f.Name)
		}
		s.metrics.FilesIndexed(s.store.Len())
		s.broadcast(protocol.FileShared{File: f}, c.id, f.NodeID)

	case *protocol.Search:
		s.send(c, protocol.SearchResults{Results: s.store.Search(m.Query)})

	case *protocol.GetAllFiles:
		s.send(c, protocol.AllFiles{Files: s.store.All()})

	case *protocol.Offer:
		s.relay(c, m.TargetNodeID, protocol.Offer{SourceNodeID: c.id, Offer: m.Offer}, true)

	case *protocol.Answer:
		s.relay(c, m.TargetNodeID, protocol.Answer{SourceNodeID: c.id, Answer: m.Answer}, true)

	case *protocol.ICECandidate:
		s.relay(c, m.TargetNodeID, protocol.ICECandidate{SourceNodeID: c.id, Candidate: m.Candidate}, false)

	case *protocol.Heartbeat:
		// the read deadline was already extended

	default:
		s.metrics.MessageError(msg.Kind().String(), "unexpected")
		s.logger.Debugf("Ignoring %s from %s", msg.Kind(), c.id)
	}
}

// relay forwards msg to target. A missing target is reported back to the
// sender when notify is set; candidates are dropped silently.
func (s *Server) relay(from *client, target string, msg protocol.Signal, notify bool) {
	to, ok := s.lookup(target)
	s.metrics.MessageRelayed(msg.Kind().String(), ok)
	if ok {
		s.send(to, msg)
		return
	}

	s.logger.Debugf("Cannot relay %s from %s: node %s not connected", msg.Kind(), from.id, target)
	if notify {
		s.send(from, protocol.PeerError{Message: fmt.Sprintf("Target node %s not found", target)})
	}
}
