// Package node coordinates one peer: its signaling session, the connections
// it negotiates with other nodes, its downloads and its shared files.
package node

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/catalog"
	"github.com/rudransh-shrivastava/peer-share/internal/config"
	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/peer"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/session"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
	"github.com/sirupsen/logrus"
)

// Signaler is the node's view of the signaling channel.
type Signaler interface {
	Start(ctx context.Context, h session.Handler) error
	Send(msg protocol.Signal) error
	Close() error
}

type Options struct {
	NodeID string
	Config config.NodeConfig
	// Signaler defaults to a websocket session dialing Config.TrackerURL.
	Signaler Signaler
	// Transport creates direct connections. Without one every download is
	// served by the fallback path.
	Transport transport.Factory
	// Catalog defaults to a private in-memory catalog.
	Catalog   *catalog.Catalog
	Deliverer transfer.Deliverer
	Observer  Observer
	Logger    *logrus.Logger
	Rand      func() float64
}

type Node struct {
	id        string
	cfg       config.NodeConfig
	log       *logrus.Entry
	signaler  Signaler
	catalog   *catalog.Catalog
	deliverer transfer.Deliverer
	observer  Observer
	signals   *protocol.Codec[protocol.Signal]
	messages  *protocol.Codec[protocol.ChannelMessage]
	loop      *loop

	ctx         context.Context
	cancel      context.CancelFunc
	ownsCatalog bool
	shutdown    sync.Once

	// Everything below is owned by the loop.
	connected bool
	closing   bool
	registry  *peer.Registry
	ledger    *transfer.Ledger
	fallback  *transfer.Fallback
	history   map[string]transfer.Task
	remote    []protocol.RemoteFile
	pending   map[protocol.Kind]*pendingRequest
}

func New(opts Options) (*Node, error) {
	cfg := withDefaults(opts.Config)

	id := opts.NodeID
	if id == "" {
		id = session.NewNodeID()
	}
	if err := config.ValidateVar(id, "required,nodeid"); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger("info", "text")
	}

	cat := opts.Catalog
	ownsCatalog := false
	if cat == nil {
		dsn := cfg.CatalogDSN
		if dsn == "" {
			dsn = catalog.MemoryDSN
		}
		var err error
		cat, err = catalog.Open(dsn)
		if err != nil {
			return nil, err
		}
		ownsCatalog = true
	}

	signaler := opts.Signaler
	if signaler == nil {
		signaler = session.New(session.Options{
			URL:               cfg.TrackerURL,
			NodeID:            id,
			ReconnectDelay:    cfg.ReconnectDelay,
			HeartbeatInterval: cfg.HeartbeatInterval,
			Logger:            log,
		})
	}

	deliverer := opts.Deliverer
	if deliverer == nil {
		if cfg.DownloadDir != "" {
			deliverer = transfer.FileDeliverer{Dir: cfg.DownloadDir}
		} else {
			deliverer = transfer.Discard{}
		}
	}

	observer := opts.Observer
	if observer == nil {
		observer = LogObserver{Logger: log}
	}

	random := opts.Rand
	if random == nil {
		random = rand.Float64
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		id:          id,
		cfg:         cfg,
		log:         log.WithField("node", id),
		signaler:    signaler,
		catalog:     cat,
		deliverer:   deliverer,
		observer:    observer,
		signals:     protocol.NewSignalCodec(),
		messages:    protocol.NewChannelCodec(),
		loop:        newLoop(),
		ctx:         ctx,
		cancel:      cancel,
		ownsCatalog: ownsCatalog,
		registry:    peer.NewRegistry(opts.Transport),
		ledger:      transfer.NewLedger(),
		history:     make(map[string]transfer.Task),
		pending:     make(map[protocol.Kind]*pendingRequest),
	}
	n.registry.OnRemove = n.onRemove
	n.fallback = transfer.NewFallback(n.ledger, transfer.FallbackOptions{
		Interval:   cfg.FallbackInterval,
		MaxStep:    cfg.FallbackMaxStep,
		Rand:       random,
		Scheduler:  scheduler{n.loop},
		OnProgress: func(t *transfer.Task) { n.observer.Progress(t.Snapshot()) },
		OnComplete: func(t *transfer.Task) { n.complete(t.ID) },
	})

	go n.loop.run()
	return n, nil
}

func withDefaults(c config.NodeConfig) config.NodeConfig {
	d := config.Default().Node
	if c.TrackerURL == "" {
		c.TrackerURL = d.TrackerURL
	}
	if c.ChannelLabel == "" {
		c.ChannelLabel = d.ChannelLabel
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.RefreshDelay <= 0 {
		c.RefreshDelay = d.RefreshDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.NegotiationTimeout <= 0 {
		c.NegotiationTimeout = d.NegotiationTimeout
	}
	if c.ResponderDelay <= 0 {
		c.ResponderDelay = d.ResponderDelay
	}
	if c.FallbackInterval <= 0 {
		c.FallbackInterval = d.FallbackInterval
	}
	if c.FallbackMaxStep <= 0 {
		c.FallbackMaxStep = d.FallbackMaxStep
	}
	return c
}

func (n *Node) ID() string {
	return n.id
}

// Start brings up the signaling channel. An unreachable tracker is not an
// error; the node runs degraded and keeps reconnecting for the life of ctx.
func (n *Node) Start(ctx context.Context) error {
	n.log.Info("Node starting")
	return n.signaler.Start(ctx, sessionHandler{n})
}

// Shutdown tears down every connection, stops pending timers and closes the
// signaling channel. Active downloads are abandoned.
func (n *Node) Shutdown() error {
	var err error
	n.shutdown.Do(func() {
		n.log.Info("Shutting down node")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.loop.call(ctx, func() {
			n.closing = true
			n.fallback.StopAll()
			n.registry.Close()
			n.failPending(ErrStopped)
		})
		n.loop.stop()
		n.cancel()

		err = n.signaler.Close()
		if n.ownsCatalog {
			err = errors.Join(err, n.catalog.Close())
		}
	})
	return err
}

func (n *Node) notify(level Level, title, message string) {
	n.observer.Notify(Notification{Level: level, Title: title, Message: message})
}

// sessionHandler moves session callbacks onto the loop.
type sessionHandler struct {
	n *Node
}

func (h sessionHandler) OnOpen() {
	h.n.loop.post(h.n.sessionOpened)
}

func (h sessionHandler) OnClose(err error) {
	h.n.loop.post(func() { h.n.sessionClosed(err) })
}

func (h sessionHandler) OnMessage(data []byte) {
	h.n.loop.post(func() { h.n.dispatch(data) })
}

func (n *Node) sessionOpened() {
	n.connected = true
	n.notify(LevelSuccess, "Connected", "Connected to the P2P network")
	n.announce()
}

func (n *Node) sessionClosed(err error) {
	n.connected = false
	n.failPending(session.ErrNotConnected)
	n.log.Warnf("Signaling channel closed: %v", err)
	n.notify(LevelError, "Disconnected", "Lost the connection to the server, reconnecting")
}
