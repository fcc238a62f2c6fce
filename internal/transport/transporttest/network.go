// Package transporttest provides an in-process transport for tests. Every
// factory handed out by a Network can reach every other one unless the
// network is marked unreachable, in which case negotiation never completes.
package transporttest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
)

var errUnknownDescription = errors.New("unknown session description")

type Network struct {
	mu          sync.Mutex
	nextID      int
	conns       map[string]*Conn
	unreachable bool
}

func NewNetwork() *Network {
	return &Network{conns: make(map[string]*Conn)}
}

// SetUnreachable makes new links stall in the connecting state.
func (n *Network) SetUnreachable(v bool) {
	n.mu.Lock()
	n.unreachable = v
	n.mu.Unlock()
}

// Factory returns a transport.Factory attached to n.
func (n *Network) Factory() transport.Factory {
	return factory{n}
}

// Connections returns every connection created so far.
func (n *Network) Connections() []*Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Conn, 0, len(n.conns))
	for _, c := range n.conns {
		out = append(out, c)
	}
	return out
}

type factory struct {
	n *Network
}

func (f factory) NewConnection() (transport.Connection, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()

	f.n.nextID++
	c := &Conn{
		id:       fmt.Sprintf("conn-%d", f.n.nextID),
		net:      f.n,
		channels: make(map[string]*Channel),
	}
	f.n.conns[c.id] = c
	return c, nil
}

func (n *Network) lookup(sdp string) (*Conn, error) {
	_, id, ok := strings.Cut(sdp, ":")
	if !ok {
		return nil, errUnknownDescription
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownDescription, sdp)
	}
	return c, nil
}

func (n *Network) reachable() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.unreachable
}

// Conn is an in-memory transport.Connection.
type Conn struct {
	id  string
	net *Network

	mu         sync.Mutex
	remote     *Conn
	state      transport.State
	channels   map[string]*Channel
	candidates []protocol.ICECandidateInit
	closed     bool

	onCandidate func(protocol.ICECandidateInit)
	onState     func(transport.State)
	onChannel   func(transport.DataChannel)
}

func (c *Conn) ID() string { return c.id }

// Candidates returns the remote candidates applied so far.
func (c *Conn) Candidates() []protocol.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ICECandidateInit(nil), c.candidates...)
}

func (c *Conn) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) CreateOffer() (protocol.SessionDescription, error) {
	c.gather()
	return protocol.SessionDescription{Type: "offer", SDP: "offer:" + c.id}, nil
}

func (c *Conn) CreateAnswer() (protocol.SessionDescription, error) {
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()
	if remote == nil {
		return protocol.SessionDescription{}, errors.New("answer requires a remote offer")
	}
	c.gather()
	return protocol.SessionDescription{Type: "answer", SDP: "answer:" + c.id}, nil
}

func (c *Conn) SetRemoteDescription(desc protocol.SessionDescription) error {
	remote, err := c.net.lookup(desc.SDP)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	c.remote = remote
	c.mu.Unlock()

	if desc.Type == "answer" {
		remote.mu.Lock()
		remote.remote = c
		remote.mu.Unlock()
		go remote.link(c)
	}
	return nil
}

func (c *Conn) AddICECandidate(candidate protocol.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *Conn) CreateDataChannel(label string) (transport.DataChannel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("connection closed")
	}
	ch := newChannel(label)
	c.channels[label] = ch
	return ch, nil
}

func (c *Conn) OnICECandidate(fn func(protocol.ICECandidateInit)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *Conn) OnStateChange(fn func(transport.State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Conn) OnDataChannel(fn func(transport.DataChannel)) {
	c.mu.Lock()
	c.onChannel = fn
	c.mu.Unlock()
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	remote := c.remote
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
	c.setState(transport.StateClosed)
	if remote != nil {
		remote.setState(transport.StateDisconnected)
	}
	return nil
}

func (c *Conn) gather() {
	c.mu.Lock()
	fn := c.onCandidate
	c.mu.Unlock()
	if fn == nil {
		return
	}
	candidate := protocol.ICECandidateInit{Candidate: "candidate:" + c.id + " 1 udp 1 127.0.0.1 9 typ host"}
	go fn(candidate)
}

func (c *Conn) setState(s transport.State) {
	c.mu.Lock()
	if c.state == s || (c.closed && s != transport.StateClosed) {
		c.mu.Unlock()
		return
	}
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// link runs on the answering side's completion and opens every channel the
// offering side created.
func (c *Conn) link(offerer *Conn) {
	c.setState(transport.StateConnecting)
	offerer.setState(transport.StateConnecting)
	if !c.net.reachable() {
		return
	}

	offerer.mu.Lock()
	if offerer.closed {
		offerer.mu.Unlock()
		return
	}
	local := make([]*Channel, 0, len(offerer.channels))
	for _, ch := range offerer.channels {
		local = append(local, ch)
	}
	offerer.mu.Unlock()

	c.setState(transport.StateConnected)
	offerer.setState(transport.StateConnected)

	for _, ch := range local {
		peerSide := newChannel(ch.label)
		ch.pair(peerSide)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.channels[ch.label] = peerSide
		onChannel := c.onChannel
		c.mu.Unlock()

		if onChannel != nil {
			onChannel(peerSide)
		}
		peerSide.open()
		ch.open()
	}
}
