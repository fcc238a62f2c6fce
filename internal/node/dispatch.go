package node

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/catalog"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/session"
)

var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrRequestPending = errors.New("a request of this kind is already pending")
)

// pendingRequest waits for the single response to a catalog query. The wire
// carries no correlation id, so there is at most one per response kind.
type pendingRequest struct {
	timer   *time.Timer
	waiters []func([]protocol.RemoteFile, error)
}

// dispatch handles one signaling message. Bad input is logged and dropped.
func (n *Node) dispatch(data []byte) {
	msg, err := n.signals.DecodeFromBytes(data)
	if err != nil {
		n.log.Debugf("Dropping signaling message: %v", err)
		return
	}

	switch m := msg.(type) {
	case *protocol.NodeList:
		n.log.Debugf("Node list: %v", m.Nodes)
		n.refresh()

	case *protocol.FileShared:
		n.notify(LevelInfo, "File shared", fmt.Sprintf("New file shared: %s", m.File.Name))
		n.refresh()

	case *protocol.PeerConnected:
		n.log.Debugf("Peer %s connected", m.NodeID)

	case *protocol.NodeStatus:
		n.log.Debugf("Node %s is %s", m.NodeID, m.Status)
		if m.Status == protocol.StatusDisconnected {
			// give the tracker time to withdraw the node's files
			n.loop.after(n.cfg.RefreshDelay, n.refresh)
		}

	case *protocol.AllFiles:
		n.resolve(protocol.KindAllFiles, m.Files)

	case *protocol.SearchResults:
		n.resolve(protocol.KindSearchResults, m.Results)

	case *protocol.Offer:
		n.handleOffer(m)

	case *protocol.Answer:
		n.handleAnswer(m)

	case *protocol.ICECandidate:
		n.handleCandidate(m)

	case *protocol.PeerError:
		n.notify(LevelWarning, "Peer error", m.Message)

	case *protocol.Heartbeat:

	case *protocol.ServerShutdown:
		n.notify(LevelWarning, "Server shutdown", "The server is shutting down")

	default:
		n.log.Debugf("Ignoring %s", msg.Kind())
	}
}

// request sends msg and registers reply for the response of the given kind.
// Catalog listings share one round trip; a second search is refused.
func (n *Node) request(msg protocol.Signal, kind protocol.Kind, reply func([]protocol.RemoteFile, error)) {
	if !n.connected {
		reply(nil, session.ErrNotConnected)
		return
	}

	if p, ok := n.pending[kind]; ok {
		if kind == protocol.KindAllFiles {
			p.waiters = append(p.waiters, reply)
			return
		}
		reply(nil, ErrRequestPending)
		return
	}

	if err := n.signaler.Send(msg); err != nil {
		reply(nil, err)
		return
	}

	p := &pendingRequest{waiters: []func([]protocol.RemoteFile, error){reply}}
	p.timer = n.loop.after(n.cfg.RequestTimeout, func() {
		if n.pending[kind] != p {
			return
		}
		delete(n.pending, kind)
		n.log.Warnf("No %s within %s, keeping the previous results", kind, n.cfg.RequestTimeout)
		for _, w := range p.waiters {
			w(nil, ErrRequestTimeout)
		}
	})
	n.pending[kind] = p
}

// resolve completes the pending request for kind. Unsolicited responses are
// dropped.
func (n *Node) resolve(kind protocol.Kind, files []protocol.RemoteFile) {
	p, ok := n.pending[kind]
	if !ok {
		n.log.Debugf("Dropping unsolicited %s", kind)
		return
	}
	delete(n.pending, kind)
	p.timer.Stop()

	if files == nil {
		files = []protocol.RemoteFile{}
	}
	if kind == protocol.KindAllFiles {
		n.remote = files
		n.observer.CatalogUpdated(slices.Clone(files))
	}
	for _, w := range p.waiters {
		w(slices.Clone(files), nil)
	}
}

func (n *Node) failPending(err error) {
	for kind, p := range n.pending {
		delete(n.pending, kind)
		p.timer.Stop()
		for _, w := range p.waiters {
			w(nil, err)
		}
	}
}

// refresh re-requests the full remote catalog. On failure the previous
// catalog stays in place.
func (n *Node) refresh() {
	n.request(protocol.GetAllFiles{}, protocol.KindAllFiles, func(_ []protocol.RemoteFile, err error) {
		if err != nil && !errors.Is(err, session.ErrNotConnected) {
			n.log.Debugf("Catalog refresh failed: %v", err)
		}
	})
}

type result struct {
	files []protocol.RemoteFile
	err   error
}

// roundTrip issues a request from outside the loop and waits for its reply.
func (n *Node) roundTrip(ctx context.Context, issue func(reply func([]protocol.RemoteFile, error))) ([]protocol.RemoteFile, error) {
	done := make(chan result, 1)
	reply := func(files []protocol.RemoteFile, err error) { done <- result{files, err} }

	if err := n.loop.call(ctx, func() { issue(reply) }); err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.files, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.loop.done:
		return nil, ErrStopped
	}
}

// ListAll asks the tracker for every file on the network and replaces the
// cached remote catalog with the answer.
func (n *Node) ListAll(ctx context.Context) ([]protocol.RemoteFile, error) {
	return n.roundTrip(ctx, func(reply func([]protocol.RemoteFile, error)) {
		n.request(protocol.GetAllFiles{}, protocol.KindAllFiles, reply)
	})
}

// Search queries the tracker by name or artist. While disconnected it
// searches the built-in offline library instead.
func (n *Node) Search(ctx context.Context, term string) ([]protocol.RemoteFile, error) {
	return n.roundTrip(ctx, func(reply func([]protocol.RemoteFile, error)) {
		if !n.connected {
			reply(catalog.SearchOffline(term), nil)
			return
		}
		n.request(protocol.Search{Query: term}, protocol.KindSearchResults, reply)
	})
}

// Catalog returns the last remote catalog received.
func (n *Node) Catalog(ctx context.Context) ([]protocol.RemoteFile, error) {
	var files []protocol.RemoteFile
	err := n.loop.call(ctx, func() {
		files = slices.Clone(n.remote)
	})
	return files, err
}

// Connected reports whether the signaling channel is up.
func (n *Node) Connected(ctx context.Context) (bool, error) {
	var connected bool
	err := n.loop.call(ctx, func() { connected = n.connected })
	return connected, err
}
