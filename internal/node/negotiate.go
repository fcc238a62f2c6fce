package node

import (
	"errors"

	"github.com/rudransh-shrivastava/peer-share/internal/peer"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
)

var errNoSource = errors.New("no source node")

// listeners route transport callbacks for an entry onto the loop.
func (n *Node) listeners() peer.Listeners {
	return peer.Listeners{
		Candidate: func(e *peer.Entry, c protocol.ICECandidateInit) {
			n.loop.post(func() { n.sendCandidate(e, c) })
		},
		State: func(e *peer.Entry, s transport.State) {
			n.loop.post(func() { n.connectionState(e, s) })
		},
		Channel: func(e *peer.Entry, ch transport.DataChannel) {
			n.watchChannel(e, ch)
			n.loop.post(func() { n.registry.SetChannel(e, ch) })
		},
	}
}

// watchChannel installs the channel callbacks. It may run on a transport
// goroutine, so every callback only posts to the loop.
func (n *Node) watchChannel(e *peer.Entry, ch transport.DataChannel) {
	ch.OnOpen(func() {
		n.loop.post(func() { n.channelOpen(e, ch) })
	})
	ch.OnMessage(func(msg transport.Message) {
		n.loop.post(func() { n.channelMessage(e, msg) })
	})
	ch.OnClose(func() {
		n.loop.post(func() { n.channelClosed(e) })
	})
}

// pickSource returns the first listed node other than this one.
func (n *Node) pickSource(file protocol.RemoteFile) (string, error) {
	for _, id := range file.NodeIDs {
		if id != "" && id != n.id {
			return id, nil
		}
	}
	return "", errNoSource
}

// offer starts a direct download of task from remoteID. Any failure before
// the offer leaves hands the task to the fallback path.
func (n *Node) offer(task *transfer.Task, remoteID string) {
	e, err := n.registry.Open(remoteID, peer.RoleInitiator, n.listeners())
	if err != nil {
		n.log.Warnf("Cannot open connection to %s: %v", remoteID, err)
		n.startFallback(task.ID)
		return
	}
	e.TaskID = task.ID
	_ = e.Advance(peer.StateCreatingOffer)

	ch, err := e.Conn.CreateDataChannel(n.cfg.ChannelLabel)
	if err != nil {
		n.log.Warnf("Failed to create data channel to %s: %v", remoteID, err)
		n.handOver(e)
		return
	}
	n.registry.SetChannel(e, ch)
	n.watchChannel(e, ch)

	desc, err := e.Conn.CreateOffer()
	if err != nil {
		n.log.Warnf("Failed to create offer for %s: %v", remoteID, err)
		n.handOver(e)
		return
	}
	if err := n.signaler.Send(protocol.Offer{TargetNodeID: remoteID, Offer: desc}); err != nil {
		n.log.Warnf("Failed to send offer to %s: %v", remoteID, err)
		n.handOver(e)
		return
	}

	_ = e.Advance(peer.StateOfferSent)
	e.Own(n.loop.after(n.cfg.NegotiationTimeout, func() { n.expire(e) }))
	_ = e.Advance(peer.StateAwaitingAnswer)
	n.log.Infof("Offer sent to %s for %s", remoteID, task.File.Name)
}

// expire ends a direct attempt that did not finish in time.
func (n *Node) expire(e *peer.Entry) {
	if !n.registry.Current(e) || e.State.Terminal() {
		return
	}
	n.log.Warnf("Connection to %s timed out in %s, switching to fallback", e.RemoteID, e.State)
	n.handOver(e)
}

// handOver ends the direct attempt and continues the same task on the
// fallback path.
func (n *Node) handOver(e *peer.Entry) {
	if err := e.Advance(peer.StateFallbackTriggered); err != nil {
		return
	}
	n.registry.Sweep()
	n.startFallback(e.TaskID)
}

func (n *Node) startFallback(taskID string) {
	if n.closing {
		return
	}
	if !n.fallback.Start(taskID) {
		return
	}
	n.log.Infof("Download %s continues on the fallback path", taskID)
	name := taskID
	if t, ok := n.ledger.Active(taskID); ok {
		name = t.File.Name
	}
	n.notify(LevelInfo, "Switching download method", "Using fallback download for "+name)
}

// onRemove catches initiator entries torn down from outside the negotiation,
// such as a disconnect or a competing offer from the same node.
func (n *Node) onRemove(e *peer.Entry) {
	if n.closing || e.Role != peer.RoleInitiator || e.State.Terminal() {
		return
	}
	if _, ok := n.ledger.Active(e.TaskID); !ok {
		return
	}
	_ = e.Advance(peer.StateFallbackTriggered)
	n.startFallback(e.TaskID)
}

func (n *Node) sendCandidate(e *peer.Entry, c protocol.ICECandidateInit) {
	if !n.registry.Current(e) {
		return
	}
	if err := n.signaler.Send(protocol.ICECandidate{TargetNodeID: e.RemoteID, Candidate: c}); err != nil {
		n.log.Debugf("Failed to relay candidate to %s: %v", e.RemoteID, err)
	}
}

func (n *Node) connectionState(e *peer.Entry, s transport.State) {
	if !n.registry.Current(e) {
		return
	}
	n.log.Debugf("Connection to %s is %s", e.RemoteID, s)
	switch s {
	case transport.StateConnected:
		n.notify(LevelSuccess, "Peer connected", "Connected to "+e.RemoteID)
	case transport.StateDisconnected, transport.StateFailed:
		if e.Role == peer.RoleInitiator {
			n.notify(LevelWarning, "Peer disconnected", "Lost the connection to "+e.RemoteID)
		}
		n.registry.Teardown(e.RemoteID)
	}
}

func (n *Node) handleAnswer(m *protocol.Answer) {
	e, ok := n.registry.Get(m.SourceNodeID)
	if !ok || e.Role != peer.RoleInitiator {
		n.log.Debugf("Dropping answer from %s: no pending offer", m.SourceNodeID)
		return
	}
	if e.State != peer.StateOfferSent && e.State != peer.StateAwaitingAnswer {
		n.log.Debugf("Dropping answer from %s in state %s", m.SourceNodeID, e.State)
		return
	}
	if err := e.Conn.SetRemoteDescription(m.Answer); err != nil {
		n.log.Warnf("Failed to apply answer from %s: %v", m.SourceNodeID, err)
		n.handOver(e)
		return
	}
	_ = e.Advance(peer.StateChannelOpening)
}

func (n *Node) handleCandidate(m *protocol.ICECandidate) {
	e, ok := n.registry.Get(m.SourceNodeID)
	if !ok || e.State.Terminal() {
		return
	}
	if err := e.Conn.AddICECandidate(m.Candidate); err != nil {
		n.log.Debugf("Failed to add candidate from %s: %v", m.SourceNodeID, err)
	}
}

func (n *Node) channelOpen(e *peer.Entry, ch transport.DataChannel) {
	if !n.registry.Current(e) || e.State.Terminal() {
		return
	}
	if e.Channel == nil {
		n.registry.SetChannel(e, ch)
	}
	if err := e.Advance(peer.StateChannelOpen); err != nil {
		n.log.Debugf("Channel to %s opened late: %v", e.RemoteID, err)
		return
	}
	if e.Role == peer.RoleResponder {
		return
	}

	task, ok := n.ledger.Active(e.TaskID)
	if !ok {
		_ = e.Advance(peer.StateFailed)
		n.registry.Sweep()
		return
	}
	if err := n.sendChannel(e, protocol.RequestFile{FileID: task.File.ID}); err != nil {
		n.log.Warnf("Failed to request %s from %s: %v", task.File.Name, e.RemoteID, err)
		n.handOver(e)
		return
	}
	_ = e.Advance(peer.StateRequesting)
}

func (n *Node) channelMessage(e *peer.Entry, msg transport.Message) {
	if !n.registry.Current(e) || e.State.Terminal() {
		return
	}
	if e.Role == peer.RoleResponder {
		n.serveRequest(e, msg)
		return
	}

	if !msg.IsString {
		n.finishDirect(e)
		return
	}
	decoded, err := n.messages.DecodeFromBytes(msg.Data)
	if errors.Is(err, protocol.ErrMalformed) {
		n.finishDirect(e)
		return
	}
	if err != nil {
		n.log.Debugf("Ignoring channel message from %s: %v", e.RemoteID, err)
		return
	}

	task, ok := n.ledger.Active(e.TaskID)
	if !ok {
		return
	}
	switch m := decoded.(type) {
	case *protocol.FileData:
		if m.FileID != task.File.ID {
			n.log.Debugf("Ignoring file_data for %s", m.FileID)
			return
		}
		n.finishDirect(e)
	case *protocol.FileError:
		n.failDirect(e, m.Message)
	case *protocol.DownloadProgress:
		task.SetProgress(m.Progress)
		_ = e.Advance(peer.StateTransferring)
		n.observer.Progress(task.Snapshot())
	}
}

func (n *Node) channelClosed(e *peer.Entry) {
	if !n.registry.Current(e) || e.State.Terminal() {
		return
	}
	if e.Role == peer.RoleInitiator {
		n.log.Warnf("Channel to %s closed before the download finished", e.RemoteID)
		n.notify(LevelWarning, "Peer disconnected", "Lost the connection to "+e.RemoteID)
		n.handOver(e)
		return
	}
	n.registry.Teardown(e.RemoteID)
}

func (n *Node) finishDirect(e *peer.Entry) {
	_ = e.Advance(peer.StateTransferring)
	_ = e.Advance(peer.StateCompleted)
	n.complete(e.TaskID)
	n.registry.Sweep()
}

func (n *Node) failDirect(e *peer.Entry, reason string) {
	_ = e.Advance(peer.StateFailed)
	if t, ok := n.ledger.Remove(e.TaskID, transfer.StatusFailed); ok {
		n.history[t.ID] = t.Snapshot()
		n.observer.Progress(t.Snapshot())
		n.notify(LevelError, "Download failed", t.File.Name+": "+reason)
	}
	n.registry.Sweep()
}

func (n *Node) sendChannel(e *peer.Entry, msg protocol.ChannelMessage) error {
	if e.Channel == nil {
		return transport.ErrChannelNotOpen
	}
	data, err := n.messages.EncodeToBytes(msg)
	if err != nil {
		return err
	}
	return e.Channel.SendText(string(data))
}
