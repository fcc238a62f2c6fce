package node

import (
	"context"
	"errors"

	"github.com/rudransh-shrivastava/peer-share/internal/catalog"
	"github.com/rudransh-shrivastava/peer-share/internal/peer"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
)

// handleOffer answers a remote node that wants one of our files. A fresh
// responder entry replaces whatever we held for that node.
func (n *Node) handleOffer(m *protocol.Offer) {
	remoteID := m.SourceNodeID
	if remoteID == "" || remoteID == n.id {
		return
	}

	e, err := n.registry.Open(remoteID, peer.RoleResponder, n.listeners())
	if err != nil {
		n.log.Warnf("Cannot answer offer from %s: %v", remoteID, err)
		return
	}
	_ = e.Advance(peer.StateAnswering)

	fail := func(what string, err error) {
		n.log.Warnf("Failed to %s for %s: %v", what, remoteID, err)
		_ = e.Advance(peer.StateFailed)
		n.registry.Sweep()
	}

	if err := e.Conn.SetRemoteDescription(m.Offer); err != nil {
		fail("apply offer", err)
		return
	}
	desc, err := e.Conn.CreateAnswer()
	if err != nil {
		fail("create answer", err)
		return
	}
	if err := n.signaler.Send(protocol.Answer{TargetNodeID: remoteID, Answer: desc}); err != nil {
		fail("send answer", err)
		return
	}
	n.log.Infof("Answered offer from %s", remoteID)
}

// serveRequest replies to a request_file from the downloading side.
func (n *Node) serveRequest(e *peer.Entry, msg transport.Message) {
	decoded, err := n.messages.DecodeFromBytes(msg.Data)
	if err != nil {
		n.log.Debugf("Ignoring channel message from %s: %v", e.RemoteID, err)
		return
	}
	req, ok := decoded.(*protocol.RequestFile)
	if !ok {
		n.log.Debugf("Ignoring %s from %s", decoded.Kind(), e.RemoteID)
		return
	}

	f, err := n.catalog.Get(n.ctx, req.FileID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotShared) {
			n.log.Errorf("Catalog lookup failed: %v", err)
		}
		n.log.Infof("%s requested %s, which is not shared here", e.RemoteID, req.FileID)
		if err := n.sendChannel(e, protocol.FileError{FileID: req.FileID, Message: "File not found"}); err != nil {
			n.log.Debugf("Failed to send file_error to %s: %v", e.RemoteID, err)
		}
		return
	}

	n.log.Infof("Serving %s to %s", f.Name, e.RemoteID)
	e.Own(n.loop.after(n.cfg.ResponderDelay, func() {
		if !n.registry.Current(e) || e.State.Terminal() {
			return
		}
		reply := protocol.FileData{
			FileID:   f.Fingerprint,
			FileName: f.Name,
			FileSize: f.Size,
			Status:   protocol.TransferCompleted,
		}
		if err := n.sendChannel(e, reply); err != nil {
			n.log.Warnf("Failed to send %s to %s: %v", f.Name, e.RemoteID, err)
		}
	}))
}

// announce tells the tracker about every locally shared file.
func (n *Node) announce() {
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.RequestTimeout)
	defer cancel()

	files, err := n.catalog.List(ctx)
	if err != nil {
		n.log.Errorf("Failed to list shared files: %v", err)
		return
	}
	for _, f := range files {
		info := f.Info()
		info.NodeID = n.id
		if err := n.signaler.Send(protocol.FileShared{File: info}); err != nil {
			n.log.Warnf("Failed to announce %s: %v", f.Name, err)
			return
		}
	}
	if len(files) > 0 {
		n.log.Infof("Announced %d shared files", len(files))
	}
}
