// Package webrtc implements the peer transport with pion/webrtc.
package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
)

var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

func STUNConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = DefaultSTUNServers
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
}

func DataChannelConfig() *webrtc.DataChannelInit {
	protocolName := "file-transfer"
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}

type factory struct {
	config webrtc.Configuration
}

// New returns a transport factory using the given STUN servers, or the
// public Google ones when none are given.
func New(stunServers []string) transport.Factory {
	return &factory{config: STUNConfig(stunServers)}
}

func (f *factory) NewConnection() (transport.Connection, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return &connection{pc: pc}, nil
}

func toSessionDescription(desc webrtc.SessionDescription) protocol.SessionDescription {
	return protocol.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func fromSessionDescription(desc protocol.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(desc.Type), SDP: desc.SDP}
}

func toState(s webrtc.PeerConnectionState) transport.State {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return transport.StateNew
	case webrtc.PeerConnectionStateConnecting:
		return transport.StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return transport.StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return transport.StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return transport.StateFailed
	default:
		return transport.StateClosed
	}
}
