package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
)

func TestSTUNConfigDefaults(t *testing.T) {
	config := STUNConfig(nil)

	if len(config.ICEServers) != 1 {
		t.Errorf("expected 1 ICE server group, got %d", len(config.ICEServers))
	}

	if len(config.ICEServers[0].URLs) != 5 {
		t.Errorf("expected 5 STUN URLs, got %d", len(config.ICEServers[0].URLs))
	}

	if config.ICETransportPolicy != webrtc.ICETransportPolicyAll {
		t.Errorf("expected ICETransportPolicyAll")
	}
}

func TestSTUNConfigCustom(t *testing.T) {
	config := STUNConfig([]string{"stun:example.org:3478"})
	if got := config.ICEServers[0].URLs; len(got) != 1 || got[0] != "stun:example.org:3478" {
		t.Errorf("expected custom STUN server, got %v", got)
	}
}

func TestDataChannelConfig(t *testing.T) {
	config := DataChannelConfig()

	if config.Ordered == nil || !*config.Ordered {
		t.Error("expected Ordered to be true")
	}

	if config.MaxRetransmits != nil {
		t.Error("expected MaxRetransmits to be nil (unlimited)")
	}

	if config.Protocol == nil || *config.Protocol != "file-transfer" {
		t.Error("expected Protocol to be 'file-transfer'")
	}
}

func TestSessionDescriptionConversion(t *testing.T) {
	desc := fromSessionDescription(protocol.SessionDescription{Type: "answer", SDP: "v=0"})
	if desc.Type != webrtc.SDPTypeAnswer {
		t.Errorf("expected answer, got %s", desc.Type)
	}

	back := toSessionDescription(desc)
	if back.Type != "answer" || back.SDP != "v=0" {
		t.Errorf("unexpected round trip %+v", back)
	}
}

func TestStateMapping(t *testing.T) {
	tests := []struct {
		in  webrtc.PeerConnectionState
		out transport.State
	}{
		{webrtc.PeerConnectionStateConnected, transport.StateConnected},
		{webrtc.PeerConnectionStateDisconnected, transport.StateDisconnected},
		{webrtc.PeerConnectionStateFailed, transport.StateFailed},
		{webrtc.PeerConnectionStateClosed, transport.StateClosed},
	}
	for _, tt := range tests {
		if got := toState(tt.in); got != tt.out {
			t.Errorf("toState(%s) = %s, want %s", tt.in, got, tt.out)
		}
	}
}

func TestOfferAnswerOverLoopback(t *testing.T) {
	f := New(nil)

	offerer, err := f.NewConnection()
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	defer func() { _ = offerer.Close() }()

	answerer, err := f.NewConnection()
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	defer func() { _ = answerer.Close() }()

	if _, err := offerer.CreateDataChannel("fileTransfer"); err != nil {
		t.Fatalf("CreateDataChannel failed: %v", err)
	}

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}
	if offer.Type != "offer" || offer.SDP == "" {
		t.Fatalf("unexpected offer %+v", offer)
	}

	if err := answerer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription failed: %v", err)
	}
	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer failed: %v", err)
	}
	if answer.Type != "answer" {
		t.Errorf("expected answer type, got %q", answer.Type)
	}
	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription on offerer failed: %v", err)
	}
}
