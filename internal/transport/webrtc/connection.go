package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
)

type connection struct {
	pc *webrtc.PeerConnection
}

func (c *connection) CreateOffer() (protocol.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return toSessionDescription(offer), nil
}

func (c *connection) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("failed to set local description: %w", err)
	}
	return toSessionDescription(answer), nil
}

func (c *connection) SetRemoteDescription(desc protocol.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(fromSessionDescription(desc)); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (c *connection) AddICECandidate(candidate protocol.ICECandidateInit) error {
	if err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	}); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (c *connection) CreateDataChannel(label string) (transport.DataChannel, error) {
	dc, err := c.pc.CreateDataChannel(label, DataChannelConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	return &dataChannel{dc: dc}, nil
}

func (c *connection) OnICECandidate(fn func(protocol.ICECandidateInit)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		fn(protocol.ICECandidateInit{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (c *connection) OnStateChange(fn func(transport.State)) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(toState(s))
	})
}

func (c *connection) OnDataChannel(fn func(transport.DataChannel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(&dataChannel{dc: dc})
	})
}

func (c *connection) Close() error {
	return c.pc.Close()
}

type dataChannel struct {
	dc *webrtc.DataChannel
}

func (d *dataChannel) Label() string {
	return d.dc.Label()
}

func (d *dataChannel) Send(data []byte) error {
	if d.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transport.ErrChannelNotOpen
	}
	return d.dc.Send(data)
}

func (d *dataChannel) SendText(text string) error {
	if d.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transport.ErrChannelNotOpen
	}
	return d.dc.SendText(text)
}

func (d *dataChannel) OnOpen(fn func()) {
	d.dc.OnOpen(fn)
}

func (d *dataChannel) OnMessage(fn func(transport.Message)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(transport.Message{Data: msg.Data, IsString: msg.IsString})
	})
}

func (d *dataChannel) OnClose(fn func()) {
	d.dc.OnClose(fn)
}

func (d *dataChannel) Close() error {
	return d.dc.Close()
}
