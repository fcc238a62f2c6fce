// Package transport describes the direct peer connection capability the node
// negotiates over the signaling channel.
package transport

import (
	"errors"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
)

var ErrChannelNotOpen = errors.New("data channel not open")

type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Factory creates peer connections. A node without a factory has no direct
// transport and serves every download through the fallback path.
type Factory interface {
	NewConnection() (Connection, error)
}

// Connection is one negotiated link to a remote node. Callbacks run on
// transport goroutines.
type Connection interface {
	// CreateOffer generates an offer and installs it as the local description.
	CreateOffer() (protocol.SessionDescription, error)
	// CreateAnswer generates an answer and installs it as the local description.
	CreateAnswer() (protocol.SessionDescription, error)
	SetRemoteDescription(desc protocol.SessionDescription) error
	AddICECandidate(candidate protocol.ICECandidateInit) error
	CreateDataChannel(label string) (DataChannel, error)

	OnICECandidate(fn func(protocol.ICECandidateInit))
	OnStateChange(fn func(State))
	OnDataChannel(fn func(DataChannel))

	Close() error
}

type DataChannel interface {
	Label() string
	Send(data []byte) error
	SendText(text string) error

	OnOpen(fn func())
	OnMessage(fn func(Message))
	OnClose(fn func())

	Close() error
}

type Message struct {
	Data     []byte
	IsString bool
}
