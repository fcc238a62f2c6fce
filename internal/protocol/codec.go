package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrMissingKind = errors.New("message has no type")
	ErrUnknownKind = errors.New("unknown message type")
	ErrMissingPeer = errors.New("relayed message names no peer")
)

// Codec reads and writes one closed set of messages as JSON objects tagged
// with a "type" field.
type Codec[T Message] struct {
	kinds map[Kind]func() T
}

// NewSignalCodec returns the codec for the signaling channel.
func NewSignalCodec() *Codec[Signal] {
	return &Codec[Signal]{kinds: map[Kind]func() Signal{
		KindAllFiles:       func() Signal { return &AllFiles{} },
		KindAnswer:         func() Signal { return &Answer{} },
		KindFileShared:     func() Signal { return &FileShared{} },
		KindGetAllFiles:    func() Signal { return &GetAllFiles{} },
		KindHeartbeat:      func() Signal { return &Heartbeat{} },
		KindICECandidate:   func() Signal { return &ICECandidate{} },
		KindNodeList:       func() Signal { return &NodeList{} },
		KindNodeStatus:     func() Signal { return &NodeStatus{} },
		KindOffer:          func() Signal { return &Offer{} },
		KindPeerConnected:  func() Signal { return &PeerConnected{} },
		KindPeerError:      func() Signal { return &PeerError{} },
		KindSearch:         func() Signal { return &Search{} },
		KindSearchResults:  func() Signal { return &SearchResults{} },
		KindServerShutdown: func() Signal { return &ServerShutdown{} },
	}}
}

// NewChannelCodec returns the codec for peer data channels.
func NewChannelCodec() *Codec[ChannelMessage] {
	return &Codec[ChannelMessage]{kinds: map[Kind]func() ChannelMessage{
		KindDownloadProgress: func() ChannelMessage { return &DownloadProgress{} },
		KindFileData:         func() ChannelMessage { return &FileData{} },
		KindFileError:        func() ChannelMessage { return &FileError{} },
		KindRequestFile:      func() ChannelMessage { return &RequestFile{} },
	}}
}

// EncodeToBytes marshals msg and adds its type tag.
func (c *Codec[T]) EncodeToBytes(msg T) ([]byte, error) {
	if _, ok := c.kinds[msg.Kind()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, msg.Kind())
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.Kind(), err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten %s: %w", msg.Kind(), err)
	}
	tag, err := json.Marshal(msg.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag

	return json.Marshal(fields)
}

// DecodeFromBytes parses a tagged object into the pointer variant registered
// for its kind. Relayed signals must name a peer.
func (c *Codec[T]) DecodeFromBytes(data []byte) (T, error) {
	var zero T

	var envelope struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if envelope.Type == "" {
		return zero, ErrMissingKind
	}

	newMsg, ok := c.kinds[envelope.Type]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownKind, string(envelope.Type))
	}

	msg := newMsg()
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(msg); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrMalformed, envelope.Type, err)
	}

	if envelope.Type.Relayed() {
		if s, ok := any(msg).(Signal); ok && Peer(s) == "" {
			return zero, fmt.Errorf("%w: %s", ErrMissingPeer, envelope.Type)
		}
	}

	return msg, nil
}

// UnmarshalJSON accepts both spellings of the target key.
func (m *ICECandidate) UnmarshalJSON(data []byte) error {
	type plain ICECandidate
	var aux struct {
		plain
		SnakeTarget string `json:"target_node_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = ICECandidate(aux.plain)
	if m.TargetNodeID == "" {
		m.TargetNodeID = aux.SnakeTarget
	}
	return nil
}

// MarshalJSON writes a file without an artist as "artist":null, the shape
// browser peers expect.
func (f RemoteFile) MarshalJSON() ([]byte, error) {
	type plain RemoteFile
	var artist *string
	if f.Artist != "" {
		artist = &f.Artist
	}
	return json.Marshal(struct {
		plain
		Artist *string `json:"artist"`
	}{plain(f), artist})
}
