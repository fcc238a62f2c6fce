package protocol

// Kind is the value of the mandatory "type" field on every JSON message.
type Kind string

// Signaling kinds exchanged with the tracker.
const (
	KindAllFiles       Kind = "all_files"
	KindAnswer         Kind = "answer"
	KindFileShared     Kind = "file_shared"
	KindGetAllFiles    Kind = "get_all_files"
	KindHeartbeat      Kind = "heartbeat"
	KindICECandidate   Kind = "ice_candidate"
	KindNodeList       Kind = "node_list"
	KindNodeStatus     Kind = "node_status"
	KindOffer          Kind = "offer"
	KindPeerConnected  Kind = "peer_connected"
	KindPeerError      Kind = "peer_error"
	KindSearch         Kind = "search"
	KindSearchResults  Kind = "search_results"
	KindServerShutdown Kind = "server_shutdown"
)

// Data channel kinds exchanged directly between peers.
const (
	KindDownloadProgress Kind = "download_progress"
	KindFileData         Kind = "file_data"
	KindFileError        Kind = "file_error"
	KindRequestFile      Kind = "request_file"
)

func (k Kind) String() string {
	if k == "" {
		return "UNKNOWN"
	}
	return string(k)
}

// Relayed reports whether the tracker forwards this kind to a single peer.
func (k Kind) Relayed() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate:
		return true
	default:
		return false
	}
}

// Node status values carried by node_status.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// TransferCompleted is the status a responder puts in file_data.
const TransferCompleted = "completed"

const (
	// FingerprintSize is the length of a hex encoded SHA-256 fingerprint.
	FingerprintSize = 64
	// MaxMessageSize bounds a single signaling frame.
	MaxMessageSize = 64 * 1024
)
