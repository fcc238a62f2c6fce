package protocol

// Message is anything that can travel as a typed JSON object.
type Message interface {
	Kind() Kind
}

// Signal is the closed set of messages carried by the signaling channel.
type Signal interface {
	Message
	signal()
}

// ChannelMessage is the closed set of messages carried by a peer data channel.
type ChannelMessage interface {
	Message
	channel()
}

// FileInfo is the public part of a shared file, as announced to the tracker.
type FileInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         string `json:"size"`
	ActualSize   int64  `json:"actualSize"`
	Type         string `json:"type"`
	LastModified int64  `json:"lastModified"`
	NodeID       string `json:"nodeId"`
}

// RemoteFile describes a file visible somewhere on the network.
type RemoteFile struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artist     string   `json:"artist"`
	Size       string   `json:"size"`
	ActualSize int64    `json:"actualSize"`
	Sources    int      `json:"sources"`
	NodeIDs    []string `json:"node_ids"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type ICECandidateInit struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type Search struct {
	Query string `json:"query"`
}

func (Search) Kind() Kind { return KindSearch }
func (Search) signal()    {}

type SearchResults struct {
	Results []RemoteFile `json:"results"`
}

func (SearchResults) Kind() Kind { return KindSearchResults }
func (SearchResults) signal()    {}

type FileShared struct {
	File FileInfo `json:"file"`
}

func (FileShared) Kind() Kind { return KindFileShared }
func (FileShared) signal()    {}

type GetAllFiles struct{}

func (GetAllFiles) Kind() Kind { return KindGetAllFiles }
func (GetAllFiles) signal()    {}

type AllFiles struct {
	Files []RemoteFile `json:"files"`
}

func (AllFiles) Kind() Kind { return KindAllFiles }
func (AllFiles) signal()    {}

type PeerConnected struct {
	NodeID string `json:"node_id"`
}

func (PeerConnected) Kind() Kind { return KindPeerConnected }
func (PeerConnected) signal()    {}

type NodeList struct {
	Nodes []string `json:"nodes"`
}

func (NodeList) Kind() Kind { return KindNodeList }
func (NodeList) signal()    {}

type NodeStatus struct {
	NodeID string `json:"node_id"`
	Status string `json:"status"`
}

func (NodeStatus) Kind() Kind { return KindNodeStatus }
func (NodeStatus) signal()    {}

// Offer carries TargetNodeID when sent by a node and SourceNodeID once
// relayed by the tracker.
type Offer struct {
	TargetNodeID string             `json:"target_node_id,omitempty"`
	SourceNodeID string             `json:"source_node_id,omitempty"`
	Offer        SessionDescription `json:"offer"`
}

func (Offer) Kind() Kind { return KindOffer }
func (Offer) signal()    {}

type Answer struct {
	TargetNodeID string             `json:"target_node_id,omitempty"`
	SourceNodeID string             `json:"source_node_id,omitempty"`
	Answer       SessionDescription `json:"answer"`
}

func (Answer) Kind() Kind { return KindAnswer }
func (Answer) signal()    {}

// ICECandidate is addressed with the camel cased targetNodeId key on the way
// out. Decoding also accepts target_node_id.
type ICECandidate struct {
	TargetNodeID string           `json:"targetNodeId,omitempty"`
	SourceNodeID string           `json:"source_node_id,omitempty"`
	Candidate    ICECandidateInit `json:"candidate"`
}

func (ICECandidate) Kind() Kind { return KindICECandidate }
func (ICECandidate) signal()    {}

type Heartbeat struct{}

func (Heartbeat) Kind() Kind { return KindHeartbeat }
func (Heartbeat) signal()    {}

type PeerError struct {
	Message string `json:"message"`
}

func (PeerError) Kind() Kind { return KindPeerError }
func (PeerError) signal()    {}

type ServerShutdown struct{}

func (ServerShutdown) Kind() Kind { return KindServerShutdown }
func (ServerShutdown) signal()    {}

type RequestFile struct {
	FileID string `json:"file_id"`
}

func (RequestFile) Kind() Kind { return KindRequestFile }
func (RequestFile) channel()   {}

type FileData struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	Status   string `json:"status"`
}

func (FileData) Kind() Kind { return KindFileData }
func (FileData) channel()   {}

type FileError struct {
	FileID  string `json:"file_id"`
	Message string `json:"message"`
}

func (FileError) Kind() Kind { return KindFileError }
func (FileError) channel()   {}

type DownloadProgress struct {
	Progress float64 `json:"progress"`
}

func (DownloadProgress) Kind() Kind { return KindDownloadProgress }
func (DownloadProgress) channel()   {}

// Peer returns the remote node a relayed message refers to: the source when
// the tracker filled it in, the target otherwise.
func Peer(s Signal) string {
	var target, source string
	switch m := s.(type) {
	case *Offer:
		target, source = m.TargetNodeID, m.SourceNodeID
	case *Answer:
		target, source = m.TargetNodeID, m.SourceNodeID
	case *ICECandidate:
		target, source = m.TargetNodeID, m.SourceNodeID
	case Offer:
		target, source = m.TargetNodeID, m.SourceNodeID
	case Answer:
		target, source = m.TargetNodeID, m.SourceNodeID
	case ICECandidate:
		target, source = m.TargetNodeID, m.SourceNodeID
	}
	if source != "" {
		return source
	}
	return target
}
