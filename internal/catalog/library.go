package catalog

import "github.com/rudransh-shrivastava/peer-share/internal/protocol"

var offlineLibrary = []protocol.RemoteFile{
	{ID: "mock_1", Name: "Shape of You", Artist: "Ed Sheeran", ActualSize: 4718592, Sources: 5},
	{ID: "mock_2", Name: "Blinding Lights", Artist: "The Weeknd", ActualSize: 3981312, Sources: 8},
	{ID: "mock_3", Name: "Dance Monkey", Artist: "Tones and I", ActualSize: 3355443, Sources: 4},
	{ID: "mock_4", Name: "Save Your Tears", Artist: "The Weeknd", ActualSize: 4294967, Sources: 6},
	{ID: "mock_5", Name: "Levitating", Artist: "Dua Lipa", ActualSize: 3774873, Sources: 7},
	{ID: "mock_6", Name: "Stay", Artist: "Justin Bieber, The Kid LAROI", ActualSize: 3040870, Sources: 9},
}

// OfflineLibrary is the static list served while the tracker is unreachable.
// Its entries name no source nodes, so downloading one always falls back.
func OfflineLibrary() []protocol.RemoteFile {
	out := make([]protocol.RemoteFile, len(offlineLibrary))
	for i, f := range offlineLibrary {
		f.Size = FormatSize(f.ActualSize)
		f.NodeIDs = []string{}
		out[i] = f
	}
	return out
}

// SearchOffline filters OfflineLibrary by term.
func SearchOffline(term string) []protocol.RemoteFile {
	var out []protocol.RemoteFile
	for _, f := range OfflineLibrary() {
		if Matches(term, f.Name, f.Artist) {
			out = append(out, f)
		}
	}
	return out
}
