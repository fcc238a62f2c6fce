package tracker

import (
	"slices"
	"sort"
	"sync"

	"github.com/rudransh-shrivastava/peer-share/internal/catalog"
	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
)

type file struct {
	metadata protocol.FileInfo
	nodes    []string
	seq      uint64
}

// Store is the tracker's file index: which nodes hold which files.
type Store struct {
	mu     sync.Mutex
	files  map[string]*file
	byNode map[string]map[string]struct{}
	seq    uint64
}

func NewStore() *Store {
	return &Store{
		files:  make(map[string]*file),
		byNode: make(map[string]map[string]struct{}),
	}
}

// AddFile records nodeID as a source of f. It returns false when the node
// already was one.
func (s *Store) AddFile(nodeID string, f protocol.FileInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.files[f.ID]
	if !exists {
		s.seq++
		entry = &file{metadata: f, seq: s.seq}
		s.files[f.ID] = entry
	}
	if slices.Contains(entry.nodes, nodeID) {
		return false
	}
	entry.nodes = append(entry.nodes, nodeID)

	owned, ok := s.byNode[nodeID]
	if !ok {
		owned = make(map[string]struct{})
		s.byNode[nodeID] = owned
	}
	owned[f.ID] = struct{}{}
	return true
}

// RemoveNode drops nodeID as a source everywhere and deletes files nobody
// holds any more. It returns the number of deleted files.
func (s *Store) RemoveNode(nodeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id := range s.byNode[nodeID] {
		entry, ok := s.files[id]
		if !ok {
			continue
		}
		entry.nodes = slices.DeleteFunc(entry.nodes, func(n string) bool { return n == nodeID })
		if len(entry.nodes) == 0 {
			delete(s.files, id)
			removed++
		}
	}
	delete(s.byNode, nodeID)
	return removed
}

// Search matches query against file names and artists, ignoring case.
func (s *Store) Search(query string) []protocol.RemoteFile {
	return s.collect(func(f *file) bool {
		name := f.metadata.Name
		return catalog.Matches(query, name, catalog.ArtistName(name))
	})
}

// All lists every indexed file in the order it was first shared.
func (s *Store) All() []protocol.RemoteFile {
	return s.collect(func(*file) bool { return true })
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *Store) collect(match func(*file) bool) []protocol.RemoteFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*file, 0, len(s.files))
	for _, f := range s.files {
		if match(f) {
			matched = append(matched, f)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	results := make([]protocol.RemoteFile, 0, len(matched))
	for _, f := range matched {
		results = append(results, protocol.RemoteFile{
			ID:         f.metadata.ID,
			Name:       f.metadata.Name,
			Artist:     catalog.ArtistName(f.metadata.Name),
			Size:       f.metadata.Size,
			ActualSize: f.metadata.ActualSize,
			Sources:    len(f.nodes),
			NodeIDs:    slices.Clone(f.nodes),
		})
	}
	return results
}
