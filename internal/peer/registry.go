package peer

import (
	"errors"
	"fmt"
	"time"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transport"
)

var (
	ErrNoTransport       = errors.New("no peer transport available")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Stopper is a cancellable timer handle, satisfied by *time.Timer.
type Stopper interface {
	Stop() bool
}

// Entry is the registry's record for one remote node.
type Entry struct {
	RemoteID  string
	Conn      transport.Connection
	Channel   transport.DataChannel
	Role      Role
	State     State
	CreatedAt time.Time
	// TaskID is the download this entry serves, empty for responders.
	TaskID string

	timer   Stopper
	removed bool
}

// Advance moves the entry to the next state. Reaching a terminal state stops
// the owned timer.
func (e *Entry) Advance(to State) error {
	if e.State == to {
		return nil
	}
	if !CanTransition(e.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.State, to)
	}
	e.State = to
	if to.Terminal() {
		e.stopTimer()
	}
	return nil
}

// Own makes t the entry's timer, cancelling any previous one.
func (e *Entry) Own(t Stopper) {
	e.stopTimer()
	e.timer = t
}

func (e *Entry) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Listeners receive transport events for an entry. They are called on
// transport goroutines.
type Listeners struct {
	Candidate func(e *Entry, c protocol.ICECandidateInit)
	State     func(e *Entry, s transport.State)
	Channel   func(e *Entry, ch transport.DataChannel)
}

// Registry maps remote node ids to their single live entry. It is not safe
// for concurrent use; the node's event loop owns it.
type Registry struct {
	factory transport.Factory
	entries map[string]*Entry
	now     func() time.Time

	// OnRemove runs for every entry the registry releases, before its
	// channel and connection are closed.
	OnRemove func(e *Entry)
}

func NewRegistry(factory transport.Factory) *Registry {
	return &Registry{
		factory: factory,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// HasTransport reports whether the registry can create connections at all.
func (r *Registry) HasTransport() bool {
	return r.factory != nil
}

// Open creates a fresh entry for remoteID, tearing down any existing one.
func (r *Registry) Open(remoteID string, role Role, l Listeners) (*Entry, error) {
	if r.factory == nil {
		return nil, ErrNoTransport
	}
	r.Teardown(remoteID)

	conn, err := r.factory.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create connection to %s: %w", remoteID, err)
	}

	e := &Entry{
		RemoteID:  remoteID,
		Conn:      conn,
		Role:      role,
		State:     StateIdle,
		CreatedAt: r.now(),
	}

	if l.Candidate != nil {
		conn.OnICECandidate(func(c protocol.ICECandidateInit) { l.Candidate(e, c) })
	}
	if l.State != nil {
		conn.OnStateChange(func(s transport.State) { l.State(e, s) })
	}
	if l.Channel != nil {
		conn.OnDataChannel(func(ch transport.DataChannel) { l.Channel(e, ch) })
	}

	r.entries[remoteID] = e
	return e, nil
}

// GetOrCreate returns the live entry for remoteID when it is non-terminal and
// plays the same role, and opens a new one otherwise. The node always calls
// Open, since every offer and every download starts a fresh connection.
func (r *Registry) GetOrCreate(remoteID string, role Role, l Listeners) (*Entry, bool, error) {
	if e, ok := r.entries[remoteID]; ok && !e.State.Terminal() && e.Role == role {
		return e, false, nil
	}
	e, err := r.Open(remoteID, role, l)
	return e, err == nil, err
}

func (r *Registry) Get(remoteID string) (*Entry, bool) {
	e, ok := r.entries[remoteID]
	return e, ok
}

// Current reports whether e is still the live entry for its remote node.
func (r *Registry) Current(e *Entry) bool {
	return e != nil && r.entries[e.RemoteID] == e
}

// FindTask returns the entry serving a download task.
func (r *Registry) FindTask(taskID string) (*Entry, bool) {
	for _, e := range r.entries {
		if e.TaskID == taskID {
			return e, true
		}
	}
	return nil, false
}

// SetChannel attaches an opened or opening data channel to the entry.
func (r *Registry) SetChannel(e *Entry, ch transport.DataChannel) bool {
	if !r.Current(e) {
		return false
	}
	e.Channel = ch
	return true
}

// Teardown releases the entry for remoteID. Calling it again is a no-op.
func (r *Registry) Teardown(remoteID string) *Entry {
	e, ok := r.entries[remoteID]
	if !ok {
		return nil
	}
	delete(r.entries, remoteID)
	r.release(e)
	return e
}

// Sweep tears down every entry in a terminal state.
func (r *Registry) Sweep() int {
	n := 0
	for id, e := range r.entries {
		if e.State.Terminal() {
			delete(r.entries, id)
			r.release(e)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Close tears down every entry.
func (r *Registry) Close() {
	for id, e := range r.entries {
		delete(r.entries, id)
		r.release(e)
	}
}

func (r *Registry) release(e *Entry) {
	if e.removed {
		return
	}
	e.removed = true
	e.stopTimer()
	if r.OnRemove != nil {
		r.OnRemove(e)
	}
	if e.Channel != nil {
		_ = e.Channel.Close()
	}
	if e.Conn != nil {
		_ = e.Conn.Close()
	}
}
