package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrAlreadyExists is returned when creating a handle that is already open
	ErrAlreadyExists = errors.New("session already exists")
	// ErrNotFound is returned when a handle is not an open session
	ErrNotFound = errors.New("session not found")
)

// EventType describes a session lifecycle transition
type EventType string

const (
	EventCreated EventType = "created"
	EventClosed  EventType = "closed"
)

// Event is broadcast to subscribers on every successful create or close
type Event struct {
	Type   EventType `json:"type"`
	Handle string    `json:"handle"`
	Time   time.Time `json:"time"`
}

// Registry tracks the open screen cast sessions by handle.
// The lock covers only membership checks and mutations.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]time.Time
	listeners []chan Event
	now       func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Create opens handle; it fails if handle is already open
func (r *Registry) Create(handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[handle]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, handle)
	}
	now := r.now()
	r.sessions[handle] = now
	r.notifyLocked(Event{Type: EventCreated, Handle: handle, Time: now})
	return nil
}

// Close removes handle; it fails if handle is not open
func (r *Registry) Close(handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	delete(r.sessions, handle)
	r.notifyLocked(Event{Type: EventClosed, Handle: handle, Time: r.now()})
	return nil
}

// Contains reports whether handle is open
func (r *Registry) Contains(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[handle]
	return ok
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Info describes an open session
type Info struct {
	Handle  string    `json:"handle"`
	Created time.Time `json:"created"`
}

// List returns a snapshot of the open sessions sorted by handle
func (r *Registry) List() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.sessions))
	for handle, created := range r.sessions {
		infos = append(infos, Info{Handle: handle, Created: created})
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Handle < infos[j].Handle
	})
	return infos
}

// Subscribe returns a channel receiving lifecycle events.
// Slow subscribers miss events rather than blocking the registry.
func (r *Registry) Subscribe() chan Event {
	ch := make(chan Event, 16)
	r.mu.Lock()
	r.listeners = append(r.listeners, ch)
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener
func (r *Registry) Unsubscribe(ch chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, listener := range r.listeners {
		if listener == ch {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (r *Registry) notifyLocked(ev Event) {
	for _, listener := range r.listeners {
		select {
		case listener <- ev:
		default:
		}
	}
}
