// Package presence tracks which sessions are currently attached to the
// chat, under which display name, and over which transport. The registry
// is the authoritative set of live sessions; the fan-out engine only
// reads snapshots of it.
package presence

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/flalad/chat-room/internal/models"
)

// ErrDuplicateSession is returned when a session ID is registered twice.
var ErrDuplicateSession = errors.New("presence: session already registered")

// Adapter delivers one event to a session over its transport. Push
// adapters write to the live connection; pull adapters are a no-op
// because delivery happens when the client next polls.
type Adapter interface {
	Deliver(event models.Event) error
}

// Session is one connected participant.
type Session struct {
	ID             string
	DisplayName    string // set at join, immutable for the session's lifetime
	Transport      string // models.TransportPush or models.TransportPull
	JoinedAt       time.Time
	LastSeenCursor string // last message ID the session is known to have received
	Adapter        Adapter
}

type record struct {
	session  Session
	lastSeen time.Time // last poll (pull) or registration (push)
}

// Registry holds all live sessions behind a single lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*record)}
}

// Join registers a session. It fails with ErrDuplicateSession if the ID
// is already present.
func (r *Registry) Join(id, displayName, transport string, adapter Adapter) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return Session{}, ErrDuplicateSession
	}

	now := time.Now().UTC()
	sess := Session{
		ID:          id,
		DisplayName: displayName,
		Transport:   transport,
		JoinedAt:    now,
		Adapter:     adapter,
	}
	r.sessions[id] = &record{session: sess, lastSeen: now}
	return sess, nil
}

// Leave removes a session. Removing an absent session is a no-op; the
// return value reports whether anything was removed.
func (r *Registry) Leave(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, id)
	return rec.session, true
}

// Get returns a copy of the session with the given ID.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return rec.session, true
}

// List returns a snapshot of all live sessions, ordered by join time.
// Callers get copies; mutating the result does not touch the registry.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.sessions))
	for _, rec := range r.sessions {
		sessions = append(sessions, rec.session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].JoinedAt.Before(sessions[j].JoinedAt)
	})
	return sessions
}

// Users returns the presence snapshot in broadcast form.
func (r *Registry) Users() []models.UserInfo {
	sessions := r.List()
	users := make([]models.UserInfo, len(sessions))
	for i, sess := range sessions {
		users[i] = models.UserInfo{Username: sess.DisplayName, JoinedAt: sess.JoinedAt}
	}
	return users
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Touch records a successful poll, advancing the session's cursor and
// resetting its inactivity clock. Unknown IDs are ignored.
func (r *Registry) Touch(id, cursor string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return
	}
	if cursor != "" {
		rec.session.LastSeenCursor = cursor
	}
	rec.lastSeen = time.Now().UTC()
}

// IdlePull returns the IDs of pull sessions that have not polled within
// the window. Push sessions are reaped by their connection, not by time.
func (r *Registry) IdlePull(window time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-window)
	var idle []string
	for id, rec := range r.sessions {
		if rec.session.Transport == models.TransportPull && rec.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}
