package hub

import (
	"sync"
	"time"
)

// typingTracker holds the ephemeral per-session typing flags. Flags are
// never persisted: a session joining mid-conversation sees only typing
// changes from that point on. A flag with no explicit stop expires on
// its own after the quiet period.
type typingTracker struct {
	mu      sync.Mutex
	timeout time.Duration
	active  map[string]*time.Timer
	notify  func(sessionID, username string, typing bool)
}

func newTypingTracker(timeout time.Duration, notify func(sessionID, username string, typing bool)) *typingTracker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &typingTracker{
		timeout: timeout,
		active:  make(map[string]*time.Timer),
		notify:  notify,
	}
}

// Start sets the flag and arms the expiry timer. Repeated starts extend
// the timer without re-announcing.
func (t *typingTracker) Start(sessionID, username string) {
	t.mu.Lock()
	if timer, ok := t.active[sessionID]; ok {
		timer.Reset(t.timeout)
		t.mu.Unlock()
		return
	}
	t.active[sessionID] = time.AfterFunc(t.timeout, func() {
		t.expire(sessionID, username)
	})
	t.mu.Unlock()

	t.notify(sessionID, username, true)
}

// Stop clears the flag ahead of the timeout. The stop is announced only
// if the flag was actually set, so redundant stops stay silent.
func (t *typingTracker) Stop(sessionID, username string) {
	t.mu.Lock()
	timer, ok := t.active[sessionID]
	if ok {
		timer.Stop()
		delete(t.active, sessionID)
	}
	t.mu.Unlock()

	if ok {
		t.notify(sessionID, username, false)
	}
}

// Forget clears session state on leave; identical to Stop but named for
// the call site.
func (t *typingTracker) Forget(sessionID, username string) {
	t.Stop(sessionID, username)
}

// expire fires when the quiet period elapses with no explicit stop.
func (t *typingTracker) expire(sessionID, username string) {
	t.mu.Lock()
	_, ok := t.active[sessionID]
	delete(t.active, sessionID)
	t.mu.Unlock()

	if ok {
		t.notify(sessionID, username, false)
	}
}
