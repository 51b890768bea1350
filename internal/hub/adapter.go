package hub

import "github.com/flalad/chat-room/internal/models"

// PullAdapter is the session adapter for poll-based transports. Deliver
// is a no-op: a pull session has no open channel to push through, and
// delivery is complete once the message is in the store — the client
// picks it up with its next cursor fetch.
type PullAdapter struct{}

// Deliver implements presence.Adapter.
func (PullAdapter) Deliver(models.Event) error { return nil }
