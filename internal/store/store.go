package store

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/flalad/chat-room/internal/models"
)

// DefaultRetention is the message cap applied when none is configured.
const DefaultRetention = 1000

// MessageStore is the interface for the durable append-only message log.
// MemoryStore, SQLiteStore, PostgresStore, and RedisStore all implement
// this interface with identical ordering semantics: the order messages
// were appended in is the order every reader observes, and message IDs
// sort in that same order.
type MessageStore interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Append assigns the message its ID and server timestamp, then writes
	// it through to the backend. On error the message was not stored and
	// must not be broadcast.
	Append(ctx context.Context, msg *models.Message) error

	// Recent returns up to limit of the newest messages, oldest first.
	Recent(ctx context.Context, limit int) ([]models.Message, error)

	// Delta returns up to limit messages strictly after afterID, oldest
	// first. An unknown or expired cursor is not an error: the result
	// degrades to Recent(limit) so pollers can always catch up.
	Delta(ctx context.Context, afterID string, limit int) ([]models.Message, error)

	// Clear purges all retained messages and reports how many were
	// removed. This is the administrative bulk delete, not an edit path.
	Clear(ctx context.Context) (int64, error)
}

var stampMu sync.Mutex

// stamp assigns the message ID and server timestamp. ULIDs from the
// default monotonic source sort lexicographically in generation order,
// which is what makes the ID usable as a delta cursor. Callers hold
// their store's append lock so stamping order matches write order.
func stamp(msg *models.Message) {
	stampMu.Lock()
	defer stampMu.Unlock()
	msg.ID = ulid.Make().String()
	msg.CreatedAt = time.Now().UTC()
}
