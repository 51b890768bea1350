package store

import (
	"context"
	"sync"

	"github.com/flalad/chat-room/internal/models"
)

// MemoryStore keeps the message log in process memory. It is the
// development default and the reference for the ordering semantics the
// other backends must match.
type MemoryStore struct {
	mu        sync.Mutex
	messages  []models.Message
	retention int
}

// NewMemoryStore creates an in-memory store retaining at most the given
// number of messages. retention <= 0 applies DefaultRetention.
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{retention: retention}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Append stamps and stores the message, trimming the oldest entries
// beyond the retention cap.
func (s *MemoryStore) Append(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(msg)
	s.messages = append(s.messages, *msg)
	if len(s.messages) > s.retention {
		s.messages = append(s.messages[:0:0], s.messages[len(s.messages)-s.retention:]...)
	}
	return nil
}

// Recent returns the newest limit messages, oldest first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tail(limit), nil
}

// Delta returns messages strictly after afterID. An unknown cursor
// degrades to Recent.
func (s *MemoryStore) Delta(ctx context.Context, afterID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if afterID == "" {
		return s.tail(limit), nil
	}

	// Newest messages are the likely cursor position; scan from the end.
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == afterID {
			rest := s.messages[i+1:]
			if limit > 0 && len(rest) > limit {
				rest = rest[:limit]
			}
			return append([]models.Message(nil), rest...), nil
		}
	}

	return s.tail(limit), nil
}

// Clear drops all retained messages.
func (s *MemoryStore) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.messages))
	s.messages = nil
	return n, nil
}

// tail copies the newest limit messages, oldest first. Callers hold s.mu.
func (s *MemoryStore) tail(limit int) []models.Message {
	msgs := s.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...)
}
