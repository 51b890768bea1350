package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/flalad/chat-room/internal/models"
)

func appendText(t *testing.T, s MessageStore, content string) models.Message {
	t.Helper()
	msg := models.Message{Kind: models.KindText, Author: "alice", Content: content}
	if err := s.Append(context.Background(), &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestAppendStampsOrderedIDs(t *testing.T) {
	s := NewMemoryStore(0)

	var prev string
	for i := 0; i < 10; i++ {
		msg := appendText(t, s, fmt.Sprintf("msg-%d", i))
		if msg.ID == "" {
			t.Fatal("append left ID empty")
		}
		if msg.CreatedAt.IsZero() {
			t.Fatal("append left timestamp empty")
		}
		if msg.ID <= prev {
			t.Fatalf("IDs not increasing: %q after %q", msg.ID, prev)
		}
		prev = msg.ID
	}
}

func TestRecentOldestFirst(t *testing.T) {
	s := NewMemoryStore(0)
	for i := 0; i < 5; i++ {
		appendText(t, s, fmt.Sprintf("msg-%d", i))
	}

	msgs, err := s.Recent(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "msg-2" || msgs[2].Content != "msg-4" {
		t.Fatalf("wrong window: %q .. %q", msgs[0].Content, msgs[2].Content)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatal("recent not ordered oldest first")
		}
	}
}

func TestDeltaAfterCursor(t *testing.T) {
	s := NewMemoryStore(0)
	var mid string
	for i := 0; i < 6; i++ {
		msg := appendText(t, s, fmt.Sprintf("msg-%d", i))
		if i == 2 {
			mid = msg.ID
		}
	}

	msgs, err := s.Delta(context.Background(), mid, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after cursor, got %d", len(msgs))
	}
	if msgs[0].Content != "msg-3" {
		t.Fatalf("expected msg-3 first, got %q", msgs[0].Content)
	}

	// A limit applies from the cursor forward.
	msgs, err = s.Delta(context.Background(), mid, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].Content != "msg-4" {
		t.Fatalf("limited delta wrong: %+v", msgs)
	}
}

func TestDeltaAtHeadIsEmpty(t *testing.T) {
	s := NewMemoryStore(0)
	var last models.Message
	for i := 0; i < 3; i++ {
		last = appendText(t, s, fmt.Sprintf("msg-%d", i))
	}

	msgs, err := s.Delta(context.Background(), last.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty delta at head, got %d messages", len(msgs))
	}
}

func TestDeltaUnknownCursorDegradesToRecent(t *testing.T) {
	s := NewMemoryStore(0)
	for i := 0; i < 5; i++ {
		appendText(t, s, fmt.Sprintf("msg-%d", i))
	}

	msgs, err := s.Delta(context.Background(), "01ZZZZZZZZZZZZZZZZZZZZZZZZ", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].Content != "msg-4" {
		t.Fatalf("unknown cursor should return recent window, got %+v", msgs)
	}
}

func TestRetentionDropsOldest(t *testing.T) {
	s := NewMemoryStore(3)
	for i := 0; i < 5; i++ {
		appendText(t, s, fmt.Sprintf("msg-%d", i))
	}

	msgs, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected retention of 3, got %d", len(msgs))
	}
	if msgs[0].Content != "msg-2" {
		t.Fatalf("oldest surviving message should be msg-2, got %q", msgs[0].Content)
	}
}

func TestClear(t *testing.T) {
	s := NewMemoryStore(0)
	for i := 0; i < 4; i++ {
		appendText(t, s, fmt.Sprintf("msg-%d", i))
	}

	n, err := s.Clear(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected 4 cleared, got %d", n)
	}

	msgs, _ := s.Recent(context.Background(), 0)
	if len(msgs) != 0 {
		t.Fatalf("store not empty after clear: %d", len(msgs))
	}
}

func TestConcurrentAppendsKeepOrder(t *testing.T) {
	s := NewMemoryStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				msg := models.Message{Kind: models.KindText, Author: fmt.Sprintf("user-%d", n), Content: "hi"}
				if err := s.Append(context.Background(), &msg); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()

	msgs, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 200 {
		t.Fatalf("expected 200 messages, got %d", len(msgs))
	}

	seen := make(map[string]bool, len(msgs))
	for i, msg := range msgs {
		if seen[msg.ID] {
			t.Fatalf("duplicate ID %q", msg.ID)
		}
		seen[msg.ID] = true
		if i > 0 && msgs[i].ID <= msgs[i-1].ID {
			t.Fatal("stored order does not match ID order")
		}
	}
}
