package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/flalad/chat-room/internal/api"
	"github.com/flalad/chat-room/internal/auth"
	"github.com/flalad/chat-room/internal/config"
	"github.com/flalad/chat-room/internal/hub"
	"github.com/flalad/chat-room/internal/models"
	"github.com/flalad/chat-room/internal/presence"
	"github.com/flalad/chat-room/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		MaxMessageLength: 1000,
		MaxDeltaBatch:    200,
		TypingTimeout:    3 * time.Second,
		PullSessionTTL:   time.Minute,
	}
	st := store.NewMemoryStore(0)
	h := hub.New(st, presence.NewRegistry(), cfg, zerolog.Nop())
	issuer := auth.NewTokenIssuer("test-secret", 0)
	return api.NewRouter(cfg, zerolog.Nop(), h, st, issuer)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
}

func join(t *testing.T, router http.Handler, username string) (token, cursor string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/chat/join", "", map[string]string{"username": username})
	if rec.Code != http.StatusOK {
		t.Fatalf("join failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token    string            `json:"token"`
		Username string            `json:"username"`
		Messages []models.Message  `json:"messages"`
		Users    []models.UserInfo `json:"users"`
		Cursor   string            `json:"cursor"`
	}
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("join response has no token")
	}
	if resp.Username != username {
		t.Fatalf("join echoed username %q", resp.Username)
	}
	return resp.Token, resp.Cursor
}

func TestJoinSendPollFlow(t *testing.T) {
	router := newTestRouter(t)

	aliceToken, _ := join(t, router, "alice")
	bobToken, bobCursor := join(t, router, "bob")

	rec := doJSON(t, router, http.MethodPost, "/api/messages/send", aliceToken, map[string]string{"content": "hello bob"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send failed: %d %s", rec.Code, rec.Body.String())
	}
	var sent struct {
		Message models.Message `json:"message"`
	}
	decodeBody(t, rec, &sent)
	if sent.Message.ID == "" || sent.Message.Author != "alice" {
		t.Fatalf("unexpected send response: %+v", sent.Message)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/messages/poll?after="+bobCursor, bobToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("poll failed: %d %s", rec.Code, rec.Body.String())
	}
	var poll struct {
		Messages []models.Message `json:"messages"`
		Count    int              `json:"count"`
		Cursor   string           `json:"cursor"`
	}
	decodeBody(t, rec, &poll)

	// The delta carries bob's own join notice plus alice's message.
	if len(poll.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(poll.Messages), poll.Messages)
	}
	if poll.Count != len(poll.Messages) {
		t.Fatalf("count = %d, want %d", poll.Count, len(poll.Messages))
	}
	last := poll.Messages[len(poll.Messages)-1]
	if last.Content != "hello bob" || last.ID != sent.Message.ID {
		t.Fatalf("unexpected poll tail: %+v", last)
	}
	if poll.Cursor != sent.Message.ID {
		t.Fatalf("cursor = %q, want %q", poll.Cursor, sent.Message.ID)
	}

	// Polling from the new cursor returns nothing.
	rec = doJSON(t, router, http.MethodGet, "/api/messages/poll?after="+poll.Cursor, bobToken, nil)
	decodeBody(t, rec, &poll)
	if len(poll.Messages) != 0 {
		t.Fatalf("expected empty delta, got %d", len(poll.Messages))
	}
	if poll.Cursor != sent.Message.ID {
		t.Fatalf("empty delta moved cursor to %q", poll.Cursor)
	}
}

func TestSendRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/messages/send", "", map[string]string{"content": "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/messages/send", "bogus-token", map[string]string{"content": "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestSendValidationErrors(t *testing.T) {
	router := newTestRouter(t)
	token, _ := join(t, router, "alice")

	rec := doJSON(t, router, http.MethodPost, "/api/messages/send", token, map[string]string{"content": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/messages/send", token, map[string]interface{}{
		"file": map[string]string{"fileName": "a.png"}, // no URL
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete file, got %d", rec.Code)
	}
}

func TestSendFileMessage(t *testing.T) {
	router := newTestRouter(t)
	token, _ := join(t, router, "alice")

	rec := doJSON(t, router, http.MethodPost, "/api/messages/send", token, map[string]interface{}{
		"file": map[string]interface{}{
			"url":      "https://files.example/a.png",
			"fileName": "a.png",
			"mimeType": "image/png",
			"size":     2048,
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("file send failed: %d %s", rec.Code, rec.Body.String())
	}
	var sent struct {
		Message models.Message `json:"message"`
	}
	decodeBody(t, rec, &sent)
	if sent.Message.Kind != models.KindFile || sent.Message.File == nil {
		t.Fatalf("unexpected file message: %+v", sent.Message)
	}
}

func TestLeaveEndsSession(t *testing.T) {
	router := newTestRouter(t)
	token, _ := join(t, router, "alice")

	rec := doJSON(t, router, http.MethodPost, "/api/chat/leave", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leave failed: %d", rec.Code)
	}

	// The session is gone; further sends are rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/messages/send", token, map[string]string{"content": "hi"})
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 after leave, got %d", rec.Code)
	}
}

func TestOnlineUsers(t *testing.T) {
	router := newTestRouter(t)
	join(t, router, "alice")
	join(t, router, "bob")

	rec := doJSON(t, router, http.MethodGet, "/api/users/online", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("users failed: %d", rec.Code)
	}
	var resp struct {
		Users []models.UserInfo `json:"users"`
		Count int               `json:"count"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 2 || len(resp.Users) != 2 {
		t.Fatalf("unexpected users response: %+v", resp)
	}
	if resp.Users[0].Username != "alice" {
		t.Fatalf("users not ordered by join time: %+v", resp.Users)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token, _ := join(t, router, "alice")

	for _, content := range []string{"one", "two", "three"} {
		if rec := doJSON(t, router, http.MethodPost, "/api/messages/send", token, map[string]string{"content": content}); rec.Code != http.StatusOK {
			t.Fatalf("send %q failed: %d", content, rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/api/messages/history?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history failed: %d", rec.Code)
	}
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(resp.Messages))
	}
	if resp.Messages[1].Content != "three" {
		t.Fatalf("history window should end at newest, got %+v", resp.Messages)
	}
}

func TestPurgeEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token, _ := join(t, router, "alice")

	if rec := doJSON(t, router, http.MethodPost, "/api/messages/send", token, map[string]string{"content": "hi"}); rec.Code != http.StatusOK {
		t.Fatalf("send failed: %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodDelete, "/api/messages", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("purge failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	decodeBody(t, rec, &resp)
	if resp.Deleted != 2 { // join notice + message
		t.Fatalf("deleted = %d, want 2", resp.Deleted)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health failed: %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "healthy" || resp.Checks["store"].Status != "pass" {
		t.Fatalf("unexpected health response: %s", rec.Body.String())
	}
}

func TestRejectsNonJSONBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/join", bytes.NewBufferString("username=alice"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
}
