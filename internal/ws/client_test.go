package ws_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flalad/chat-room/internal/api"
	"github.com/flalad/chat-room/internal/auth"
	"github.com/flalad/chat-room/internal/config"
	"github.com/flalad/chat-room/internal/hub"
	"github.com/flalad/chat-room/internal/models"
	"github.com/flalad/chat-room/internal/presence"
	"github.com/flalad/chat-room/internal/store"
	"github.com/flalad/chat-room/internal/ws"
)

func newWSServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	cfg := &config.Config{
		MaxMessageLength: 1000,
		MaxDeltaBatch:    200,
		TypingTimeout:    3 * time.Second,
		PullSessionTTL:   time.Minute,
	}
	h := hub.New(store.NewMemoryStore(0), presence.NewRegistry(), cfg, zerolog.Nop())
	srv := httptest.NewServer(ws.NewHandler(h, cfg, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame interface{}) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatal(err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var event models.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("bad frame %q: %v", raw, err)
	}
	return event
}

// readUntil reads frames until one of the wanted type arrives. Other
// frame types received along the way are returned too.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) models.Event {
	t.Helper()
	for i := 0; i < 10; i++ {
		event := readEvent(t, conn)
		if event.Type == eventType {
			return event
		}
	}
	t.Fatalf("never received %q", eventType)
	return models.Event{}
}

func joinWS(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()
	send(t, conn, map[string]interface{}{
		"type": "user_join",
		"user": map[string]string{"username": username},
	})
}

func TestJoinDeliversHistoryAndPresence(t *testing.T) {
	srv, _ := newWSServer(t)
	conn := dial(t, srv)

	joinWS(t, conn, "alice")

	// History is the very first frame, ahead of any presence traffic.
	history := readEvent(t, conn)
	if history.Type != models.EventMessageHistory {
		t.Fatalf("first frame should be %s, got %s", models.EventMessageHistory, history.Type)
	}
	if len(history.Messages) != 0 {
		t.Fatalf("fresh room should have empty history, got %d", len(history.Messages))
	}

	update := readUntil(t, conn, models.EventUsersUpdate)
	if len(update.Users) != 1 || update.Users[0].Username != "alice" {
		t.Fatalf("unexpected presence snapshot: %+v", update.Users)
	}
}

func TestSendMessageEchoesBack(t *testing.T) {
	srv, _ := newWSServer(t)
	conn := dial(t, srv)

	joinWS(t, conn, "alice")
	readUntil(t, conn, models.EventMessageHistory)

	send(t, conn, map[string]string{"type": "send_message", "content": "hello"})

	event := readUntil(t, conn, models.EventNewMessage)
	msg := event.Message
	if msg == nil || msg.Content != "hello" || msg.Author != "alice" || msg.ID == "" {
		t.Fatalf("unexpected echo: %+v", msg)
	}
}

func TestInvalidMessageGetsErrorFrame(t *testing.T) {
	srv, _ := newWSServer(t)
	conn := dial(t, srv)

	// Sending before joining is rejected.
	send(t, conn, map[string]string{"type": "send_message", "content": "hi"})
	if event := readUntil(t, conn, models.EventError); event.Error == "" {
		t.Fatal("error frame has no message")
	}

	joinWS(t, conn, "alice")
	readUntil(t, conn, models.EventMessageHistory)

	send(t, conn, map[string]string{"type": "send_message", "content": "   "})
	if event := readUntil(t, conn, models.EventError); event.Error == "" {
		t.Fatal("error frame has no message")
	}
}

func TestPeersSeeMessagesAndTyping(t *testing.T) {
	srv, _ := newWSServer(t)

	alice := dial(t, srv)
	joinWS(t, alice, "alice")
	readUntil(t, alice, models.EventMessageHistory)

	bob := dial(t, srv)
	joinWS(t, bob, "bob")
	readUntil(t, bob, models.EventMessageHistory)

	// Alice sees bob's arrival.
	notice := readUntil(t, alice, models.EventNewMessage)
	if notice.Message.Kind != models.KindSystem || notice.Message.Content != "bob joined the chat" {
		t.Fatalf("unexpected join notice: %+v", notice.Message)
	}

	send(t, bob, map[string]string{"type": "typing_start"})
	typing := readUntil(t, alice, models.EventUserTyping)
	if typing.Username != "bob" || typing.Typing == nil || !*typing.Typing {
		t.Fatalf("unexpected typing event: %+v", typing)
	}

	send(t, bob, map[string]string{"type": "send_message", "content": "hi alice"})
	msg := readUntil(t, alice, models.EventNewMessage)
	if msg.Message.Content != "hi alice" || msg.Message.Author != "bob" {
		t.Fatalf("unexpected message: %+v", msg.Message)
	}
}

// TestUpgradeThroughRouter runs the handshake through the full
// middleware stack. The response writer the wrappers hand down must
// still implement http.Hijacker or the upgrade fails.
func TestUpgradeThroughRouter(t *testing.T) {
	cfg := &config.Config{
		MaxMessageLength: 1000,
		MaxDeltaBatch:    200,
		TypingTimeout:    3 * time.Second,
		PullSessionTTL:   time.Minute,
	}
	st := store.NewMemoryStore(0)
	h := hub.New(st, presence.NewRegistry(), cfg, zerolog.Nop())
	issuer := auth.NewTokenIssuer("test-secret", 0)
	srv := httptest.NewServer(api.NewRouter(cfg, zerolog.Nop(), h, st, issuer))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("upgrade failed with status %d: %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })

	joinWS(t, conn, "alice")
	if event := readEvent(t, conn); event.Type != models.EventMessageHistory {
		t.Fatalf("first frame should be %s, got %s", models.EventMessageHistory, event.Type)
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	srv, h := newWSServer(t)

	conn := dial(t, srv)
	joinWS(t, conn, "alice")
	readUntil(t, conn, models.EventMessageHistory)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(h.Users()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not reaped after disconnect: %+v", h.Users())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
