// Package ws implements the push transport: one long-lived websocket per
// session, with the read pump translating inbound frames into hub calls
// and the write pump draining the fan-out buffer.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flalad/chat-room/internal/hub"
	"github.com/flalad/chat-room/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongWait
	maxMessageSize = 8 * 1024
	sendBufferSize = 256
)

var errSendBufferFull = errors.New("ws: send buffer full")
var errClientClosed = errors.New("ws: client closed")

// inboundFrame is the envelope clients send. Type selects which of the
// payload fields is meaningful.
type inboundFrame struct {
	Type    string           `json:"type"`
	User    *joinPayload     `json:"user,omitempty"`
	Content string           `json:"content,omitempty"`
	File    *models.FileInfo `json:"file,omitempty"`
}

type joinPayload struct {
	Username string `json:"username"`
}

// Client is one websocket connection. It doubles as the session's push
// adapter: Deliver queues a frame for the write pump without blocking,
// so one slow connection never stalls a broadcast.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *hub.Hub
	logger zerolog.Logger
	addr   string

	mu        sync.Mutex
	sessionID string
	done      chan struct{}
	closed    bool
}

func newClient(conn *websocket.Conn, h *hub.Hub, logger zerolog.Logger, addr string) *Client {
	conn.SetReadLimit(maxMessageSize)
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    h,
		logger: logger,
		addr:   addr,
		done:   make(chan struct{}),
	}
}

// Deliver implements presence.Adapter. A full buffer or a torn-down
// connection reports failure, which the hub treats as a disconnect.
func (c *Client) Deliver(event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// shutdown tears the client down once; safe to call from either pump.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessionID := c.sessionID
	close(c.done)
	c.mu.Unlock()

	_ = c.conn.Close()
	if sessionID != "" {
		c.hub.Leave(context.Background(), sessionID)
	}
}

func (c *Client) setSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Client) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) readPump() {
	defer c.shutdown()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Str("addr", c.addr).Msg("websocket read error")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("invalid message format")
			continue
		}

		c.handleFrame(frame)
	}
}

// handleFrame dispatches one inbound client event to the hub. Validation
// failures go back to this client only.
func (c *Client) handleFrame(frame inboundFrame) {
	ctx := context.Background()

	if frame.Type == "user_join" {
		if c.session() != "" {
			c.sendError("already joined")
			return
		}
		if frame.User == nil {
			c.sendError("username is required")
			return
		}

		// The hub delivers the history frame before any broadcast.
		sess, _, err := c.hub.Join(ctx, frame.User.Username, models.TransportPush, c)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.setSession(sess.ID)
		return
	}

	sessionID := c.session()
	if sessionID == "" {
		c.sendError("join first")
		return
	}

	switch frame.Type {
	case "send_message":
		if _, err := c.hub.SendText(ctx, sessionID, frame.Content); err != nil {
			c.sendError(err.Error())
		}
	case "file_message":
		if frame.File == nil {
			c.sendError("file descriptor is required")
			return
		}
		if _, err := c.hub.SendFile(ctx, sessionID, *frame.File); err != nil {
			c.sendError(err.Error())
		}
	case "typing_start":
		_ = c.hub.TypingStart(sessionID)
	case "typing_stop":
		_ = c.hub.TypingStop(sessionID)
	default:
		c.sendError("unknown event type")
	}
}

func (c *Client) sendError(msg string) {
	_ = c.Deliver(models.Event{Type: models.EventError, Error: msg})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
