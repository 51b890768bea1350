// Package hub implements the fan-out engine. Every inbound client event
// goes through one pipeline: validate, persist (for durable messages),
// then broadcast to all live sessions through their adapters. The hub is
// transport-agnostic; push and pull sessions differ only in the adapter
// registered for them.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flalad/chat-room/internal/config"
	"github.com/flalad/chat-room/internal/metrics"
	"github.com/flalad/chat-room/internal/models"
	"github.com/flalad/chat-room/internal/presence"
	"github.com/flalad/chat-room/internal/store"
)

// Validation and session errors reported to the originator only; none of
// these ever reach other participants.
var (
	ErrUnknownSession = errors.New("chat: unknown session")
	ErrInvalidName    = errors.New("chat: display name is empty")
	ErrEmptyMessage   = errors.New("chat: message content is empty")
	ErrMessageTooLong = errors.New("chat: message content too long")
	ErrInvalidFile    = errors.New("chat: file descriptor is incomplete")
)

// historyFetchLimit is how much history a joining session receives.
const historyFetchLimit = 100

// Hub coordinates the message store, the presence registry, and typing
// state. Mutation of shared state goes through the store's and the
// registry's own locks; the hub itself holds only the fan-out ordering
// lock.
type Hub struct {
	store    store.MessageStore
	registry *presence.Registry
	cfg      *config.Config
	logger   zerolog.Logger
	typing   *typingTracker

	// fanMu spans append plus enqueue for durable messages, so every
	// push session observes events in ID order. Deliver never blocks on
	// the connection, so the critical section stays short.
	fanMu sync.Mutex
}

// New creates a hub on top of the given store and registry.
func New(st store.MessageStore, reg *presence.Registry, cfg *config.Config, logger zerolog.Logger) *Hub {
	h := &Hub{
		store:    st,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
	}
	h.typing = newTypingTracker(cfg.TypingTimeout, h.notifyTyping)
	return h
}

// Join registers a new session and returns it along with the recent
// history the client should render. A join notice is persisted and
// broadcast to everyone else, followed by a presence update to all.
func (h *Hub) Join(ctx context.Context, displayName, transport string, adapter presence.Adapter) (presence.Session, []models.Message, error) {
	displayName = sanitizeName(displayName)
	if displayName == "" {
		return presence.Session{}, nil, ErrInvalidName
	}

	sess, err := h.registry.Join(uuid.New().String(), displayName, transport, adapter)
	if err != nil {
		return presence.Session{}, nil, err
	}
	metrics.SessionsJoined.WithLabelValues(transport).Inc()
	metrics.SessionsActive.WithLabelValues(transport).Inc()

	history, err := h.store.Recent(ctx, historyFetchLimit)
	if err != nil {
		// History replay is best-effort; the session is still live.
		h.logger.Error().Err(err).Msg("failed to load history for join")
		history = nil
	}

	// History is the joiner's first frame, ahead of any presence or
	// notice traffic.
	if adapter != nil {
		_ = adapter.Deliver(models.Event{Type: models.EventMessageHistory, Messages: history})
	}

	h.systemMessage(ctx, fmt.Sprintf("%s joined the chat", displayName), sess.ID)
	h.broadcast(models.UsersUpdateEvent(h.registry.Users()), "")

	h.logger.Info().
		Str("session_id", sess.ID).
		Str("username", displayName).
		Str("transport", transport).
		Msg("session joined")

	return sess, history, nil
}

// Leave removes a session. It is idempotent: leaving twice, or leaving a
// session that was never joined, does nothing. A leave notice and a
// presence update are broadcast for sessions that were actually live.
func (h *Hub) Leave(ctx context.Context, sessionID string) {
	sess, ok := h.registry.Leave(sessionID)
	if !ok {
		return
	}
	metrics.SessionsActive.WithLabelValues(sess.Transport).Dec()

	// Clear a dangling typing flag so other clients don't show the
	// departed user as typing forever.
	h.typing.Forget(sessionID, sess.DisplayName)

	h.systemMessage(ctx, fmt.Sprintf("%s left the chat", sess.DisplayName), sessionID)
	h.broadcast(models.UsersUpdateEvent(h.registry.Users()), "")

	h.logger.Info().
		Str("session_id", sessionID).
		Str("username", sess.DisplayName).
		Msg("session left")
}

// SendText validates, persists, and fans out a text message. The stored
// record is echoed to the sender too, so the UI can render the
// server-confirmed message. A failed append returns an error to the
// sender and nothing is broadcast.
func (h *Hub) SendText(ctx context.Context, sessionID, content string) (*models.Message, error) {
	sess, ok := h.registry.Get(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > h.cfg.MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	// Sending implies the author stopped typing.
	h.typing.Stop(sessionID, sess.DisplayName)

	msg := &models.Message{Kind: models.KindText, Author: sess.DisplayName, Content: content}
	if err := h.appendAndFanOut(ctx, msg, ""); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendFile validates, persists, and fans out a file message. The file
// itself was uploaded elsewhere; only the finalized descriptor travels
// through chat.
func (h *Hub) SendFile(ctx context.Context, sessionID string, file models.FileInfo) (*models.Message, error) {
	sess, ok := h.registry.Get(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}
	if file.URL == "" || file.Name == "" {
		return nil, ErrInvalidFile
	}

	h.typing.Stop(sessionID, sess.DisplayName)

	msg := &models.Message{Kind: models.KindFile, Author: sess.DisplayName, File: &file}
	if err := h.appendAndFanOut(ctx, msg, ""); err != nil {
		return nil, err
	}
	return msg, nil
}

// TypingStart marks the session as typing and broadcasts the flag to
// everyone else. The flag expires on its own after the quiet period.
func (h *Hub) TypingStart(sessionID string) error {
	sess, ok := h.registry.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	h.typing.Start(sessionID, sess.DisplayName)
	return nil
}

// TypingStop clears the typing flag ahead of the quiet-period timeout.
func (h *Hub) TypingStop(sessionID string) error {
	sess, ok := h.registry.Get(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	h.typing.Stop(sessionID, sess.DisplayName)
	return nil
}

// History returns the newest messages, oldest first. The limit is
// clamped to the configured batch bound.
func (h *Hub) History(ctx context.Context, limit int) ([]models.Message, error) {
	return h.store.Recent(ctx, h.clampBatch(limit))
}

// Catchup serves a pull session's delta fetch and advances its cursor.
// An unknown cursor is not an error; the store degrades it to a recent
// read so the client can always resynchronize.
func (h *Hub) Catchup(ctx context.Context, sessionID, afterID string, limit int) ([]models.Message, error) {
	if _, ok := h.registry.Get(sessionID); !ok {
		return nil, ErrUnknownSession
	}

	msgs, err := h.store.Delta(ctx, afterID, h.clampBatch(limit))
	if err != nil {
		return nil, err
	}

	cursor := afterID
	if len(msgs) > 0 {
		cursor = msgs[len(msgs)-1].ID
	}
	h.registry.Touch(sessionID, cursor)
	return msgs, nil
}

// Users exposes the current presence snapshot.
func (h *Hub) Users() []models.UserInfo {
	return h.registry.Users()
}

// Purge bulk-deletes the retained history. Administrative use only;
// nothing is broadcast.
func (h *Hub) Purge(ctx context.Context) (int64, error) {
	return h.store.Clear(ctx)
}

// Run reaps idle pull sessions until ctx is cancelled. Push sessions are
// reaped immediately by their connection teardown and need no timer.
func (h *Hub) Run(ctx context.Context) {
	interval := h.cfg.PullSessionTTL / 4
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range h.registry.IdlePull(h.cfg.PullSessionTTL) {
				h.logger.Info().Str("session_id", id).Msg("reaping idle pull session")
				h.Leave(ctx, id)
			}
		}
	}
}

// append persists one message, recording latency and outcome.
func (h *Hub) append(ctx context.Context, msg *models.Message) error {
	start := time.Now()
	err := h.store.Append(ctx, msg)
	metrics.StoreAppendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AppendFailures.Inc()
		return err
	}
	metrics.MessagesAppended.WithLabelValues(msg.Kind).Inc()
	return nil
}

// systemMessage persists and broadcasts a server-generated notice,
// excluding the session that caused it.
func (h *Hub) systemMessage(ctx context.Context, content, excludeID string) {
	msg := &models.Message{Kind: models.KindSystem, Content: content}
	if err := h.appendAndFanOut(ctx, msg, excludeID); err != nil {
		h.logger.Error().Err(err).Msg("failed to persist system message")
	}
}

// appendAndFanOut persists one message and enqueues it to every live
// session under the fan-out ordering lock, so concurrent senders cannot
// enqueue their events in the opposite order to their assigned IDs.
// Failed sessions are dropped after the lock is released; dropping
// synthesizes a leave notice, which takes the lock again.
func (h *Hub) appendAndFanOut(ctx context.Context, msg *models.Message, excludeID string) error {
	h.fanMu.Lock()
	if err := h.append(ctx, msg); err != nil {
		h.fanMu.Unlock()
		return err
	}
	failed := h.deliver(models.NewMessageEvent(msg), excludeID)
	h.fanMu.Unlock()

	h.drop(ctx, failed)
	return nil
}

// broadcast delivers one non-durable event (presence, typing) to every
// live session except excludeID.
func (h *Hub) broadcast(event models.Event, excludeID string) {
	h.drop(context.Background(), h.deliver(event, excludeID))
}

// deliver enqueues one event per recipient and returns the sessions
// whose adapter failed. Delivery is best-effort per recipient: one
// failed adapter never blocks the rest.
func (h *Hub) deliver(event models.Event, excludeID string) []string {
	var failed []string
	for _, sess := range h.registry.List() {
		if sess.ID == excludeID || sess.Adapter == nil {
			continue
		}
		if err := sess.Adapter.Deliver(event); err != nil {
			metrics.DeliveryFailures.Inc()
			h.logger.Warn().
				Err(err).
				Str("session_id", sess.ID).
				Msg("delivery failed, dropping session")
			failed = append(failed, sess.ID)
		}
	}
	return failed
}

// drop removes sessions whose delivery failed, treating each as a
// disconnect.
func (h *Hub) drop(ctx context.Context, sessionIDs []string) {
	for _, id := range sessionIDs {
		h.Leave(ctx, id)
	}
}

// notifyTyping fans out a typing-state change, never echoing it back to
// the session it came from.
func (h *Hub) notifyTyping(sessionID, username string, typing bool) {
	metrics.TypingEvents.Inc()
	h.broadcast(models.TypingEvent(username, typing), sessionID)
}

// clampBatch bounds a client-supplied batch size. Zero or negative means
// "use the default page".
func (h *Hub) clampBatch(limit int) int {
	if limit <= 0 {
		limit = historyFetchLimit
	}
	if h.cfg.MaxDeltaBatch > 0 && limit > h.cfg.MaxDeltaBatch {
		limit = h.cfg.MaxDeltaBatch
	}
	return limit
}

const maxNameLength = 50

// sanitizeName trims whitespace, strips control characters and caps the
// length so a display name is always safe to echo back to other clients.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
		if b.Len() >= maxNameLength {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
