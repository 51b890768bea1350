package handlers

import (
	"net/http"
	"strconv"

	"github.com/flalad/chat-room/internal/hub"
	"github.com/flalad/chat-room/internal/models"
)

// JoinRequest is the body for POST /api/chat/join.
type JoinRequest struct {
	Username string `json:"username"`
}

// JoinResponse carries everything a pull client needs to participate:
// its session token, the rendered history, and the presence snapshot.
type JoinResponse struct {
	Token    string            `json:"token"`
	Username string            `json:"username"`
	Messages []models.Message  `json:"messages"`
	Users    []models.UserInfo `json:"users"`
	Cursor   string            `json:"cursor,omitempty"`
}

// Join handles POST /api/chat/join. It registers a pull session and
// issues the token the client presents on subsequent calls.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, history, err := h.hub.Join(r.Context(), req.Username, models.TransportPull, hub.PullAdapter{})
	if err != nil {
		h.Error(w, errStatus(err), err.Error())
		return
	}

	token, err := h.issuer.Issue(sess.ID, sess.DisplayName)
	if err != nil {
		h.hub.Leave(r.Context(), sess.ID)
		h.logger.Error().Err(err).Msg("failed to issue session token")
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	resp := JoinResponse{
		Token:    token,
		Username: sess.DisplayName,
		Messages: history,
		Users:    h.hub.Users(),
	}
	if len(history) > 0 {
		resp.Cursor = history[len(history)-1].ID
	}
	h.JSON(w, http.StatusOK, resp)
}

// Leave handles POST /api/chat/leave.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authorize(r)
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	h.hub.Leave(r.Context(), claims.SessionID)
	h.JSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// SendRequest is the body for POST /api/messages/send. Exactly one of
// Content or File must be set.
type SendRequest struct {
	Content string           `json:"content,omitempty"`
	File    *models.FileInfo `json:"file,omitempty"`
}

// Send handles POST /api/messages/send for both text and file messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authorize(r)
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	var req SendRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var msg *models.Message
	if req.File != nil {
		msg, err = h.hub.SendFile(r.Context(), claims.SessionID, *req.File)
	} else {
		msg, err = h.hub.SendText(r.Context(), claims.SessionID, req.Content)
	}
	if err != nil {
		h.Error(w, errStatus(err), err.Error())
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"message": msg})
}

// PollResponse is the delta returned to a polling pull client.
type PollResponse struct {
	Messages []models.Message `json:"messages"`
	Count    int              `json:"count"`
	Cursor   string           `json:"cursor,omitempty"`
}

// Poll handles GET /api/messages/poll?after=<id>&limit=<n>. The poll
// doubles as the session keepalive: every call refreshes the idle timer.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authorize(r)
	if err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	after := r.URL.Query().Get("after")
	limit := queryInt(r, "limit")

	msgs, err := h.hub.Catchup(r.Context(), claims.SessionID, after, limit)
	if err != nil {
		h.Error(w, errStatus(err), err.Error())
		return
	}

	resp := PollResponse{Messages: msgs, Count: len(msgs), Cursor: after}
	if len(msgs) > 0 {
		resp.Cursor = msgs[len(msgs)-1].ID
	}
	h.JSON(w, http.StatusOK, resp)
}

// History handles GET /api/messages/history?limit=<n>.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.hub.History(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.logger.Error().Err(err).Msg("history read failed")
		h.Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// Users handles GET /api/users/online.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users := h.hub.Users()
	h.JSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// Purge handles DELETE /api/messages. It empties the retained history.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authorize(r); err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	deleted, err := h.hub.Purge(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("history purge failed")
		h.Error(w, http.StatusInternalServerError, "failed to purge history")
		return
	}
	h.JSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
