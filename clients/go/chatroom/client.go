// Package chatroom provides a Go client for the chat room pull API.
// A client joins under a display name, sends messages, and catches up on
// missed traffic by polling with the cursor from its previous call.
package chatroom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Message is a chat message as the API returns it.
type Message struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "text", "file", "system"
	Username  string    `json:"username,omitempty"`
	Content   string    `json:"content,omitempty"`
	File      *FileInfo `json:"file,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FileInfo describes an already-uploaded file attached to a message.
type FileInfo struct {
	URL      string `json:"url"`
	Name     string `json:"fileName"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Backend  string `json:"storage,omitempty"`
}

// UserInfo is one entry of the presence snapshot.
type UserInfo struct {
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinTime"`
}

// Client is a chat room API client. It is not safe for concurrent use;
// run one client per session.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	token  string
	cursor string
}

// NewClient creates a client for the given server.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Cursor returns the last-seen message ID, for diagnostics.
func (c *Client) Cursor() string { return c.cursor }

// doRequest performs an HTTP request, attaching the session token when
// one is held.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chat error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// JoinResponse is the server's answer to a join.
type JoinResponse struct {
	Token    string     `json:"token"`
	Username string     `json:"username"`
	Messages []Message  `json:"messages"`
	Users    []UserInfo `json:"users"`
	Cursor   string     `json:"cursor"`
}

// Join registers a session under the given display name. The returned
// history is what the server currently retains.
func (c *Client) Join(username string) (*JoinResponse, error) {
	body, _ := json.Marshal(map[string]string{"username": username})
	respBody, err := c.doRequest("POST", "/api/chat/join", body)
	if err != nil {
		return nil, err
	}

	var resp JoinResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.token = resp.Token
	c.cursor = resp.Cursor
	return &resp, nil
}

// Leave ends the session.
func (c *Client) Leave() error {
	_, err := c.doRequest("POST", "/api/chat/leave", nil)
	c.token = ""
	c.cursor = ""
	return err
}

// Send posts a text message and returns the stored record.
func (c *Client) Send(content string) (*Message, error) {
	body, _ := json.Marshal(map[string]string{"content": content})
	return c.send(body)
}

// SendFile posts a file message for an already-uploaded file.
func (c *Client) SendFile(file FileInfo) (*Message, error) {
	body, _ := json.Marshal(map[string]interface{}{"file": file})
	return c.send(body)
}

func (c *Client) send(body []byte) (*Message, error) {
	respBody, err := c.doRequest("POST", "/api/messages/send", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Message *Message `json:"message"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// Poll fetches messages that arrived after the client's cursor and
// advances it. limit <= 0 uses the server default.
func (c *Client) Poll(limit int) ([]Message, error) {
	q := url.Values{}
	if c.cursor != "" {
		q.Set("after", c.cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	respBody, err := c.doRequest("GET", "/api/messages/poll?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Messages []Message `json:"messages"`
		Cursor   string           `json:"cursor"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	if resp.Cursor != "" {
		c.cursor = resp.Cursor
	}
	return resp.Messages, nil
}

// Users fetches the current presence snapshot.
func (c *Client) Users() ([]UserInfo, error) {
	respBody, err := c.doRequest("GET", "/api/users/online", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Users []UserInfo `json:"users"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}
