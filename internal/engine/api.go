package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// APIClient talks to the session HTTP collaborators: state saves,
// timer start/stop, session end and the chat backlog. Mutating
// requests carry the anti-forgery token read from the cookie jar.
type APIClient struct {
	base      string
	sessionID int64
	http      *http.Client
}

// ChatBacklogMessage is one entry of the initial chat load.
type ChatBacklogMessage struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	SenderID  int64  `json:"sender_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewAPIClient builds a client for one session against the given base
// URL (scheme://host). The cookie jar holds the csrf token cookie.
func NewAPIClient(base string, sessionID int64) (*APIClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &APIClient{
		base:      strings.TrimRight(base, "/"),
		sessionID: sessionID,
		http: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}, nil
}

// SaveState implements StateSaver against POST /session/{id}/save-state/.
func (c *APIClient) SaveState(ctx context.Context, state SessionState) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.post(ctx, fmt.Sprintf("/session/%d/save-state/", c.sessionID), state, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("save-state rejected: %s", resp.Error)
	}
	return nil
}

// StartTimer implements TimerAPI: the server refuses when the session
// has ended, so the local state machine only transitions on success.
func (c *APIClient) StartTimer(ctx context.Context) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.post(ctx, fmt.Sprintf("/session/%d/start-timer/", c.sessionID), nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("start-timer rejected: %s", resp.Error)
	}
	return nil
}

// StopTimer implements TimerAPI and returns the finalized duration of
// the stopped segment.
func (c *APIClient) StopTimer(ctx context.Context) (int64, error) {
	var resp struct {
		Success  bool   `json:"success"`
		Duration int64  `json:"duration"`
		Error    string `json:"error"`
	}
	if err := c.post(ctx, fmt.Sprintf("/session/%d/stop-timer/", c.sessionID), nil, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("stop-timer rejected: %s", resp.Error)
	}
	return resp.Duration, nil
}

// EndSession ends the session and returns the redirect target.
func (c *APIClient) EndSession(ctx context.Context) (string, error) {
	var resp struct {
		Success  bool   `json:"success"`
		Redirect string `json:"redirect"`
		Error    string `json:"error"`
	}
	if err := c.post(ctx, fmt.Sprintf("/session/%d/end/", c.sessionID), nil, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		if resp.Error == "" {
			resp.Error = "error ending session"
		}
		return "", fmt.Errorf("end session: %s", resp.Error)
	}
	return resp.Redirect, nil
}

// ChatBacklog loads the session's chat history for the initial render.
func (c *APIClient) ChatBacklog(ctx context.Context) ([]ChatBacklogMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/chat/session/%d/", c.base, c.sessionID), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat backlog: unexpected status %d", res.StatusCode)
	}
	var body struct {
		Messages []ChatBacklogMessage `json:"messages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode chat backlog: %w", err)
	}
	return body.Messages, nil
}

func (c *APIClient) post(ctx context.Context, path string, payload any, out any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.csrfToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// csrfToken reads the anti-forgery token from the cookie jar.
func (c *APIClient) csrfToken() string {
	u, err := url.Parse(c.base)
	if err != nil {
		return ""
	}
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == "csrftoken" {
			return cookie.Value
		}
	}
	return ""
}
