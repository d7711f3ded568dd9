package minigamessdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal minigames HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Item is a task or tray object offered by a round.
type Item struct {
	ID     string  `json:"id"`
	Title  string  `json:"title,omitempty"`
	Cost   float64 `json:"cost"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight,omitempty"`
}

type Placement struct {
	ItemID string  `json:"item_id"`
	Index  int     `json:"index"`
	Offset float64 `json:"offset"`
	Cost   float64 `json:"cost"`
}

type Result struct {
	Outcome  float64 `json:"outcome"`
	Display  float64 `json:"display"`
	Earnings float64 `json:"earnings"`
}

// Snapshot represents the API snapshot model (partial).
type Snapshot struct {
	Game          string      `json:"game"`
	Phase         string      `json:"phase"`
	Frame         int64       `json:"frame"`
	RoundNumber   int         `json:"round_number"`
	RoundLabel    string      `json:"round_label"`
	Capacity      float64     `json:"capacity"`
	Available     []Item      `json:"available"`
	Placements    []Placement `json:"placements"`
	Used          float64     `json:"used"`
	Remaining     float64     `json:"remaining"`
	CanStart      bool        `json:"can_start"`
	Result        *Result     `json:"result,omitempty"`
	TotalEarnings float64     `json:"total_earnings"`
	Holding       bool        `json:"holding"`
	Sprinting     bool        `json:"sprinting"`
}

type SessionInfo struct {
	ID        string `json:"id"`
	PlayerID  string `json:"player_id"`
	Game      string `json:"game"`
	CreatedAt string `json:"created_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type Session struct {
	Session  SessionInfo `json:"session"`
	Live     bool        `json:"live"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
}

// Command is one player input. DeltaMs is only used by tick.
type Command struct {
	Kind    string  `json:"kind"`
	ItemID  string  `json:"item_id,omitempty"`
	Hold    bool    `json:"hold,omitempty"`
	DeltaMs float64 `json:"delta_ms,omitempty"`
}

// CommandResult reports whether the command changed the game. Rejected
// commands carry Code and Reason and an unchanged Snapshot.
type CommandResult struct {
	Applied  bool           `json:"applied"`
	Code     string         `json:"code,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Snapshot Snapshot       `json:"snapshot"`
}

type RoundResult struct {
	ID          int64   `json:"id"`
	SessionID   string  `json:"session_id"`
	Game        string  `json:"game"`
	RoundNumber int     `json:"round_number"`
	Label       string  `json:"label"`
	Outcome     float64 `json:"outcome"`
	Earnings    float64 `json:"earnings"`
	CompletedAt string  `json:"completed_at"`
}

type Results struct {
	Items         []RoundResult `json:"items"`
	TotalEarnings float64       `json:"total_earnings"`
}

// Event represents a journal entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type Player struct {
	PlayerID string `json:"player_id"`
	Source   string `json:"source"`
}

// APIError wraps non-2xx responses. Code and Message are filled from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DevLogin mints a development token for playerID and keeps it on the client.
func (c *Client) DevLogin(ctx context.Context, playerID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", map[string]any{"player_id": playerID}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// Me returns the authenticated player.
func (c *Client) Me(ctx context.Context) (Player, error) {
	var resp Player
	err := c.do(ctx, http.MethodGet, "v0/me", nil, &resp)
	return resp, err
}

// CreateSession starts a planner or tray session.
func (c *Client) CreateSession(ctx context.Context, game string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "v0/sessions", map[string]any{"game": game}, &resp)
	return resp, err
}

// Sessions lists the caller's live sessions.
func (c *Client) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var resp struct {
		Items []SessionInfo `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/sessions", nil, &resp)
	return resp.Items, err
}

func (c *Client) Session(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, sessionPath(id, ""), nil, &resp)
	return resp, err
}

func (c *Client) EndSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// Apply sends one command. A rejected command is not an error.
func (c *Client) Apply(ctx context.Context, id string, cmd Command) (CommandResult, error) {
	var resp CommandResult
	err := c.do(ctx, http.MethodPost, sessionPath(id, "commands"), cmd, &resp)
	return resp, err
}

func (c *Client) Select(ctx context.Context, id, itemID string) (CommandResult, error) {
	return c.Apply(ctx, id, Command{Kind: "select_item", ItemID: itemID})
}

func (c *Client) Start(ctx context.Context, id string) (CommandResult, error) {
	return c.Apply(ctx, id, Command{Kind: "start_execution"})
}

func (c *Client) Tick(ctx context.Context, id string, d time.Duration) (CommandResult, error) {
	return c.Apply(ctx, id, Command{Kind: "tick", DeltaMs: float64(d) / float64(time.Millisecond)})
}

// Results returns the completed rounds of a session.
func (c *Client) Results(ctx context.Context, id string) (Results, error) {
	var resp Results
	err := c.do(ctx, http.MethodGet, sessionPath(id, "results"), nil, &resp)
	return resp, err
}

// EventsPage returns a page of the session journal, newest first.
func (c *Client) EventsPage(ctx context.Context, id string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := sessionPath(id, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func sessionPath(id, sub string) string {
	p := "v0/sessions/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
