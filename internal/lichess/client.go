// Package lichess is the HTTP client for the lichess bot API. It produces
// the line-delimited event and game streams the orchestrator consumes and
// carries the commands (accept, decline, move, abort, chat) it issues.
package lichess

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// LineStream is a long-lived sequence of line-delimited messages from the
// server. Empty lines are keep-alive heartbeats and are delivered as empty
// slices. Lines is closed on stream end; Err reports why.
type LineStream interface {
	Lines() <-chan []byte
	Err() error
	Close() error
}

// RequestError is a non-2xx response from the server.
type RequestError struct {
	Status int
	Path   string
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("lichess: %s: status %d: %s", e.Path, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 response, meaning the challenge or
// game is already gone. Callers treat this as benign.
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// Account is the authenticated user's profile.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title"`
}

// IsBot reports whether the account has the BOT title.
func (a Account) IsBot() bool { return a.Title == "BOT" }

// Client talks to one lichess-style server. Safe for concurrent use by the
// orchestrator and all session drivers.
type Client struct {
	baseURL   string // http(s) form, used for REST calls
	wsBase    string // ws(s) form when the configured URL is a socket URL
	token     string
	userAgent string
	api       *http.Client
	streamer  *http.Client
}

// NewClient builds a client for the given server URL. A ws:// or wss:// URL
// selects the websocket stream transport; REST calls use the equivalent
// http(s) address either way.
func NewClient(token, baseURL, version string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	var wsBase string
	if strings.HasPrefix(baseURL, "ws") {
		wsBase = baseURL
		baseURL = "http" + strings.TrimPrefix(baseURL, "ws")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	transport := &oauth2.Transport{Source: ts, Base: http.DefaultTransport}

	return &Client{
		baseURL:   baseURL,
		wsBase:    wsBase,
		token:     token,
		userAgent: "squire/" + version,
		api:       &http.Client{Transport: transport, Timeout: 30 * time.Second},
		// Streaming responses stay open for the length of a game; no timeout.
		streamer: &http.Client{Transport: transport},
	}
}

// GetProfile fetches the authenticated account.
func (c *Client) GetProfile(ctx context.Context) (Account, error) {
	var a Account
	if err := c.getJSON(ctx, "/api/account", &a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// UpgradeToBot irreversibly upgrades the account to a bot account.
func (c *Client) UpgradeToBot(ctx context.Context) error {
	return c.post(ctx, "/api/bot/account/upgrade", nil)
}

// AcceptChallenge accepts a pending challenge.
func (c *Client) AcceptChallenge(ctx context.Context, id string) error {
	return c.post(ctx, "/api/challenge/"+id+"/accept", nil)
}

// DeclineChallenge declines a pending challenge.
func (c *Client) DeclineChallenge(ctx context.Context, id string) error {
	return c.post(ctx, "/api/challenge/"+id+"/decline", nil)
}

// MakeMove submits a UCI move for a game.
func (c *Client) MakeMove(ctx context.Context, gameID, move string) error {
	return c.post(ctx, "/api/bot/game/"+gameID+"/move/"+move, nil)
}

// Abort aborts a game that has not really begun.
func (c *Client) Abort(ctx context.Context, gameID string) error {
	return c.post(ctx, "/api/bot/game/"+gameID+"/abort", nil)
}

// Chat posts a message to a game's chat room ("player" or "spectator").
func (c *Client) Chat(ctx context.Context, gameID, room, text string) error {
	form := url.Values{"room": {room}, "text": {text}}
	return c.post(ctx, "/api/bot/game/"+gameID+"/chat", form)
}

// StreamEvents opens the global control event stream.
func (c *Client) StreamEvents(ctx context.Context) (LineStream, error) {
	return c.openStream(ctx, "/api/stream/event")
}

// StreamGame opens the per-game stream. Its first line is always the full
// game snapshot.
func (c *Client) StreamGame(ctx context.Context, gameID string) (LineStream, error) {
	return c.openStream(ctx, "/api/bot/game/stream/"+gameID)
}

func (c *Client) openStream(ctx context.Context, path string) (LineStream, error) {
	if c.wsBase != "" {
		return c.dialSocket(ctx, path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.streamer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &RequestError{Status: resp.StatusCode, Path: path, Body: string(body)}
	}

	s := &httpStream{
		body:  resp.Body,
		lines: make(chan []byte, 32),
		done:  make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// httpStream adapts an ndjson response body to a LineStream. done unblocks a
// producer stuck on a channel send when the consumer closes the stream
// without draining it.
type httpStream struct {
	body  io.ReadCloser
	lines chan []byte
	done  chan struct{}
	once  sync.Once
	err   error
}

func (s *httpStream) run() {
	defer close(s.lines)
	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	s.err = scanner.Err()
}

func (s *httpStream) Lines() <-chan []byte { return s.lines }

func (s *httpStream) Err() error { return s.err }

func (s *httpStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.body.Close()
	})
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &RequestError{Status: resp.StatusCode, Path: path, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// post sends a POST request and checks for errors without decoding the
// response body.
func (c *Client) post(ctx context.Context, path string, form url.Values) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RequestError{Status: resp.StatusCode, Path: path, Body: string(respBody)}
	}
	return nil
}
