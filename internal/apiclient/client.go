// internal/apiclient/client.go
//
// Typed HTTP client for the game service and lobby.
// Responsibilities:
//   - One method per endpoint, JSON in and out.
//   - Non-2xx responses become *APIError, which unwraps to the sentinel
//     registered for its wire code (errors.Is works across the network).
//   - Suggest reports "no suggestion" (HTTP 204) as (nil, nil).
//
// Requests carry no retry logic; a failed call returns an error and the
// caller keeps its previous state.

package apiclient

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

	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/apierr"
	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
)

// APIError is any non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap returns the sentinel registered for the error code, if any.
func (e *APIError) Unwrap() error { return apierr.Sentinel(e.Code) }

// Client talks to one server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL (e.g. http://localhost:5175). A nil
// httpClient selects one with a 15s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// PushURL is the websocket endpoint of the push channel.
func (c *Client) PushURL() string {
	u := c.baseURL + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// do sends a request and decodes a 2xx body into out (when non-nil).
// It returns the response status.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Code, apiErr.Message = eb.Error, eb.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return resp.StatusCode, apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// ------------------------------ games ---------------------------------------

// CreateGame starts a game. A nil secret asks the server for a random one.
func (c *Client) CreateGame(ctx context.Context, slotCount int, secret game.Code) (game.State, error) {
	req := struct {
		SlotCount int       `json:"slotCount"`
		Secret    game.Code `json:"secret,omitempty"`
	}{slotCount, secret}
	var st game.State
	_, err := c.do(ctx, http.MethodPost, "/games", nil, req, &st)
	return st, err
}

func (c *Client) Game(ctx context.Context, id string) (game.State, error) {
	var st game.State
	_, err := c.do(ctx, http.MethodGet, "/games/"+url.PathEscape(id), nil, nil, &st)
	return st, err
}

// Guess submits a guess and returns the updated state.
func (c *Client) Guess(ctx context.Context, id string, guess game.Code) (game.State, error) {
	req := struct {
		Colors game.Code `json:"colors"`
	}{guess}
	var st game.State
	_, err := c.do(ctx, http.MethodPost, "/games/"+url.PathEscape(id)+"/guesses", nil, req, &st)
	return st, err
}

// Solution reveals the secret without changing the game.
func (c *Client) Solution(ctx context.Context, id string) (game.Code, error) {
	var code game.Code
	_, err := c.do(ctx, http.MethodGet, "/games/"+url.PathEscape(id)+"/solution", nil, nil, &code)
	return code, err
}

// Suggest returns the next guess consistent with the game's history, or
// (nil, nil) when the server has none.
func (c *Client) Suggest(ctx context.Context, id string) (game.Code, error) {
	var code game.Code
	status, err := c.do(ctx, http.MethodGet, "/games/"+url.PathEscape(id)+"/suggest", nil, nil, &code)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	return code, nil
}

func (c *Client) ResetGame(ctx context.Context, id string) (game.State, error) {
	var st game.State
	_, err := c.do(ctx, http.MethodPost, "/games/"+url.PathEscape(id)+"/reset", nil, nil, &st)
	return st, err
}

func (c *Client) Colors(ctx context.Context) ([]game.Color, error) {
	var colors []game.Color
	_, err := c.do(ctx, http.MethodGet, "/games/colors", nil, nil, &colors)
	return colors, err
}

// ---------------------------- multiplayer -----------------------------------

// LoginResult is a successful login.
type LoginResult struct {
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname"`
	Token     string `json:"token"`
}

func (c *Client) Login(ctx context.Context, nickname string) (LoginResult, error) {
	var res LoginResult
	_, err := c.do(ctx, http.MethodPost, "/multiplayer/login", nil, map[string]string{"nickname": nickname}, &res)
	return res, err
}

func (c *Client) Logout(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, http.MethodPost, "/multiplayer/logout", url.Values{"sessionId": {sessionID}}, nil, nil)
	return err
}

// Players lists present players except the session exclude.
func (c *Client) Players(ctx context.Context, exclude string) ([]lobby.Player, error) {
	var list lobby.PlayerList
	q := url.Values{}
	if exclude != "" {
		q.Set("exclude", exclude)
	}
	_, err := c.do(ctx, http.MethodGet, "/multiplayer/players", q, nil, &list)
	return list.Players, err
}

func (c *Client) CheckNickname(ctx context.Context, nickname string) (bool, error) {
	var ok bool
	_, err := c.do(ctx, http.MethodGet, "/multiplayer/check-nickname", url.Values{"nickname": {nickname}}, nil, &ok)
	return ok, err
}

func (c *Client) Invite(ctx context.Context, from, to string) (lobby.Invitation, error) {
	var inv lobby.Invitation
	_, err := c.do(ctx, http.MethodPost, "/multiplayer/invite", url.Values{"fromNickname": {from}},
		map[string]string{"toNickname": to}, &inv)
	return inv, err
}

func (c *Client) Respond(ctx context.Context, nickname, invitationID string, accept bool) (lobby.Invitation, error) {
	req := struct {
		InvitationID string `json:"invitationId"`
		Accept       bool   `json:"accept"`
	}{invitationID, accept}
	var inv lobby.Invitation
	_, err := c.do(ctx, http.MethodPost, "/multiplayer/invitation/respond", url.Values{"nickname": {nickname}}, req, &inv)
	return inv, err
}

// Cancel withdraws a PENDING invitation sent by nickname.
func (c *Client) Cancel(ctx context.Context, invitationID, nickname string) (lobby.Invitation, error) {
	q := url.Values{"invitationId": {invitationID}}
	if nickname != "" {
		q.Set("nickname", nickname)
	}
	var inv lobby.Invitation
	_, err := c.do(ctx, http.MethodPost, "/multiplayer/invitation/cancel", q, nil, &inv)
	return inv, err
}

// SetSecret registers nickname's secret for the match against opponent.
func (c *Client) SetSecret(ctx context.Context, nickname, opponent string, secret game.Code) (lobby.Match, error) {
	req := struct {
		Secret game.Code `json:"secret"`
	}{secret}
	var m lobby.Match
	_, err := c.do(ctx, http.MethodPost, "/multiplayer/game/set-secret",
		url.Values{"nickname": {nickname}, "opponentNickname": {opponent}}, req, &m)
	return m, err
}

func (c *Client) MatchStatus(ctx context.Context, nickname string) (lobby.Match, error) {
	var m lobby.Match
	_, err := c.do(ctx, http.MethodGet, "/multiplayer/game/status", url.Values{"nickname": {nickname}}, nil, &m)
	return m, err
}
