// internal/matchmaking/client.go
//
// Client side of the lobby protocol: login, presence cache, invitation
// lifecycle and the handoff into a paired vs-human match.
//
// Concurrency model:
//   - Run owns all state; requests and push messages are closures executed
//     by Run one at a time.
//   - Each login opens a new push subscription tagged with a session
//     generation. The previous subscription is closed before the new one is
//     dialed, and messages tagged with an older generation are dropped.
//   - Calls into the Pairer run on a single worker in FIFO order, so
//     AwaitOpponent always precedes Pair, and Pair precedes RemoteMove.
//
// Local caches (presence, invitations) are never authoritative: every
// mutating decision is left to the lobby service.

package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/apiclient"
	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/push"
)

var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrSessionReplaced = errors.New("session was replaced")
	ErrNoOpponent      = errors.New("no accepted invitation to play")
	ErrInvalidSecret   = errors.New("secret is incomplete or uses unknown colors")
	ErrStopped         = errors.New("matchmaking client stopped")
)

// LobbyAPI is the part of the lobby service the client calls.
type LobbyAPI interface {
	Login(ctx context.Context, nickname string) (apiclient.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	Players(ctx context.Context, exclude string) ([]lobby.Player, error)
	Invite(ctx context.Context, from, to string) (lobby.Invitation, error)
	Respond(ctx context.Context, nickname, invitationID string, accept bool) (lobby.Invitation, error)
	Cancel(ctx context.Context, invitationID, nickname string) (lobby.Invitation, error)
	SetSecret(ctx context.Context, nickname, opponent string, secret game.Code) (lobby.Match, error)
}

// Subscription is an open push channel.
type Subscription interface {
	Messages() <-chan push.Message
	Close() error
}

// Dialer opens a push channel authenticated with token.
type Dialer func(ctx context.Context, token string) (Subscription, error)

// PushDialer dials the websocket push channel at wsURL.
func PushDialer(wsURL string) Dialer {
	return func(ctx context.Context, token string) (Subscription, error) {
		s, err := push.Dial(ctx, wsURL, token)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Pairer receives the match handoff. *match.Orchestrator implements it.
type Pairer interface {
	AwaitOpponent(ctx context.Context, opponent string) error
	Pair(ctx context.Context, m lobby.Match, me string) error
	RemoteMove(ctx context.Context, st game.State) error
	Abandon(ctx context.Context, opponent, reason string) error
}

type EventKind string

const (
	EventPresence     EventKind = "presence"
	EventInvitation   EventKind = "invitation"
	EventMatchReady   EventKind = "match-ready"
	EventMatchEnded   EventKind = "match-ended"
	EventDisconnected EventKind = "disconnected"
	EventError        EventKind = "error"
)

// Event tells the presentation layer that something changed.
type Event struct {
	Kind       EventKind
	Players    []lobby.Player
	Invitation *lobby.Invitation
	Match      *lobby.Match
	Err        error
}

// View is a read-only copy of the client state.
type View struct {
	Nickname    string
	SessionID   string
	Players     []lobby.Player
	Invitations []lobby.Invitation
	Opponent    string
	MatchID     string
}

type session struct {
	id       string
	nickname string
	sub      Subscription
}

type Client struct {
	api    LobbyAPI
	dial   Dialer
	pairer Pairer

	inbox  chan func()
	pairq  chan func(context.Context)
	events chan Event
	done   chan struct{}

	viewMu sync.RWMutex
	view   View

	// owned by Run
	gen         uint64
	sess        *session
	players     []lobby.Player
	invitations map[string]lobby.Invitation
	opponent    string
	matchID     string
}

func New(api LobbyAPI, dial Dialer, pairer Pairer) *Client {
	return &Client{
		api:         api,
		dial:        dial,
		pairer:      pairer,
		inbox:       make(chan func(), 64),
		pairq:       make(chan func(context.Context), 64),
		events:      make(chan Event, 32),
		done:        make(chan struct{}),
		invitations: map[string]lobby.Invitation{},
	}
}

// Run processes requests and notifications until ctx is done. The current
// subscription is closed on exit.
func (c *Client) Run(ctx context.Context) {
	defer close(c.done)
	go c.pairLoop(ctx)
	for {
		select {
		case <-ctx.Done():
			c.endSession()
			return
		case fn := <-c.inbox:
			fn()
		}
	}
}

// Events delivers notifications. When the reader falls behind the oldest
// events are dropped; View always has the current state.
func (c *Client) Events() <-chan Event { return c.events }

// View returns the latest published state.
func (c *Client) View() View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

func (c *Client) post(ctx context.Context, fn func()) error {
	select {
	case c.inbox <- fn:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) exec(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if err := c.post(ctx, func() { reply <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) deliver(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
		return
	default:
	}
	select {
	case <-c.events:
	default:
	}
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Client) publishView() {
	v := View{
		Players:     append([]lobby.Player(nil), c.players...),
		Invitations: make([]lobby.Invitation, 0, len(c.invitations)),
		Opponent:    c.opponent,
		MatchID:     c.matchID,
	}
	if c.sess != nil {
		v.Nickname, v.SessionID = c.sess.nickname, c.sess.id
	}
	for _, inv := range c.invitations {
		v.Invitations = append(v.Invitations, inv)
	}
	sort.Slice(v.Invitations, func(i, j int) bool {
		return v.Invitations[i].CreatedAt.Before(v.Invitations[j].CreatedAt)
	})
	c.viewMu.Lock()
	c.view = v
	c.viewMu.Unlock()
}

// ------------------------------- session ------------------------------------

// endSession deactivates the current subscription and clears the caches.
// It returns the id of the session that was ended.
func (c *Client) endSession() string {
	if c.sess == nil {
		return ""
	}
	id := c.sess.id
	c.gen++
	if err := c.sess.sub.Close(); err != nil {
		log.Debug().Err(err).Msg("matchmaking: closing subscription")
	}
	c.sess = nil
	c.players = nil
	c.invitations = map[string]lobby.Invitation{}
	c.opponent, c.matchID = "", ""
	c.publishView()
	return id
}

// current returns the live session and its generation.
func (c *Client) current(ctx context.Context) (session, uint64, error) {
	var s session
	var gen uint64
	err := c.exec(ctx, func() error {
		if c.sess == nil {
			return ErrNotLoggedIn
		}
		s, gen = *c.sess, c.gen
		return nil
	})
	return s, gen, err
}

func (c *Client) logoutQuietly(ctx context.Context, sessionID string) {
	if err := c.api.Logout(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("matchmaking: logout")
	}
}

// Login enters the lobby as nickname. A previous session is ended first.
// Malformed nicknames are rejected without contacting the service.
func (c *Client) Login(ctx context.Context, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if !lobby.ValidNickname(nickname) {
		return lobby.ErrInvalidNickname
	}

	var prev string
	var gen uint64
	err := c.exec(ctx, func() error {
		prev = c.endSession()
		gen = c.gen
		return nil
	})
	if err != nil {
		return err
	}
	if prev != "" {
		c.logoutQuietly(ctx, prev)
	}

	res, err := c.api.Login(ctx, nickname)
	if err != nil {
		return err
	}
	sub, err := c.dial(ctx, res.Token)
	if err != nil {
		c.logoutQuietly(ctx, res.SessionID)
		return fmt.Errorf("open push channel: %w", err)
	}

	err = c.exec(ctx, func() error {
		if gen != c.gen || c.sess != nil {
			return ErrSessionReplaced
		}
		c.sess = &session{id: res.SessionID, nickname: res.Nickname, sub: sub}
		go c.pump(gen, sub)
		c.publishView()
		return nil
	})
	if err != nil {
		_ = sub.Close()
		c.logoutQuietly(context.WithoutCancel(ctx), res.SessionID)
	}
	return err
}

// Logout leaves the lobby.
func (c *Client) Logout(ctx context.Context) error {
	var id string
	if err := c.exec(ctx, func() error {
		id = c.endSession()
		return nil
	}); err != nil {
		return err
	}
	if id == "" {
		return ErrNotLoggedIn
	}
	return c.api.Logout(ctx, id)
}

// pump forwards one subscription's messages to Run.
func (c *Client) pump(gen uint64, sub Subscription) {
	for msg := range sub.Messages() {
		c.deliver(func() { c.handle(gen, msg) })
	}
	c.deliver(func() {
		if gen == c.gen && c.sess != nil {
			log.Warn().Msg("matchmaking: push channel closed")
			c.emit(Event{Kind: EventDisconnected})
		}
	})
}

// ------------------------------- requests -----------------------------------

// Players refreshes the presence cache from the service.
func (c *Client) Players(ctx context.Context) ([]lobby.Player, error) {
	s, gen, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	players, err := c.api.Players(ctx, s.id)
	if err != nil {
		return nil, err
	}
	err = c.exec(ctx, func() error {
		if gen != c.gen {
			return ErrSessionReplaced
		}
		c.players = players
		c.publishView()
		return nil
	})
	return players, err
}

// record stores an invitation returned by the service. A notification may
// already have moved it past PENDING; that status is kept.
func (c *Client) record(ctx context.Context, gen uint64, inv lobby.Invitation, after func()) error {
	return c.exec(ctx, func() error {
		if gen != c.gen {
			return ErrSessionReplaced
		}
		if known, ok := c.invitations[inv.ID]; ok && known.Status.Terminal() && !inv.Status.Terminal() {
			c.publishView()
			return nil
		}
		c.invitations[inv.ID] = inv
		if after != nil {
			after()
		}
		c.publishView()
		return nil
	})
}

// Invite proposes a match to another player.
func (c *Client) Invite(ctx context.Context, to string) (lobby.Invitation, error) {
	s, gen, err := c.current(ctx)
	if err != nil {
		return lobby.Invitation{}, err
	}
	inv, err := c.api.Invite(ctx, s.nickname, to)
	if err != nil {
		return lobby.Invitation{}, err
	}
	return inv, c.record(ctx, gen, inv, nil)
}

// Respond accepts or declines an invitation addressed to us. Accepting
// starts waiting for the inviter.
func (c *Client) Respond(ctx context.Context, invitationID string, accept bool) (lobby.Invitation, error) {
	s, gen, err := c.current(ctx)
	if err != nil {
		return lobby.Invitation{}, err
	}
	inv, err := c.api.Respond(ctx, s.nickname, invitationID, accept)
	if err != nil {
		return lobby.Invitation{}, err
	}
	return inv, c.record(ctx, gen, inv, func() {
		if inv.Status == lobby.InvitationAccepted {
			c.startPairing(inv.From)
		}
	})
}

// Cancel withdraws an invitation we sent.
func (c *Client) Cancel(ctx context.Context, invitationID string) (lobby.Invitation, error) {
	s, gen, err := c.current(ctx)
	if err != nil {
		return lobby.Invitation{}, err
	}
	inv, err := c.api.Cancel(ctx, invitationID, s.nickname)
	if err != nil {
		return lobby.Invitation{}, err
	}
	return inv, c.record(ctx, gen, inv, nil)
}

// SetSecret registers our secret for the accepted pairing. The match starts
// once both players have done so.
func (c *Client) SetSecret(ctx context.Context, secret game.Code) (lobby.Match, error) {
	if game.ValidSlotCount(len(secret)) != nil || !secret.Complete(len(secret)) {
		return lobby.Match{}, ErrInvalidSecret
	}
	var s session
	var gen uint64
	var opponent string
	err := c.exec(ctx, func() error {
		if c.sess == nil {
			return ErrNotLoggedIn
		}
		if c.opponent == "" {
			return ErrNoOpponent
		}
		s, gen, opponent = *c.sess, c.gen, c.opponent
		return nil
	})
	if err != nil {
		return lobby.Match{}, err
	}

	m, err := c.api.SetSecret(ctx, s.nickname, opponent, secret)
	if err != nil {
		return lobby.Match{}, err
	}
	if m.Status != lobby.MatchPlaying {
		return m, nil
	}
	return m, c.exec(ctx, func() error {
		if gen != c.gen {
			return ErrSessionReplaced
		}
		c.onMatchReady(m)
		return nil
	})
}

// ---------------------------- notifications ---------------------------------

func decode[T any](msg push.Message) (T, bool) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic).Str("type", msg.Type).Msg("matchmaking: dropping malformed payload")
		return v, false
	}
	return v, true
}

// onExpectedTopic reports whether msg arrived on the topic its type is
// published to.
func onExpectedTopic(msg push.Message) bool {
	switch msg.Type {
	case push.TypePlayers:
		return msg.Topic == push.TopicPlayers
	case push.TypeInvitation:
		return push.IsInvitationsTopic(msg.Topic)
	case push.TypeMatchReady, push.TypeMove, push.TypeMatchAbandoned:
		return push.IsGameTopic(msg.Topic)
	}
	return true
}

func (c *Client) handle(gen uint64, msg push.Message) {
	if gen != c.gen || c.sess == nil {
		log.Debug().Str("topic", msg.Topic).Msg("matchmaking: message from a previous session")
		return
	}
	if !onExpectedTopic(msg) {
		log.Warn().Str("topic", msg.Topic).Str("type", msg.Type).Msg("matchmaking: dropping message on unexpected topic")
		return
	}
	switch msg.Type {
	case push.TypePlayers:
		list, ok := decode[lobby.PlayerList](msg)
		if !ok {
			return
		}
		c.players = list.Players
		c.publishView()
		c.emit(Event{Kind: EventPresence, Players: append([]lobby.Player(nil), list.Players...)})
	case push.TypeInvitation:
		if inv, ok := decode[lobby.Invitation](msg); ok {
			c.onInvitation(inv)
		}
	case push.TypeMatchReady:
		if m, ok := decode[lobby.Match](msg); ok {
			c.onMatchReady(m)
		}
	case push.TypeMatchAbandoned:
		if m, ok := decode[lobby.Match](msg); ok {
			c.onMatchAbandoned(m)
		}
	case push.TypeMove:
		if st, ok := decode[game.State](msg); ok {
			c.enqueue(func(ctx context.Context) {
				err := c.pairer.RemoteMove(ctx, st)
				if err != nil {
					c.pairFailed("remote move", err)
				}
			})
		}
	default:
		log.Debug().Str("type", msg.Type).Msg("matchmaking: unknown message type")
	}
}

// onInvitation applies an invitation notification when it is consistent
// with what the client already knows, and ignores it otherwise. A response
// to our own invitation may arrive before the reply to Invite, so an
// unknown id is accepted when we are its sender.
func (c *Client) onInvitation(inv lobby.Invitation) {
	me := c.sess.nickname
	known, held := c.invitations[inv.ID]
	heldPending := held && known.Status == lobby.InvitationPending
	unseenOwn := !held && strings.EqualFold(inv.From, me)

	switch inv.Status {
	case lobby.InvitationPending:
		if held || !strings.EqualFold(inv.To, me) {
			return
		}
	case lobby.InvitationCancelled:
		if !heldPending && !unseenOwn {
			log.Debug().Str("invitationId", inv.ID).Msg("matchmaking: stale cancellation")
			return
		}
	case lobby.InvitationAccepted, lobby.InvitationDeclined:
		if !(heldPending || unseenOwn) || !strings.EqualFold(inv.From, me) {
			log.Debug().Str("invitationId", inv.ID).Str("status", string(inv.Status)).Msg("matchmaking: ignoring response")
			return
		}
	default:
		return
	}

	c.invitations[inv.ID] = inv
	if inv.Status == lobby.InvitationAccepted {
		c.startPairing(inv.To)
	}
	c.publishView()
	c.emit(Event{Kind: EventInvitation, Invitation: &inv})
}

func (c *Client) startPairing(opponent string) {
	c.opponent, c.matchID = opponent, ""
	c.enqueue(func(ctx context.Context) {
		if err := c.pairer.AwaitOpponent(ctx, opponent); err != nil {
			c.pairFailed("await opponent", err)
		}
	})
}

func (c *Client) onMatchReady(m lobby.Match) {
	me := c.sess.nickname
	if !strings.EqualFold(m.Player1, me) && !strings.EqualFold(m.Player2, me) {
		return
	}
	if m.ID == c.matchID {
		return
	}
	opponent := m.Opponent(me)
	if c.opponent != "" && !strings.EqualFold(c.opponent, opponent) {
		log.Warn().Str("matchId", m.ID).Str("opponent", opponent).Msg("matchmaking: match with an unexpected opponent")
		return
	}
	c.opponent, c.matchID = opponent, m.ID
	c.enqueue(func(ctx context.Context) {
		if err := c.pairer.Pair(ctx, m, me); err != nil {
			c.pairFailed("pair", err)
		}
	})
	c.publishView()
	c.emit(Event{Kind: EventMatchReady, Match: &m})
}

// onMatchAbandoned ends the current pairing when the opponent left.
func (c *Client) onMatchAbandoned(m lobby.Match) {
	me := c.sess.nickname
	opponent := m.Opponent(me)
	if m.ID != c.matchID && (c.opponent == "" || !strings.EqualFold(c.opponent, opponent)) {
		log.Debug().Str("matchId", m.ID).Msg("matchmaking: ignoring abandoned match")
		return
	}
	c.opponent, c.matchID = "", ""
	reason := m.Message
	if reason == "" {
		reason = opponent + " left the match"
	}
	c.enqueue(func(ctx context.Context) {
		if err := c.pairer.Abandon(ctx, opponent, reason); err != nil {
			c.pairFailed("abandon", err)
		}
	})
	c.publishView()
	c.emit(Event{Kind: EventMatchEnded, Match: &m})
}

// ------------------------------ pairing worker ------------------------------

func (c *Client) enqueue(task func(context.Context)) {
	select {
	case c.pairq <- task:
	default:
		log.Error().Msg("matchmaking: pairing queue full, dropping task")
	}
}

func (c *Client) pairLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-c.pairq:
			task(ctx)
		}
	}
}

func (c *Client) pairFailed(step string, err error) {
	log.Warn().Err(err).Str("step", step).Msg("matchmaking: pairing")
	c.emit(Event{Kind: EventError, Err: fmt.Errorf("%s: %w", step, err)})
}
