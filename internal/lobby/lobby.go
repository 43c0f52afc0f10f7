// internal/lobby/lobby.go
//
// Lobby service: presence directory, invitation table and match pairing.
// Responsibilities:
//   - Login/logout with unique, case-insensitive nicknames.
//   - Invitation lifecycle (invite, respond, cancel, expiry).
//   - Pairing: once an invitation is accepted, both players set a secret and
//     a match-ready notification is pushed to both.
//   - Publishing every relevant change on the push channel.
//
// Notes:
//   - All state sits behind one mutex. Publishing happens while the lock is
//     held so notifications leave in the same order as the mutations; the
//     Publisher must never call back into the Lobby.
//   - The sender of a PENDING invitation stays AVAILABLE; only a started
//     match marks players BUSY.

package lobby

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/push"
)

// Publisher delivers notifications to push channel subscribers.
type Publisher interface {
	Publish(topic, typ string, payload any)
	Retain(topic, typ string, payload any)
}

// GameCreator creates a game holding secret and returns its ID.
type GameCreator func(ctx context.Context, secret game.Code) (string, error)

// GameRemover deletes a match game once its match has been swept.
type GameRemover func(ctx context.Context, gameID string) error

// Config tunes timeouts of the lobby.
type Config struct {
	InviteTTL   time.Duration // PENDING invitations older than this are cancelled
	IdleTimeout time.Duration // AVAILABLE players idle longer than this are logged out
	Now         func() time.Time
	RemoveGame  GameRemover // optional; games are kept when nil
}

func (c *Config) defaults() {
	if c.InviteTTL <= 0 {
		c.InviteTTL = 5 * time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type gameRef struct {
	matchID  string
	owner    string // player whose secret the game holds
	attempts int
	over     bool
}

type Lobby struct {
	cfg     Config
	pub     Publisher
	newGame GameCreator

	mu          sync.Mutex
	sessions    map[string]*Session    // by session ID
	byNick      map[string]string      // lower(nickname) → session ID
	invitations map[string]*Invitation // by invitation ID
	matches     map[string]*Match      // by match ID
	matchByNick map[string]string      // lower(nickname) → active match ID
	games       map[string]*gameRef    // game ID → owning match/player
}

func New(cfg Config, pub Publisher, newGame GameCreator) *Lobby {
	cfg.defaults()
	return &Lobby{
		cfg:         cfg,
		pub:         pub,
		newGame:     newGame,
		sessions:    make(map[string]*Session),
		byNick:      make(map[string]string),
		invitations: make(map[string]*Invitation),
		matches:     make(map[string]*Match),
		matchByNick: make(map[string]string),
		games:       make(map[string]*gameRef),
	}
}

func key(nickname string) string { return strings.ToLower(strings.TrimSpace(nickname)) }

func sameNick(a, b string) bool { return key(a) == key(b) }

// ------------------------------ presence -----------------------------------

// Login registers a new session for nickname.
func (l *Lobby) Login(nickname string) (Session, error) {
	nickname = strings.TrimSpace(nickname)
	if !ValidNickname(nickname) {
		return Session{}, ErrInvalidNickname
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.byNick[key(nickname)]; taken {
		return Session{}, ErrNicknameTaken
	}
	now := l.cfg.Now()
	s := &Session{
		ID:           uuid.NewString(),
		Nickname:     nickname,
		Status:       StatusAvailable,
		CreatedAt:    now,
		LastActivity: now,
	}
	l.sessions[s.ID] = s
	l.byNick[key(nickname)] = s.ID
	log.Info().Str("nickname", nickname).Msg("lobby: login")
	l.broadcastPlayers()
	return *s, nil
}

// Logout removes the session, cancels the player's pending invitations and
// abandons an unfinished match. Unknown sessions are ignored.
func (l *Lobby) Logout(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logout(sessionID, "player left the lobby") {
		l.broadcastPlayers()
	}
}

func (l *Lobby) logout(sessionID, reason string) bool {
	s, ok := l.sessions[sessionID]
	if !ok {
		return false
	}
	delete(l.sessions, sessionID)
	delete(l.byNick, key(s.Nickname))

	for _, inv := range l.invitations {
		if inv.Status != InvitationPending {
			continue
		}
		if sameNick(inv.From, s.Nickname) || sameNick(inv.To, s.Nickname) {
			l.resolve(inv, InvitationCancelled, reason)
			l.publishInvitation(inv, inv.From, inv.To)
		}
	}

	if id, ok := l.matchByNick[key(s.Nickname)]; ok {
		if m := l.matches[id]; m != nil && m.Status != MatchFinished {
			m.Message = s.Nickname + " left the match"
			l.finishMatch(m)
			l.pub.Publish(push.GameTopic(m.Opponent(s.Nickname)), push.TypeMatchAbandoned, *m)
		}
	}
	log.Info().Str("nickname", s.Nickname).Str("reason", reason).Msg("lobby: logout")
	return true
}

// Session looks up a live session.
func (l *Lobby) Session(sessionID string) (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Players lists present players sorted by nickname, excluding the session
// excludeID (whose activity is refreshed).
func (l *Lobby) Players(excludeID string) []Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sessions[excludeID]; ok {
		s.LastActivity = l.cfg.Now()
	}
	return l.players(excludeID)
}

// NicknameAvailable reports whether nickname could log in right now.
func (l *Lobby) NicknameAvailable(nickname string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, taken := l.byNick[key(nickname)]
	return !taken
}

func (l *Lobby) players(excludeID string) []Player {
	out := make([]Player, 0, len(l.sessions))
	for id, s := range l.sessions {
		if id == excludeID {
			continue
		}
		out = append(out, Player{Nickname: s.Nickname, Status: s.Status})
	}
	sortPlayers(out)
	return out
}

func sortPlayers(ps []Player) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Nickname < ps[j].Nickname })
}

func (l *Lobby) sessionByNick(nickname string) (*Session, bool) {
	id, ok := l.byNick[key(nickname)]
	if !ok {
		return nil, false
	}
	s, ok := l.sessions[id]
	return s, ok
}

func (l *Lobby) touch(nickname string) {
	if s, ok := l.sessionByNick(nickname); ok {
		s.LastActivity = l.cfg.Now()
	}
}

func (l *Lobby) setStatus(nickname string, st Status) {
	if s, ok := l.sessionByNick(nickname); ok {
		s.Status = st
	}
}

func (l *Lobby) broadcastPlayers() {
	l.pub.Retain(push.TopicPlayers, push.TypePlayers, PlayerList{Players: l.players("")})
}

// ------------------------------- sweeper -----------------------------------

// Sweep cancels expired invitations, drops finished matches together with
// their games and logs out idle AVAILABLE players.
// It returns how many invitations expired and how many players were removed.
func (l *Lobby) Sweep() (expired, removed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.cfg.Now()

	for id, inv := range l.invitations {
		switch {
		case inv.Status == InvitationPending && now.Sub(inv.CreatedAt) > l.cfg.InviteTTL:
			l.resolve(inv, InvitationCancelled, "invitation expired")
			l.publishInvitation(inv, inv.From, inv.To)
			expired++
		case inv.Status.Terminal() && inv.RespondedAt != nil && now.Sub(*inv.RespondedAt) > l.cfg.IdleTimeout:
			delete(l.invitations, id)
		}
	}
	for id, m := range l.matches {
		if m.Status == MatchFinished {
			l.removeGames(m)
			delete(l.matches, id)
		}
	}

	for id, s := range l.sessions {
		if s.Status == StatusAvailable && now.Sub(s.LastActivity) > l.cfg.IdleTimeout {
			l.logout(id, "inactive")
			removed++
		}
	}
	if removed > 0 {
		l.broadcastPlayers()
	}
	return expired, removed
}

func (l *Lobby) removeGames(m *Match) {
	if l.cfg.RemoveGame == nil {
		return
	}
	for _, id := range []string{m.Player1GameID, m.Player2GameID} {
		if id == "" {
			continue
		}
		if err := l.cfg.RemoveGame(context.Background(), id); err != nil {
			log.Warn().Err(err).Str("matchId", m.ID).Str("gameId", id).Msg("lobby: removing match game")
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *Lobby) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired, removed := l.Sweep(); expired > 0 || removed > 0 {
				log.Info().Int("expiredInvitations", expired).Int("removedPlayers", removed).Msg("lobby: sweep")
			}
		}
	}
}
