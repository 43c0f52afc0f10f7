package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/push"
)

type published struct {
	topic, typ string
	payload    any
}

type recorder struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recorder) Publish(topic, typ string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{topic, typ, payload})
}

func (r *recorder) Retain(topic, typ string, payload any) { r.Publish(topic, typ, payload) }

func (r *recorder) on(topic string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, m := range r.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) last(topic string) published {
	msgs := r.on(topic)
	if len(msgs) == 0 {
		return published{}
	}
	return msgs[len(msgs)-1]
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newLobby(t *testing.T) (*Lobby, *recorder, *clock) {
	t.Helper()
	rec := &recorder{}
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	n := 0
	newGame := func(_ context.Context, secret game.Code) (string, error) {
		if !secret.Complete(game.DefaultSlotCount) {
			return "", game.ErrInvalidGuess
		}
		n++
		return fmt.Sprintf("game-%d", n), nil
	}
	l := New(Config{InviteTTL: 5 * time.Minute, IdleTimeout: 10 * time.Minute, Now: clk.Now}, rec, newGame)
	return l, rec, clk
}

func login(t *testing.T, l *Lobby, nicks ...string) []Session {
	t.Helper()
	out := make([]Session, 0, len(nicks))
	for _, n := range nicks {
		s, err := l.Login(n)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

var secret = game.Code{game.Red, game.Blue, game.Green, game.Yellow}

func TestLoginValidationAndUniqueness(t *testing.T) {
	l, rec, _ := newLobby(t)

	_, err := l.Login("ab")
	assert.ErrorIs(t, err, ErrInvalidNickname)
	_, err = l.Login("bad name!")
	assert.ErrorIs(t, err, ErrInvalidNickname)

	login(t, l, "Alice")
	_, err = l.Login("alice")
	assert.ErrorIs(t, err, ErrNicknameTaken)
	assert.False(t, l.NicknameAvailable("ALICE"))
	assert.True(t, l.NicknameAvailable("bob"))

	snap := rec.last(push.TopicPlayers)
	require.Equal(t, push.TypePlayers, snap.typ)
	assert.Equal(t, PlayerList{Players: []Player{{Nickname: "Alice", Status: StatusAvailable}}}, snap.payload)
}

func TestPlayersSortedAndExcluded(t *testing.T) {
	l, _, _ := newLobby(t)
	s := login(t, l, "carol", "alice", "bob")

	players := l.Players(s[0].ID)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Nickname)
	assert.Equal(t, "bob", players[1].Nickname)
}

func TestInviteRules(t *testing.T) {
	l, rec, _ := newLobby(t)
	login(t, l, "alice", "bob", "carol")

	_, err := l.Invite("alice", "alice")
	assert.ErrorIs(t, err, ErrSelfInvite)
	_, err = l.Invite("alice", "nobody")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	inv, err := l.Invite("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, InvitationPending, inv.Status)
	assert.Equal(t, "alice", inv.From)

	_, err = l.Invite("alice", "carol")
	assert.ErrorIs(t, err, ErrAlreadyInvited)

	msgs := rec.on(push.InvitationsTopic("bob"))
	require.Len(t, msgs, 1)
	assert.Equal(t, push.TypeInvitation, msgs[0].typ)
	assert.Equal(t, inv, msgs[0].payload)

	// sender stays available while the invitation is pending
	for _, p := range l.Players("") {
		assert.Equal(t, StatusAvailable, p.Status)
	}
}

func TestRespondOnlyByRecipientFromPending(t *testing.T) {
	l, rec, _ := newLobby(t)
	login(t, l, "alice", "bob")
	inv, err := l.Invite("alice", "bob")
	require.NoError(t, err)

	_, err = l.Respond("alice", inv.ID, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.Respond("bob", "missing", true)
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	got, err := l.Respond("bob", inv.ID, false)
	require.NoError(t, err)
	assert.Equal(t, InvitationDeclined, got.Status)
	require.NotNil(t, got.RespondedAt)

	_, err = l.Respond("bob", inv.ID, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.Cancel(inv.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	toSender := rec.last(push.InvitationsTopic("alice"))
	assert.Equal(t, InvitationDeclined, toSender.payload.(Invitation).Status)
}

func TestCancelBySenderOnly(t *testing.T) {
	l, rec, _ := newLobby(t)
	login(t, l, "alice", "bob")
	inv, err := l.Invite("alice", "bob")
	require.NoError(t, err)

	_, err = l.Cancel(inv.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := l.Cancel(inv.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, InvitationCancelled, got.Status)
	assert.Equal(t, InvitationCancelled, rec.last(push.InvitationsTopic("bob")).payload.(Invitation).Status)

	// a new invitation is allowed once the previous one is terminal
	_, err = l.Invite("alice", "bob")
	assert.NoError(t, err)
}

func TestLogoutCancelsPendingInvitations(t *testing.T) {
	l, rec, _ := newLobby(t)
	s := login(t, l, "alice", "bob")
	inv, err := l.Invite("alice", "bob")
	require.NoError(t, err)

	l.Logout(s[0].ID)
	_, ok := l.Session(s[0].ID)
	assert.False(t, ok)

	got, err := l.Invitation(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvitationCancelled, got.Status)
	assert.Equal(t, InvitationCancelled, rec.last(push.InvitationsTopic("bob")).payload.(Invitation).Status)
	assert.Equal(t, PlayerList{Players: []Player{{Nickname: "bob", Status: StatusAvailable}}},
		rec.last(push.TopicPlayers).payload)

	// logging out twice is harmless
	l.Logout(s[0].ID)
}

func TestSweepExpiresInvitationsAndIdlePlayers(t *testing.T) {
	l, rec, clk := newLobby(t)
	s := login(t, l, "alice", "bob")
	inv, err := l.Invite("alice", "bob")
	require.NoError(t, err)

	clk.advance(6 * time.Minute)
	expired, removed := l.Sweep()
	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, removed)
	got, _ := l.Invitation(inv.ID)
	assert.Equal(t, InvitationCancelled, got.Status)
	assert.Equal(t, "invitation expired", got.Message)
	assert.Len(t, rec.on(push.InvitationsTopic("alice")), 1)

	l.Players(s[0].ID)
	clk.advance(5 * time.Minute)
	_, removed = l.Sweep()
	assert.Equal(t, 1, removed, "bob never acted after login")
	players := l.Players("")
	require.Len(t, players, 1)
	assert.Equal(t, "alice", players[0].Nickname)
}

func startMatch(t *testing.T, l *Lobby) Match {
	t.Helper()
	login(t, l, "alice", "bob")
	inv, err := l.Invite("alice", "bob")
	require.NoError(t, err)
	_, err = l.Respond("bob", inv.ID, true)
	require.NoError(t, err)

	m, err := l.SetSecret(context.Background(), "bob", "alice", secret)
	require.NoError(t, err)
	assert.Equal(t, MatchSetup, m.Status)
	m, err = l.SetSecret(context.Background(), "alice", "bob", secret)
	require.NoError(t, err)
	return m
}

func TestPairingHandoff(t *testing.T) {
	l, rec, _ := newLobby(t)
	m := startMatch(t, l)

	assert.Equal(t, MatchPlaying, m.Status)
	assert.Equal(t, "alice", m.Player1)
	assert.True(t, m.MovesFirst("alice"))
	assert.False(t, m.MovesFirst("bob"))

	guessing, own := m.GameIDs("alice")
	assert.Equal(t, m.Player2GameID, guessing)
	assert.Equal(t, m.Player1GameID, own)

	for _, n := range []string{"alice", "bob"} {
		ready := rec.on(push.GameTopic(n))
		require.Len(t, ready, 1)
		assert.Equal(t, push.TypeMatchReady, ready[0].typ)
		assert.Equal(t, m, ready[0].payload)
	}
	for _, p := range l.Players("") {
		assert.Equal(t, StatusBusy, p.Status)
	}

	got, err := l.MatchFor("BOB")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestSetSecretRequiresAcceptedInvitation(t *testing.T) {
	l, _, _ := newLobby(t)
	login(t, l, "alice", "bob")

	_, err := l.SetSecret(context.Background(), "alice", "bob", secret)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	inv, err := l.Invite("alice", "bob")
	require.NoError(t, err)
	_, err = l.SetSecret(context.Background(), "alice", "bob", secret)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending is not accepted")

	_, err = l.Respond("bob", inv.ID, true)
	require.NoError(t, err)

	_, err = l.SetSecret(context.Background(), "alice", "bob", game.Code{game.Red})
	assert.True(t, errors.Is(err, game.ErrInvalidGuess))
	_, err = l.MatchFor("alice")
	assert.ErrorIs(t, err, ErrMatchNotFound, "failed game creation leaves no match behind")

	_, err = l.SetSecret(context.Background(), "alice", "bob", secret)
	require.NoError(t, err)
	_, err = l.SetSecret(context.Background(), "alice", "bob", secret)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordMoveRelaysAndFinishes(t *testing.T) {
	l, rec, _ := newLobby(t)
	m := startMatch(t, l)

	st := game.State{ID: m.Player2GameID, History: []game.Attempt{{Guess: secret, Feedback: game.Feedback{Exact: 4}}}, GameOver: true, Won: true}
	l.RecordMove(m.Player2GameID, st)

	moves := rec.on(push.GameTopic("bob"))
	last := moves[len(moves)-1]
	assert.Equal(t, push.TypeMove, last.typ)
	assert.Equal(t, st, last.payload)

	got, err := l.MatchFor("alice")
	require.NoError(t, err)
	assert.Equal(t, MatchPlaying, got.Status)

	l.RecordMove(m.Player1GameID, game.State{ID: m.Player1GameID, GameOver: true})
	_, err = l.MatchFor("alice")
	assert.ErrorIs(t, err, ErrMatchNotFound)
	for _, p := range l.Players("") {
		assert.Equal(t, StatusAvailable, p.Status)
	}

	// unknown games are ignored
	l.RecordMove("solo-game", game.State{})
}

func TestMatchFinishesWhenSecondMoverAnswers(t *testing.T) {
	l, _, _ := newLobby(t)
	m := startMatch(t, l)

	won := game.State{History: []game.Attempt{{Guess: secret, Feedback: game.Feedback{Exact: 4}}}, GameOver: true, Won: true}
	l.RecordMove(m.Player2GameID, won)
	_, err := l.MatchFor("bob")
	require.NoError(t, err, "bob still gets his answering guess")

	miss := game.State{History: []game.Attempt{{Guess: secret, Feedback: game.Feedback{Exact: 1}}}}
	l.RecordMove(m.Player1GameID, miss)
	_, err = l.MatchFor("bob")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestLogoutFinishesMatch(t *testing.T) {
	l, rec, _ := newLobby(t)
	startMatch(t, l)

	s, ok := l.sessionByNick("bob")
	require.True(t, ok)
	l.Logout(s.ID)

	_, err := l.MatchFor("alice")
	assert.ErrorIs(t, err, ErrMatchNotFound)
	players := l.Players("")
	require.Len(t, players, 1)
	assert.Equal(t, StatusAvailable, players[0].Status)

	msg := rec.last(push.GameTopic("alice"))
	assert.Equal(t, push.TypeMatchAbandoned, msg.typ)
	m, ok := msg.payload.(Match)
	require.True(t, ok)
	assert.Equal(t, MatchFinished, m.Status)
	assert.Equal(t, "bob left the match", m.Message)
	assert.NotEqual(t, push.TypeMatchAbandoned, rec.last(push.GameTopic("bob")).typ)
}

func TestSweepRemovesGamesOfFinishedMatches(t *testing.T) {
	l, _, _ := newLobby(t)
	var removed []string
	l.cfg.RemoveGame = func(_ context.Context, id string) error {
		removed = append(removed, id)
		if id == "game-2" {
			return errors.New("store unavailable")
		}
		return nil
	}
	m := startMatch(t, l)

	l.Sweep()
	assert.Empty(t, removed, "a running match keeps its games")

	s, ok := l.sessionByNick("alice")
	require.True(t, ok)
	l.Logout(s.ID)
	l.Sweep()
	assert.ElementsMatch(t, []string{m.Player1GameID, m.Player2GameID}, removed)

	l.Sweep()
	assert.Len(t, removed, 2)
}

func TestInvitationJSON(t *testing.T) {
	inv := Invitation{ID: "i1", From: "alice", To: "bob", Status: InvitationPending}
	data, err := json.Marshal(inv)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"invitationId":"i1"`)
	assert.Contains(t, string(data), `"fromNickname":"alice"`)
	assert.NotContains(t, string(data), "respondedAt")
}
