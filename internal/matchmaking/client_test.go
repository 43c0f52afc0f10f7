package matchmaking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hyacinthwings/mastermind/internal/apiclient"
	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/push"
)

// ---------------------------------- fakes -----------------------------------

type mockLobby struct{ mock.Mock }

func (m *mockLobby) Login(_ context.Context, nickname string) (apiclient.LoginResult, error) {
	args := m.Called(nickname)
	return args.Get(0).(apiclient.LoginResult), args.Error(1)
}

func (m *mockLobby) Logout(_ context.Context, sessionID string) error {
	return m.Called(sessionID).Error(0)
}

func (m *mockLobby) Players(_ context.Context, exclude string) ([]lobby.Player, error) {
	args := m.Called(exclude)
	return args.Get(0).([]lobby.Player), args.Error(1)
}

func (m *mockLobby) Invite(_ context.Context, from, to string) (lobby.Invitation, error) {
	args := m.Called(from, to)
	return args.Get(0).(lobby.Invitation), args.Error(1)
}

func (m *mockLobby) Respond(_ context.Context, nickname, id string, accept bool) (lobby.Invitation, error) {
	args := m.Called(nickname, id, accept)
	return args.Get(0).(lobby.Invitation), args.Error(1)
}

func (m *mockLobby) Cancel(_ context.Context, id, nickname string) (lobby.Invitation, error) {
	args := m.Called(id, nickname)
	return args.Get(0).(lobby.Invitation), args.Error(1)
}

func (m *mockLobby) SetSecret(_ context.Context, nickname, opponent string, secret game.Code) (lobby.Match, error) {
	args := m.Called(nickname, opponent, secret)
	return args.Get(0).(lobby.Match), args.Error(1)
}

type mockPairer struct {
	mock.Mock
	calls chan string
}

func newMockPairer() *mockPairer { return &mockPairer{calls: make(chan string, 16)} }

func (p *mockPairer) AwaitOpponent(_ context.Context, opponent string) error {
	defer func() { p.calls <- "await:" + opponent }()
	return p.Called(opponent).Error(0)
}

func (p *mockPairer) Pair(_ context.Context, m lobby.Match, me string) error {
	defer func() { p.calls <- "pair:" + m.ID }()
	return p.Called(m.ID, me).Error(0)
}

func (p *mockPairer) RemoteMove(_ context.Context, st game.State) error {
	defer func() { p.calls <- "move:" + st.ID }()
	return p.Called(st.ID, len(st.History)).Error(0)
}

func (p *mockPairer) Abandon(_ context.Context, opponent, reason string) error {
	defer func() { p.calls <- "abandon:" + opponent }()
	return p.Called(opponent, reason).Error(0)
}

func (p *mockPairer) next(t *testing.T) string {
	t.Helper()
	select {
	case c := <-p.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no pairer call")
		return ""
	}
}

type fakeSub struct {
	ch     chan push.Message
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func newFakeSub() *fakeSub { return &fakeSub{ch: make(chan push.Message, 16)} }

func (s *fakeSub) Messages() <-chan push.Message { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// send publishes payload on the topic the lobby uses for typ.
func (s *fakeSub) send(t *testing.T, typ string, payload any) {
	t.Helper()
	topic := push.GameTopic("me")
	switch typ {
	case push.TypePlayers:
		topic = push.TopicPlayers
	case push.TypeInvitation:
		topic = push.InvitationsTopic("me")
	}
	s.sendOn(t, topic, typ, payload)
}

func (s *fakeSub) sendOn(t *testing.T, topic, typ string, payload any) {
	t.Helper()
	msg, err := push.NewMessage(topic, typ, payload)
	require.NoError(t, err)
	s.ch <- msg
}

type dialer struct {
	mu   sync.Mutex
	subs []*fakeSub
}

func (d *dialer) dial(_ context.Context, token string) (Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.subs {
		if !s.isClosed() {
			return nil, errors.New("previous subscription still open")
		}
	}
	s := newFakeSub()
	d.subs = append(d.subs, s)
	return s, nil
}

func (d *dialer) last() *fakeSub {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subs[len(d.subs)-1]
}

type fixture struct {
	api    *mockLobby
	pairer *mockPairer
	dialer *dialer
	c      *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{api: &mockLobby{}, pairer: newMockPairer(), dialer: &dialer{}}
	f.c = New(f.api, f.dialer.dial, f.pairer)
	ctx, cancel := context.WithCancel(context.Background())
	go f.c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		f.api.AssertExpectations(t)
		f.pairer.AssertExpectations(t)
	})
	return f
}

func (f *fixture) login(t *testing.T, nickname string) *fakeSub {
	t.Helper()
	f.api.On("Login", nickname).
		Return(apiclient.LoginResult{SessionID: "s-" + nickname, Nickname: nickname, Token: "tok"}, nil).Once()
	require.NoError(t, f.c.Login(context.Background(), nickname))
	return f.dialer.last()
}

func (f *fixture) waitView(t *testing.T, cond func(View) bool) View {
	t.Helper()
	require.Eventually(t, func() bool { return cond(f.c.View()) }, 2*time.Second, 5*time.Millisecond)
	return f.c.View()
}

func (f *fixture) waitEvent(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

func invitation(id, from, to string, st lobby.InvitationStatus) lobby.Invitation {
	return lobby.Invitation{ID: id, From: from, To: to, Status: st, CreatedAt: time.Now()}
}

func statusOf(v View, id string) lobby.InvitationStatus {
	for _, inv := range v.Invitations {
		if inv.ID == id {
			return inv.Status
		}
	}
	return ""
}

// ---------------------------------- tests -----------------------------------

func TestLoginRejectsMalformedNicknameLocally(t *testing.T) {
	f := newFixture(t)
	for _, n := range []string{"", "ab", "has space", "way-too-long-nickname-here"} {
		assert.ErrorIs(t, f.c.Login(context.Background(), n), lobby.ErrInvalidNickname, n)
	}
	f.api.AssertNotCalled(t, "Login", mock.Anything)
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	f := newFixture(t)
	first := f.login(t, "alice")
	assert.Equal(t, "alice", f.c.View().Nickname)

	f.api.On("Logout", "s-alice").Return(nil).Once()
	second := f.login(t, "bob")

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	v := f.c.View()
	assert.Equal(t, "bob", v.Nickname)
	assert.Equal(t, "s-bob", v.SessionID)
}

func TestLoginServiceError(t *testing.T) {
	f := newFixture(t)
	f.api.On("Login", "alice").Return(apiclient.LoginResult{}, lobby.ErrNicknameTaken).Once()
	assert.ErrorIs(t, f.c.Login(context.Background(), "alice"), lobby.ErrNicknameTaken)
	assert.Empty(t, f.c.View().Nickname)
}

func TestRequestsNeedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.c.Invite(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.ErrorIs(t, f.c.Logout(ctx), ErrNotLoggedIn)
	_, err = f.c.SetSecret(ctx, game.Code{game.Red, game.Red, game.Red, game.Red})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestPresenceFromPushAndQuery(t *testing.T) {
	f := newFixture(t)
	sub := f.login(t, "alice")

	sub.ch <- push.Message{Topic: push.TopicPlayers, Type: push.TypePlayers, Payload: []byte(`{"players":`)}
	sub.send(t, push.TypePlayers, lobby.PlayerList{Players: []lobby.Player{{Nickname: "bob", Status: lobby.StatusAvailable}}})
	v := f.waitView(t, func(v View) bool { return len(v.Players) == 1 })
	assert.Equal(t, "bob", v.Players[0].Nickname)

	f.api.On("Players", "s-alice").Return([]lobby.Player{{Nickname: "carol", Status: lobby.StatusBusy}}, nil).Once()
	players, err := f.c.Players(context.Background())
	require.NoError(t, err)
	assert.Len(t, players, 1)
	assert.Equal(t, "carol", f.c.View().Players[0].Nickname)
}

func TestRecipientNotificationFiltering(t *testing.T) {
	f := newFixture(t)
	sub := f.login(t, "alice")
	ctx := context.Background()

	// not addressed to us
	sub.send(t, push.TypeInvitation, invitation("x", "bob", "carol", lobby.InvitationPending))
	// unknown invitation
	sub.send(t, push.TypeInvitation, invitation("y", "bob", "alice", lobby.InvitationCancelled))
	sub.send(t, push.TypeInvitation, invitation("i1", "bob", "alice", lobby.InvitationPending))
	v := f.waitView(t, func(v View) bool { return len(v.Invitations) > 0 })
	require.Len(t, v.Invitations, 1)
	assert.Equal(t, lobby.InvitationPending, statusOf(v, "i1"))

	f.api.On("Respond", "alice", "i1", true).
		Return(invitation("i1", "bob", "alice", lobby.InvitationAccepted), nil).Once()
	f.pairer.On("AwaitOpponent", "bob").Return(nil).Once()
	_, err := f.c.Respond(ctx, "i1", true)
	require.NoError(t, err)
	assert.Equal(t, "await:bob", f.pairer.next(t))
	assert.Equal(t, "bob", f.c.View().Opponent)

	// a cancellation that crossed our acceptance is stale
	sub.send(t, push.TypeInvitation, invitation("i1", "bob", "alice", lobby.InvitationCancelled))
	// recipients never act on responses
	sub.send(t, push.TypeInvitation, invitation("i1", "bob", "alice", lobby.InvitationDeclined))
	sub.send(t, push.TypeInvitation, invitation("i2", "bob", "alice", lobby.InvitationPending))
	v = f.waitView(t, func(v View) bool { return len(v.Invitations) == 2 })
	assert.Equal(t, lobby.InvitationAccepted, statusOf(v, "i1"))
}

func TestSenderNotificationFiltering(t *testing.T) {
	f := newFixture(t)
	sub := f.login(t, "alice")
	ctx := context.Background()

	f.api.On("Invite", "alice", "carol").Return(invitation("i1", "alice", "carol", lobby.InvitationPending), nil).Once()
	_, err := f.c.Invite(ctx, "carol")
	require.NoError(t, err)

	f.api.On("Invite", "alice", "dave").Return(lobby.Invitation{}, lobby.ErrAlreadyInvited).Once()
	_, err = f.c.Invite(ctx, "dave")
	assert.ErrorIs(t, err, lobby.ErrAlreadyInvited)

	f.pairer.On("AwaitOpponent", "carol").Return(nil).Once()
	sub.send(t, push.TypeInvitation, invitation("i1", "alice", "carol", lobby.InvitationAccepted))
	assert.Equal(t, "await:carol", f.pairer.next(t))
	v := f.waitView(t, func(v View) bool { return v.Opponent == "carol" })
	assert.Equal(t, lobby.InvitationAccepted, statusOf(v, "i1"))

	// already resolved
	sub.send(t, push.TypeInvitation, invitation("i1", "alice", "carol", lobby.InvitationDeclined))
	sub.send(t, push.TypeInvitation, invitation("i1", "alice", "carol", lobby.InvitationCancelled))
	sub.send(t, push.TypeInvitation, invitation("i3", "erin", "alice", lobby.InvitationPending))
	v = f.waitView(t, func(v View) bool { return len(v.Invitations) == 2 })
	assert.Equal(t, lobby.InvitationAccepted, statusOf(v, "i1"))
}

func TestCancelRecordsResult(t *testing.T) {
	f := newFixture(t)
	f.login(t, "alice")
	ctx := context.Background()

	f.api.On("Invite", "alice", "bob").Return(invitation("i1", "alice", "bob", lobby.InvitationPending), nil).Once()
	_, err := f.c.Invite(ctx, "bob")
	require.NoError(t, err)

	f.api.On("Cancel", "i1", "alice").Return(invitation("i1", "alice", "bob", lobby.InvitationCancelled), nil).Once()
	_, err = f.c.Cancel(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, lobby.InvitationCancelled, statusOf(f.c.View(), "i1"))
}

func TestPairingHandoff(t *testing.T) {
	f := newFixture(t)
	sub := f.login(t, "bob")
	ctx := context.Background()
	secret := game.Code{game.Blue, game.Green, game.Blue, game.Green}

	_, err := f.c.SetSecret(ctx, secret)
	assert.ErrorIs(t, err, ErrNoOpponent)
	_, err = f.c.SetSecret(ctx, game.Code{game.Blue, "pink"})
	assert.ErrorIs(t, err, ErrInvalidSecret)

	sub.send(t, push.TypeInvitation, invitation("i1", "alice", "bob", lobby.InvitationPending))
	f.waitView(t, func(v View) bool { return len(v.Invitations) == 1 })
	f.api.On("Respond", "bob", "i1", true).
		Return(invitation("i1", "alice", "bob", lobby.InvitationAccepted), nil).Once()
	f.pairer.On("AwaitOpponent", "alice").Return(nil).Once()
	_, err = f.c.Respond(ctx, "i1", true)
	require.NoError(t, err)
	assert.Equal(t, "await:alice", f.pairer.next(t))

	m := lobby.Match{
		ID: "m1", Player1: "alice", Player2: "bob",
		Player1GameID: "g1", Player2GameID: "g2", Status: lobby.MatchPlaying,
	}
	f.api.On("SetSecret", "bob", "alice", secret).Return(m, nil).Once()
	f.pairer.On("Pair", "m1", "bob").Return(nil).Once()
	got, err := f.c.SetSecret(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, lobby.MatchPlaying, got.Status)
	assert.Equal(t, "pair:m1", f.pairer.next(t))

	// the push copy of the same match is not paired again
	sub.send(t, push.TypeMatchReady, m)
	f.pairer.On("RemoteMove", "g2", 1).Return(nil).Once()
	sub.send(t, push.TypeMove, game.State{ID: "g2", History: []game.Attempt{{Guess: secret}}})
	assert.Equal(t, "move:g2", f.pairer.next(t))
	assert.Equal(t, "m1", f.c.View().MatchID)
}

func TestMatchReadyFromPush(t *testing.T) {
	f := newFixture(t)
	sub := f.login(t, "alice")

	f.api.On("Invite", "alice", "bob").Return(invitation("i1", "alice", "bob", lobby.InvitationPending), nil).Once()
	_, err := f.c.Invite(context.Background(), "bob")
	require.NoError(t, err)
	f.pairer.On("AwaitOpponent", "bob").Return(nil).Once()
	sub.send(t, push.TypeInvitation, invitation("i1", "alice", "bob", lobby.InvitationAccepted))
	assert.Equal(t, "await:bob", f.pairer.next(t))

	// someone else's match
	sub.send(t, push.TypeMatchReady, lobby.Match{ID: "other", Player1: "carol", Player2: "dave"})
	f.pairer.On("Pair", "m1", "alice").Return(nil).Once()
	sub.send(t, push.TypeMatchReady, lobby.Match{ID: "m1", Player1: "alice", Player2: "bob", Status: lobby.MatchPlaying})
	assert.Equal(t, "pair:m1", f.pairer.next(t))
}

func TestStaleSessionMessagesDropped(t *testing.T) {
	f := newFixture(t)
	f.login(t, "alice")
	f.api.On("Logout", "s-alice").Return(nil).Once()
	require.NoError(t, f.c.Logout(context.Background()))

	v := f.c.View()
	assert.Empty(t, v.Nickname)
	assert.True(t, f.dialer.last().isClosed())

	// a message handled under an old generation is ignored
	require.NoError(t, f.c.exec(context.Background(), func() error {
		f.c.handle(0, push.Message{Type: push.TypePlayers, Payload: []byte(`{"players":[{"nickname":"x"}]}`)})
		return nil
	}))
	assert.Empty(t, f.c.View().Players)
}

func TestResponseBeforeInviteReply(t *testing.T) {
	f := newFixture(t)
	sub := f.login(t, "alice")
	ctx := context.Background()

	f.pairer.On("AwaitOpponent", "bob").Return(nil).Once()
	f.api.On("Invite", "alice", "bob").
		Run(func(mock.Arguments) {
			sub.send(t, push.TypeInvitation, invitation("i1", "alice", "bob", lobby.InvitationAccepted))
			f.waitView(t, func(v View) bool { return v.Opponent == "bob" })
		}).
		Return(invitation("i1", "alice", "bob", lobby.InvitationPending), nil).Once()
	_, err := f.c.Invite(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "await:bob", f.pairer.next(t))
	v := f.c.View()
	assert.Equal(t, lobby.InvitationAccepted, statusOf(v, "i1"))
	assert.Equal(t, "bob", v.Opponent)

	f.api.On("Invite", "alice", "carol").
		Run(func(mock.Arguments) {
			sub.send(t, push.TypeInvitation, invitation("i2", "alice", "carol", lobby.InvitationDeclined))
			f.waitView(t, func(v View) bool { return statusOf(v, "i2") != "" })
		}).
		Return(invitation("i2", "alice", "carol", lobby.InvitationPending), nil).Once()
	_, err = f.c.Invite(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, lobby.InvitationDeclined, statusOf(f.c.View(), "i2"))

	// responses to invitations someone else sent stay ignored
	sub.send(t, push.TypeInvitation, invitation("i3", "erin", "bob", lobby.InvitationAccepted))
	sub.send(t, push.TypeInvitation, invitation("i4", "erin", "alice", lobby.InvitationPending))
	v = f.waitView(t, func(v View) bool { return statusOf(v, "i4") != "" })
	assert.Empty(t, statusOf(v, "i3"))
	assert.Equal(t, "bob", v.Opponent)
}

func TestMessagesOnUnexpectedTopicDropped(t *testing.T) {
	f := newFixture(t)
	sub := f.login(t, "alice")

	sub.sendOn(t, push.GameTopic("alice"), push.TypeInvitation, invitation("i1", "bob", "alice", lobby.InvitationPending))
	sub.sendOn(t, push.InvitationsTopic("alice"), push.TypePlayers,
		lobby.PlayerList{Players: []lobby.Player{{Nickname: "mallory"}}})
	sub.sendOn(t, push.InvitationsTopic("alice"), push.TypeInvitation, invitation("i2", "bob", "alice", lobby.InvitationPending))

	v := f.waitView(t, func(v View) bool { return len(v.Invitations) > 0 })
	require.Len(t, v.Invitations, 1)
	assert.Equal(t, "i2", v.Invitations[0].ID)
	assert.Empty(t, v.Players)
}

func TestOpponentLeavesMatch(t *testing.T) {
	f := newFixture(t)
	sub := f.login(t, "alice")

	f.api.On("Invite", "alice", "bob").Return(invitation("i1", "alice", "bob", lobby.InvitationPending), nil).Once()
	_, err := f.c.Invite(context.Background(), "bob")
	require.NoError(t, err)
	f.pairer.On("AwaitOpponent", "bob").Return(nil).Once()
	sub.send(t, push.TypeInvitation, invitation("i1", "alice", "bob", lobby.InvitationAccepted))
	assert.Equal(t, "await:bob", f.pairer.next(t))
	f.pairer.On("Pair", "m1", "alice").Return(nil).Once()
	sub.send(t, push.TypeMatchReady, lobby.Match{ID: "m1", Player1: "alice", Player2: "bob", Status: lobby.MatchPlaying})
	assert.Equal(t, "pair:m1", f.pairer.next(t))

	// a match we are not part of
	sub.send(t, push.TypeMatchAbandoned, lobby.Match{ID: "other", Player1: "carol", Player2: "dave", Status: lobby.MatchFinished})

	f.pairer.On("Abandon", "bob", "bob left the match").Return(nil).Once()
	sub.send(t, push.TypeMatchAbandoned, lobby.Match{
		ID: "m1", Player1: "alice", Player2: "bob",
		Status: lobby.MatchFinished, Message: "bob left the match",
	})
	assert.Equal(t, "abandon:bob", f.pairer.next(t))
	ev := f.waitEvent(t, EventMatchEnded)
	assert.Equal(t, "m1", ev.Match.ID)
	v := f.c.View()
	assert.Empty(t, v.Opponent)
	assert.Empty(t, v.MatchID)
}
