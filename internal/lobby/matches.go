// internal/lobby/matches.go
//
// Head-to-head pairing.
// Flow:
//   1) An invitation is ACCEPTED.
//   2) Each player calls SetSecret; a game holding that secret is created.
//   3) Once both are ready the match is PLAYING, both players are BUSY and
//      match-ready is pushed to both game topics.
//   4) RecordMove relays every guess to the owner of the guessed game.
//   5) The match is FINISHED once both games are over, or once one is over
//      and both players have made the same number of guesses (the second
//      mover always gets to answer the first mover's last guess).

package lobby

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/push"
)

// SetSecret registers nickname's secret for the match against opponent,
// creating the match from their accepted invitation on the first call.
//
// The game is created while the lobby lock is held, so GameCreator must not
// call back into the Lobby.
func (l *Lobby) SetSecret(ctx context.Context, nickname, opponent string, secret game.Code) (Match, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	me, ok := l.sessionByNick(nickname)
	if !ok {
		return Match{}, ErrPlayerNotFound
	}
	other, ok := l.sessionByNick(opponent)
	if !ok {
		return Match{}, ErrPlayerNotFound
	}

	m, created, err := l.matchForPair(me.Nickname, other.Nickname)
	if err != nil {
		return Match{}, err
	}
	isPlayer1 := sameNick(m.Player1, me.Nickname)
	if (isPlayer1 && m.Player1Ready) || (!isPlayer1 && m.Player2Ready) {
		return Match{}, fmt.Errorf("%w: secret already set", ErrInvalidTransition)
	}

	gameID, err := l.newGame(ctx, secret)
	if err != nil {
		if created {
			l.discardMatch(m)
		}
		return Match{}, err
	}
	l.games[gameID] = &gameRef{matchID: m.ID, owner: me.Nickname}
	if isPlayer1 {
		m.Player1GameID, m.Player1Ready = gameID, true
	} else {
		m.Player2GameID, m.Player2Ready = gameID, true
	}
	me.LastActivity = l.cfg.Now()

	if !m.bothReady() {
		m.Message = "Waiting for opponent to set their secret..."
		log.Info().Str("matchId", m.ID).Str("nickname", me.Nickname).Msg("lobby: secret set")
		return *m, nil
	}

	m.Status = MatchPlaying
	m.Message = "Both players ready! Game starting..."
	l.setStatus(m.Player1, StatusBusy)
	l.setStatus(m.Player2, StatusBusy)
	l.broadcastPlayers()
	for _, n := range []string{m.Player1, m.Player2} {
		l.pub.Publish(push.GameTopic(n), push.TypeMatchReady, *m)
	}
	log.Info().Str("matchId", m.ID).Str("player1", m.Player1).Str("player2", m.Player2).Msg("lobby: match started")
	return *m, nil
}

// matchForPair returns the unfinished match between a and b, or starts one
// from their accepted invitation.
func (l *Lobby) matchForPair(a, b string) (m *Match, created bool, err error) {
	idA, inA := l.matchByNick[key(a)]
	idB, inB := l.matchByNick[key(b)]
	switch {
	case inA && inB && idA == idB:
		return l.matches[idA], false, nil
	case inA || inB:
		return nil, false, ErrPlayerBusy
	}

	inv, ok := l.acceptedInvitation(a, b)
	if !ok {
		return nil, false, fmt.Errorf("%w: no accepted invitation between %s and %s", ErrInvalidTransition, a, b)
	}
	m = &Match{
		ID:      uuid.NewString(),
		Player1: inv.From,
		Player2: inv.To,
		Status:  MatchSetup,
	}
	inv.matchID = m.ID
	l.matches[m.ID] = m
	l.matchByNick[key(m.Player1)] = m.ID
	l.matchByNick[key(m.Player2)] = m.ID
	return m, true, nil
}

func (l *Lobby) discardMatch(m *Match) {
	for _, inv := range l.invitations {
		if inv.matchID == m.ID {
			inv.matchID = ""
		}
	}
	delete(l.matches, m.ID)
	delete(l.matchByNick, key(m.Player1))
	delete(l.matchByNick, key(m.Player2))
}

// MatchFor returns the unfinished match nickname takes part in.
func (l *Lobby) MatchFor(nickname string) (Match, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.matchByNick[key(nickname)]
	if !ok {
		return Match{}, ErrMatchNotFound
	}
	return *l.matches[id], nil
}

// RecordMove relays a new state of a match game to the player whose secret
// it holds. States of games outside any match are ignored.
func (l *Lobby) RecordMove(gameID string, st game.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ref, ok := l.games[gameID]
	if !ok {
		return
	}
	m := l.matches[ref.matchID]
	if m == nil || m.Status != MatchPlaying {
		return
	}
	l.pub.Publish(push.GameTopic(ref.owner), push.TypeMove, st)
	l.touch(m.Opponent(ref.owner))

	ref.attempts, ref.over = len(st.History), st.GameOver
	// Player1 moves first and guesses Player2's game.
	first, second := l.games[m.Player2GameID], l.games[m.Player1GameID]
	if first == nil || second == nil {
		return
	}
	if (first.over && second.over) || (first.attempts == second.attempts && (first.over || second.over)) {
		m.Message = "Both players are done"
		l.finishMatch(m)
		l.broadcastPlayers()
	}
}

// finishMatch ends m and returns its players to the lobby. The caller
// broadcasts presence.
func (l *Lobby) finishMatch(m *Match) {
	m.Status = MatchFinished
	for _, n := range []string{m.Player1, m.Player2} {
		l.setStatus(n, StatusAvailable)
		if l.matchByNick[key(n)] == m.ID {
			delete(l.matchByNick, key(n))
		}
	}
	delete(l.games, m.Player1GameID)
	delete(l.games, m.Player2GameID)
	log.Info().Str("matchId", m.ID).Str("reason", m.Message).Msg("lobby: match finished")
}
