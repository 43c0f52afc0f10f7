package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyacinthwings/mastermind/internal/game"
)

func TestDecideWinner(t *testing.T) {
	tests := []struct {
		name           string
		uSolved, oSolv bool
		u, o           int
		want           Winner
	}{
		{"both solved, user faster", true, true, 3, 5, WinnerUser},
		{"both solved, opponent faster", true, true, 6, 4, WinnerOpponent},
		{"both solved, equal attempts", true, true, 4, 4, WinnerDraw},
		{"only user solved", true, false, 7, 3, WinnerUser},
		{"only opponent solved", false, true, 2, 9, WinnerOpponent},
		{"neither solved", false, false, 10, 10, WinnerDraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideWinner(tt.uSolved, tt.oSolv, tt.u, tt.o))
		})
	}
}

var (
	miss = game.Attempt{Guess: game.Code{game.Red, game.Red, game.Red, game.Red}, Feedback: game.Feedback{Exact: 1}}
	hit  = game.Attempt{Guess: game.Code{game.Red, game.Blue, game.Green, game.Cyan}, Feedback: game.Feedback{Exact: 4}}
)

func state(id string, attempts ...game.Attempt) game.State {
	st := game.State{ID: id, SlotCount: 4, History: attempts}
	if n := len(attempts); n > 0 && attempts[n-1].Feedback.Exact == 4 {
		st.GameOver, st.Won = true, true
	}
	return st
}

func TestBoardApply(t *testing.T) {
	b := NewBoard(state("g1"))
	assert.False(t, b.Complete())

	require.NoError(t, b.begin())
	assert.ErrorIs(t, b.begin(), ErrSubmissionInFlight)

	a, err := b.apply(state("g1", miss))
	require.NoError(t, err)
	assert.Equal(t, miss, a)
	assert.False(t, b.Pending())
	assert.False(t, b.Complete())

	_, err = b.apply(state("g1", miss))
	assert.ErrorIs(t, err, ErrStaleState)
	_, err = b.apply(state("other", miss, miss))
	assert.Error(t, err)
	assert.Equal(t, 1, b.Attempts())

	exhausted := state("g1", miss, miss)
	exhausted.GameOver = true
	_, err = b.apply(exhausted)
	require.NoError(t, err)
	assert.True(t, b.Complete())
	assert.False(t, b.Won())
	assert.ErrorIs(t, b.begin(), ErrBoardComplete)
}

func TestBoardValidate(t *testing.T) {
	b := NewBoard(state("g1"))
	assert.NoError(t, b.Validate(hit.Guess))
	assert.ErrorIs(t, b.Validate(game.Code{game.Red}), ErrInvalidGuess)
	assert.ErrorIs(t, b.Validate(game.Code{game.Red, "", game.Red, game.Red}), ErrInvalidGuess)
	assert.ErrorIs(t, b.Validate(game.Code{game.Red, "pink", game.Red, game.Red}), ErrInvalidGuess)
}

func TestSoloFinishes(t *testing.T) {
	m := newSolo(state("s"))
	assert.Equal(t, PhasePlaying, m.Phase)

	_, err := m.Self.apply(state("s", miss))
	require.NoError(t, err)
	m.rules.userMoved(m)
	assert.Equal(t, PhasePlaying, m.Phase)

	_, err = m.Self.apply(state("s", miss, hit))
	require.NoError(t, err)
	m.rules.userMoved(m)
	assert.Equal(t, PhaseFinished, m.Phase)
	assert.Equal(t, WinnerUser, m.Winner)
}

func TestDuelTurnsAlternate(t *testing.T) {
	m := newVsComputer(state("self"), state("opp"))
	require.Equal(t, SideUser, m.Turn)

	self := []game.Attempt{}
	opp := []game.Attempt{}
	for i := 0; i < 3; i++ {
		self = append(self, miss)
		_, err := m.Self.apply(state("self", self...))
		require.NoError(t, err)
		m.rules.userMoved(m)
		assert.Equal(t, SideOpponent, m.Turn)

		opp = append(opp, miss)
		_, err = m.Opponent.apply(state("opp", opp...))
		require.NoError(t, err)
		m.rules.opponentMoved(m)
		assert.Equal(t, SideUser, m.Turn)
	}
	assert.Equal(t, PhasePlaying, m.Phase)
}

func TestDuelUserSolvesOpponentAnswers(t *testing.T) {
	m := newVsComputer(state("self"), state("opp"))

	_, err := m.Self.apply(state("self", hit))
	require.NoError(t, err)
	m.rules.userMoved(m)
	assert.Equal(t, PhasePlaying, m.Phase, "opponent still gets its move")
	assert.Equal(t, SideOpponent, m.Turn)

	_, err = m.Opponent.apply(state("opp", hit))
	require.NoError(t, err)
	m.rules.opponentMoved(m)
	assert.Equal(t, PhaseFinished, m.Phase)
	assert.Equal(t, WinnerDraw, m.Winner)
}

func TestDuelOpponentSolvesFirst(t *testing.T) {
	m := newVsComputer(state("self"), state("opp"))

	_, err := m.Self.apply(state("self", miss))
	require.NoError(t, err)
	m.rules.userMoved(m)
	_, err = m.Opponent.apply(state("opp", hit))
	require.NoError(t, err)
	m.rules.opponentMoved(m)

	assert.Equal(t, PhaseFinished, m.Phase)
	assert.Equal(t, WinnerOpponent, m.Winner)
}

func TestDuelSecondMoverPerspective(t *testing.T) {
	// the remote player moves first and solves; we answer once
	m := newVsHumanSetup("alice")
	m.pair(state("self"), state("opp"), false)
	require.Equal(t, SideOpponent, m.Turn)

	_, err := m.Opponent.apply(state("opp", hit))
	require.NoError(t, err)
	m.rules.opponentMoved(m)
	assert.Equal(t, PhasePlaying, m.Phase)
	assert.Equal(t, SideUser, m.Turn)

	_, err = m.Self.apply(state("self", miss))
	require.NoError(t, err)
	m.rules.userMoved(m)
	assert.Equal(t, PhaseFinished, m.Phase)
	assert.Equal(t, WinnerOpponent, m.Winner)
}

func TestSnapshotOfNoMatch(t *testing.T) {
	var m *Match
	s := m.snapshot(3, "hello")
	assert.Equal(t, uint64(3), s.Generation)
	assert.Equal(t, Mode(""), s.Mode)
	assert.Nil(t, s.Self)
}
