// internal/match/match.go
//
// Match aggregate: mode, phase, turn and the boards of one play session.
//
// Modes:
//   - solo: one board, Playing from creation, Finished when it completes.
//   - vs-computer / vs-human: a "self" board (the game the user guesses) and
//     an "opponent" board (the game holding the user's secret). Turns
//     alternate; the match ends after the second mover's move once either
//     board is complete, or as soon as both are.
//
// Mode-specific transitions live behind the rules interface; the winner is a
// pure function of the two boards.

package match

import "github.com/hyacinthwings/mastermind/internal/game"

type Mode string

const (
	ModeSolo       Mode = "solo"
	ModeVsComputer Mode = "vs-computer"
	ModeVsHuman    Mode = "vs-human"
)

type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Side identifies whose turn it is.
type Side string

const (
	SideUser     Side = "user"
	SideOpponent Side = "opponent"
)

// Winner is the outcome of a finished match. The empty value means no
// winner (unfinished, or a solo board exhausted without a solve).
type Winner string

const (
	WinnerNone     Winner = ""
	WinnerUser     Winner = "user"
	WinnerOpponent Winner = "opponent"
	WinnerDraw     Winner = "draw"
)

// DecideWinner applies the two-board rule: both solved, fewer attempts wins
// and equal attempts draw; one solved, that side wins; neither, draw.
func DecideWinner(userSolved, opponentSolved bool, userAttempts, opponentAttempts int) Winner {
	switch {
	case userSolved && opponentSolved:
		switch {
		case userAttempts < opponentAttempts:
			return WinnerUser
		case userAttempts > opponentAttempts:
			return WinnerOpponent
		}
		return WinnerDraw
	case userSolved:
		return WinnerUser
	case opponentSolved:
		return WinnerOpponent
	}
	return WinnerDraw
}

// Match is one play session. It is owned by the Orchestrator goroutine.
type Match struct {
	Mode     Mode
	Phase    Phase
	Turn     Side
	Winner   Winner
	Self     *Board
	Opponent *Board
	// OpponentName is the remote player of a vs-human match.
	OpponentName string
	Revealed     game.Code

	rules rules
}

type rules interface {
	userMoved(m *Match)
	opponentMoved(m *Match)
}

func newSolo(self game.State) *Match {
	m := &Match{Mode: ModeSolo, Phase: PhasePlaying, Turn: SideUser, Self: NewBoard(self), rules: soloRules{}}
	m.rules.userMoved(m) // a restored game may already be over
	return m
}

func newVsComputer(self, opponent game.State) *Match {
	return &Match{
		Mode:     ModeVsComputer,
		Phase:    PhasePlaying,
		Turn:     SideUser,
		Self:     NewBoard(self),
		Opponent: NewBoard(opponent),
		rules:    duelRules{userFirst: true},
	}
}

func newVsHumanSetup(opponentName string) *Match {
	return &Match{Mode: ModeVsHuman, Phase: PhaseSetup, OpponentName: opponentName}
}

// pair moves a vs-human match from Setup to Playing. The boards may already
// hold moves made before the pairing arrived, so the turn follows from the
// attempt counts: the first mover plays whenever both counts are equal.
func (m *Match) pair(self, opponent game.State, userFirst bool) {
	m.Self, m.Opponent = NewBoard(self), NewBoard(opponent)
	m.rules = duelRules{userFirst: userFirst}
	m.Phase = PhasePlaying

	first, second := m.Self.Attempts(), m.Opponent.Attempts()
	if !userFirst {
		first, second = second, first
	}
	firstToMove := first == second
	if firstToMove == userFirst {
		m.Turn = SideUser
	} else {
		m.Turn = SideOpponent
	}
}

func (m *Match) finish(w Winner) {
	m.Phase = PhaseFinished
	m.Winner = w
}

// Finished reports whether the match reached its final phase.
func (m *Match) Finished() bool { return m.Phase == PhaseFinished }

type soloRules struct{}

func (soloRules) userMoved(m *Match) {
	if !m.Self.Complete() {
		return
	}
	w := WinnerNone
	if m.Self.Won() {
		w = WinnerUser
	}
	m.finish(w)
}

func (soloRules) opponentMoved(*Match) {}

// duelRules alternates turns starting with the first mover. After the first
// mover's move the match ends only when both boards are complete; after the
// second mover's move it ends when either is.
type duelRules struct {
	userFirst bool
}

func (r duelRules) userMoved(m *Match) {
	if r.settle(m, r.userFirst) {
		return
	}
	m.Turn = SideOpponent
}

func (r duelRules) opponentMoved(m *Match) {
	if r.settle(m, !r.userFirst) {
		return
	}
	m.Turn = SideUser
}

func (r duelRules) settle(m *Match, byFirstMover bool) bool {
	self, opp := m.Self.Complete(), m.Opponent.Complete()
	done := self && opp
	if !byFirstMover {
		done = self || opp
	}
	if done {
		m.finish(DecideWinner(m.Self.Won(), m.Opponent.Won(), m.Self.Attempts(), m.Opponent.Attempts()))
	}
	return done
}

// Snapshot is a read-only copy of the orchestrator state.
type Snapshot struct {
	Generation   uint64    `json:"generation"`
	Mode         Mode      `json:"mode,omitempty"`
	Phase        Phase     `json:"phase,omitempty"`
	Turn         Side      `json:"turn,omitempty"`
	Winner       Winner    `json:"winner,omitempty"`
	Self         *View     `json:"self,omitempty"`
	Opponent     *View     `json:"opponent,omitempty"`
	OpponentName string    `json:"opponentName,omitempty"`
	Revealed     game.Code `json:"revealed,omitempty"`
	Notice       string    `json:"notice,omitempty"`
}

func (m *Match) snapshot(gen uint64, notice string) Snapshot {
	s := Snapshot{Generation: gen, Notice: notice}
	if m == nil {
		return s
	}
	s.Mode, s.Phase, s.Turn, s.Winner = m.Mode, m.Phase, m.Turn, m.Winner
	s.Self, s.Opponent = m.Self.view(), m.Opponent.view()
	s.OpponentName = m.OpponentName
	s.Revealed = m.Revealed.Clone()
	return s
}
