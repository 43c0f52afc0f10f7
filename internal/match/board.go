// internal/match/board.go
//
// Client-side game board: one game's identity and its append-only history
// as reported by the game service.
//
// Invariants:
//   - History only grows; a state with a shorter history is rejected.
//   - Complete is true iff the last attempt is an exact match or the service
//     reported gameOver.
//   - At most one submission is outstanding at a time.

package match

import (
	"fmt"

	"github.com/hyacinthwings/mastermind/internal/game"
)

// Board mirrors one server-side game.
type Board struct {
	id        string
	slotCount int
	history   []game.Attempt
	complete  bool
	won       bool
	pending   bool
}

// NewBoard builds a board from a game state.
func NewBoard(st game.State) *Board {
	b := &Board{id: st.ID, slotCount: st.SlotCount}
	b.sync(st)
	return b
}

func (b *Board) ID() string     { return b.id }
func (b *Board) SlotCount() int { return b.slotCount }
func (b *Board) Complete() bool { return b.complete }
func (b *Board) Pending() bool  { return b.pending }
func (b *Board) Attempts() int  { return len(b.history) }

// Won reports whether the last attempt matched every slot.
func (b *Board) Won() bool { return b.won }

// History returns a copy of the attempts so far.
func (b *Board) History() []game.Attempt {
	out := make([]game.Attempt, len(b.history))
	copy(out, b.history)
	return out
}

// Validate checks a guess locally: right length, every slot a palette color.
func (b *Board) Validate(guess game.Code) error {
	if !guess.Complete(b.slotCount) {
		return fmt.Errorf("%w: need %d colors, got %s", ErrInvalidGuess, b.slotCount, guess)
	}
	return nil
}

// begin marks a submission as outstanding.
func (b *Board) begin() error {
	switch {
	case b.complete:
		return ErrBoardComplete
	case b.pending:
		return ErrSubmissionInFlight
	}
	b.pending = true
	return nil
}

// abort clears the outstanding submission, leaving the history untouched.
func (b *Board) abort() { b.pending = false }

// apply installs a newer server state and returns the latest attempt.
func (b *Board) apply(st game.State) (game.Attempt, error) {
	b.pending = false
	if st.ID != b.id {
		return game.Attempt{}, fmt.Errorf("state of game %s applied to board %s", st.ID, b.id)
	}
	if len(st.History) <= len(b.history) {
		return game.Attempt{}, ErrStaleState
	}
	b.sync(st)
	return b.history[len(b.history)-1], nil
}

func (b *Board) sync(st game.State) {
	b.history = make([]game.Attempt, len(st.History))
	copy(b.history, st.History)
	b.won = false
	if n := len(b.history); n > 0 && b.history[n-1].Feedback.Exact == b.slotCount {
		b.won = true
	}
	b.complete = b.won || st.GameOver
}

// View is a read-only copy of a board for presentation.
type View struct {
	ID        string         `json:"id"`
	SlotCount int            `json:"slotCount"`
	History   []game.Attempt `json:"history"`
	Complete  bool           `json:"complete"`
	Won       bool           `json:"won"`
	Pending   bool           `json:"pending"`
}

func (b *Board) view() *View {
	if b == nil {
		return nil
	}
	return &View{
		ID:        b.id,
		SlotCount: b.slotCount,
		History:   b.History(),
		Complete:  b.complete,
		Won:       b.won,
		Pending:   b.pending,
	}
}
