// internal/game/engine.go
//
// Core game engine for a single Mastermind game.
// Responsibilities:
//   - Create new games with a given or random secret.
//   - Validate and apply guesses (length, palette colors).
//   - Score guesses with the exact/partial two-pass algorithm.
//   - Track state transitions: playing → won / exhausted.
//
// Package-level defaults live in palette.go.
package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrGameOver     = errors.New("game is already over")
	ErrInvalidGuess = errors.New("invalid guess")
)

// New constructs a new game.
// If secret is nil, a random secret is drawn from the palette.
func New(slotCount, maxAttempts int, secret Code) (*Game, error) {
	if err := ValidSlotCount(slotCount); err != nil {
		return nil, err
	}
	if maxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must not be negative: %d", maxAttempts)
	}
	if secret == nil {
		var err error
		if secret, err = RandomSecret(slotCount); err != nil {
			return nil, err
		}
	} else if !secret.Complete(slotCount) {
		return nil, fmt.Errorf("%w: secret must contain %d valid colors", ErrInvalidGuess, slotCount)
	}
	return &Game{
		ID:          uuid.NewString(),
		Secret:      secret.Clone(),
		SlotCount:   slotCount,
		MaxAttempts: maxAttempts,
		History:     []Attempt{},
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// ApplyGuess validates and scores a guess, appending it to the history.
//
// State transitions:
//   - exact == SlotCount → GameOver = true, Won = true.
//   - Else if the history reaches MaxAttempts (when set) → GameOver = true.
func (g *Game) ApplyGuess(guess Code) (Attempt, error) {
	if g.GameOver {
		return Attempt{}, ErrGameOver
	}
	if !guess.Complete(g.SlotCount) {
		return Attempt{}, fmt.Errorf("%w: must contain %d valid colors", ErrInvalidGuess, g.SlotCount)
	}

	a := Attempt{Guess: guess.Clone(), Feedback: Score(g.Secret, guess)}
	g.History = append(g.History, a)

	if a.Feedback.Exact == g.SlotCount {
		g.GameOver, g.Won = true, true
	} else if g.MaxAttempts > 0 && len(g.History) >= g.MaxAttempts {
		g.GameOver = true
	}
	return a, nil
}

// Reset draws a new secret and clears the history.
func (g *Game) Reset() error {
	secret, err := RandomSecret(g.SlotCount)
	if err != nil {
		return err
	}
	g.Secret = secret
	g.History = []Attempt{}
	g.GameOver, g.Won = false, false
	return nil
}

// Clone returns a deep copy of the game.
func (g *Game) Clone() *Game {
	c := *g
	c.Secret = g.Secret.Clone()
	c.History = make([]Attempt, len(g.History))
	for i, a := range g.History {
		c.History[i] = Attempt{Guess: a.Guess.Clone(), Feedback: a.Feedback}
	}
	return &c
}

// Solution returns a copy of the secret.
func (g *Game) Solution() Code { return g.Secret.Clone() }

// State returns the public view of the game.
func (g *Game) State() State {
	h := make([]Attempt, len(g.History))
	copy(h, g.History)
	return State{
		ID:          g.ID,
		History:     h,
		GameOver:    g.GameOver,
		Won:         g.Won,
		SlotCount:   g.SlotCount,
		MaxAttempts: g.MaxAttempts,
		CreatedAt:   g.CreatedAt,
	}
}

// Score evaluates guess against secret.
//
// Pass 1:
//   - Count exact matches; those slots are consumed on both sides.
//
// Pass 2:
//   - Build color counts for the unconsumed secret and guess slots.
//   - partial = Σ min(secretCount[c], guessCount[c]).
//
// Codes of different length are scored over the common prefix.
func Score(secret, guess Code) Feedback {
	n := len(secret)
	if len(guess) < n {
		n = len(guess)
	}

	var fb Feedback
	secretLeft := make(map[Color]int, len(Palette))
	guessLeft := make(map[Color]int, len(Palette))
	for i := 0; i < n; i++ {
		if guess[i] == secret[i] {
			fb.Exact++
			continue
		}
		secretLeft[secret[i]]++
		guessLeft[guess[i]]++
	}
	for c, gc := range guessLeft {
		fb.Partial += min(gc, secretLeft[c])
	}
	return fb
}
