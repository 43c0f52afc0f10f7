// internal/game/types.go
//
// Core type definitions for the Mastermind game engine.
// Defines:
//   - Color / Code: palette entries and ordered sequences of them (secret or guess).
//   - Feedback / Attempt: the score of one guess and the guess paired with it.
//   - Game: authoritative server-side state for one secret.
//   - State: the public view of a Game (never carries the secret).

package game

import "time"

// Color is one entry of the fixed palette. The zero value marks an unset slot.
type Color string

const (
	Red    Color = "red"
	Blue   Color = "blue"
	Green  Color = "green"
	Yellow Color = "yellow"
	Purple Color = "purple"
	Cyan   Color = "cyan"
)

// Code is an ordered sequence of colors, used for both secrets and guesses.
type Code []Color

// Feedback is the score of a guess against a secret.
//   - Exact:   right color in the right slot.
//   - Partial: right color in a different, still unmatched slot.
type Feedback struct {
	Exact   int `json:"exact"`
	Partial int `json:"partial"`
}

// Attempt pairs a guess with its feedback. Immutable once appended to a history.
type Attempt struct {
	Guess    Code     `json:"guess"`
	Feedback Feedback `json:"feedback"`
}

// Game holds the state of a single Mastermind game.
type Game struct {
	ID          string    // Unique game identifier (uuid).
	Secret      Code      // The code to crack.
	SlotCount   int       // Number of slots per code.
	MaxAttempts int       // Attempt cap; 0 means unlimited.
	History     []Attempt // Guesses made so far, in order.
	GameOver    bool      // True once solved or the cap is reached.
	Won         bool      // True if the last guess matched the secret.
	CreatedAt   time.Time
}

// State is the JSON shape returned by the game service.
type State struct {
	ID          string    `json:"id"`
	History     []Attempt `json:"history"`
	GameOver    bool      `json:"gameOver"`
	Won         bool      `json:"won"`
	SlotCount   int       `json:"slotCount"`
	MaxAttempts int       `json:"maxAttempts"`
	CreatedAt   time.Time `json:"createdAt"`
}
