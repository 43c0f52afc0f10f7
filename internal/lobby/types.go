// internal/lobby/types.go
//
// Data model of the multiplayer lobby.
// Defines:
//   - Session / Player: a logged-in nickname and its public presence.
//   - Invitation: a head-to-head proposal and its status lifecycle.
//   - Match: the pairing created once both invited players set their secret.

package lobby

import (
	"errors"
	"regexp"
	"time"
)

var (
	ErrInvalidNickname    = errors.New("nickname must be 3-20 characters: letters, digits, '_' or '-'")
	ErrNicknameTaken      = errors.New("nickname is already in use")
	ErrSessionNotFound    = errors.New("session not found")
	ErrPlayerNotFound     = errors.New("player not in lobby")
	ErrPlayerBusy         = errors.New("player is already in a match")
	ErrSelfInvite         = errors.New("cannot invite yourself")
	ErrAlreadyInvited     = errors.New("a pending invitation already exists")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvalidTransition  = errors.New("invalid invitation transition")
	ErrMatchNotFound      = errors.New("player is not in a match")
)

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// ValidNickname reports whether s is an acceptable nickname.
func ValidNickname(s string) bool { return nicknamePattern.MatchString(s) }

// Status is a player's availability.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
)

// Session is a logged-in player.
type Session struct {
	ID           string
	Nickname     string
	Status       Status
	CreatedAt    time.Time
	LastActivity time.Time
}

// Player is the public presence of a session.
type Player struct {
	Nickname string `json:"nickname"`
	Status   Status `json:"status"`
}

// PlayerList is the payload of the presence broadcast and the players query.
type PlayerList struct {
	Players []Player `json:"players"`
}

// InvitationStatus is the lifecycle state of an invitation.
// PENDING is the only non-terminal state.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "PENDING"
	InvitationAccepted  InvitationStatus = "ACCEPTED"
	InvitationDeclined  InvitationStatus = "DECLINED"
	InvitationCancelled InvitationStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s InvitationStatus) Terminal() bool { return s != InvitationPending }

// Invitation is the record published on the invitation topics.
type Invitation struct {
	ID          string           `json:"invitationId"`
	From        string           `json:"fromNickname"`
	To          string           `json:"toNickname"`
	Status      InvitationStatus `json:"status"`
	Message     string           `json:"message,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	RespondedAt *time.Time       `json:"respondedAt,omitempty"`
	matchID     string           // set once an accepted invitation starts a match
}

// MatchStatus is the lifecycle of a head-to-head match.
type MatchStatus string

const (
	MatchSetup    MatchStatus = "SETUP"
	MatchPlaying  MatchStatus = "PLAYING"
	MatchFinished MatchStatus = "FINISHED"
)

// Match pairs two players. Each player's game holds that player's secret;
// the other player guesses it. Player1 is the inviter and moves first.
type Match struct {
	ID            string      `json:"matchId"`
	Player1       string      `json:"player1Nickname"`
	Player2       string      `json:"player2Nickname"`
	Player1GameID string      `json:"player1GameId,omitempty"`
	Player2GameID string      `json:"player2GameId,omitempty"`
	Player1Ready  bool        `json:"player1Ready"`
	Player2Ready  bool        `json:"player2Ready"`
	Status        MatchStatus `json:"status"`
	Message       string      `json:"message,omitempty"`
}

// Opponent returns the other player of the match.
func (m Match) Opponent(nickname string) string {
	if sameNick(m.Player1, nickname) {
		return m.Player2
	}
	return m.Player1
}

// GameIDs returns (the game nickname guesses, the game holding nickname's secret).
func (m Match) GameIDs(nickname string) (guessing, own string) {
	if sameNick(m.Player1, nickname) {
		return m.Player2GameID, m.Player1GameID
	}
	return m.Player1GameID, m.Player2GameID
}

// MovesFirst reports whether nickname takes the first turn.
func (m Match) MovesFirst(nickname string) bool { return sameNick(m.Player1, nickname) }

func (m Match) bothReady() bool { return m.Player1Ready && m.Player2Ready }
