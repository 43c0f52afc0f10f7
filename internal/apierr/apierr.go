// Package apierr is the error vocabulary shared by the HTTP server and its
// client: each sentinel error maps to one wire code and HTTP status, so an
// error crossing the network can still be matched with errors.Is.
package apierr

import (
	"errors"
	"net/http"

	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/store"
)

// Codes not tied to a domain sentinel.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL"
)

var (
	ErrBadRequest   = errors.New("malformed request")
	ErrUnauthorized = errors.New("missing or invalid session token")
	ErrRateLimited  = errors.New("too many requests")
)

// Entry binds a sentinel to its wire representation.
type Entry struct {
	Err    error
	Code   string
	Status int
}

var table = []Entry{
	{store.ErrNotFound, CodeNotFound, http.StatusNotFound},
	{game.ErrGameOver, "INVALID_STATE", http.StatusBadRequest},
	{game.ErrInvalidColor, "INVALID_COLOR", http.StatusBadRequest},
	{game.ErrInvalidGuess, "INVALID_GUESS", http.StatusBadRequest},
	{game.ErrInvalidSlotCount, "INVALID_SLOT_COUNT", http.StatusBadRequest},
	{lobby.ErrInvalidNickname, "INVALID_NICKNAME", http.StatusBadRequest},
	{lobby.ErrNicknameTaken, "NICKNAME_TAKEN", http.StatusConflict},
	{lobby.ErrSessionNotFound, "SESSION_NOT_FOUND", http.StatusNotFound},
	{lobby.ErrPlayerNotFound, "PLAYER_NOT_FOUND", http.StatusNotFound},
	{lobby.ErrPlayerBusy, "PLAYER_BUSY", http.StatusConflict},
	{lobby.ErrSelfInvite, "SELF_INVITE", http.StatusBadRequest},
	{lobby.ErrAlreadyInvited, "ALREADY_INVITED", http.StatusConflict},
	{lobby.ErrInvitationNotFound, "INVITATION_NOT_FOUND", http.StatusNotFound},
	{lobby.ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict},
	{lobby.ErrMatchNotFound, "MATCH_NOT_FOUND", http.StatusNotFound},
	{ErrBadRequest, CodeBadRequest, http.StatusBadRequest},
	{ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized},
	{ErrRateLimited, CodeRateLimited, http.StatusTooManyRequests},
}

// Lookup returns the entry matching err. Unknown errors map to a 500.
func Lookup(err error) Entry {
	for _, e := range table {
		if errors.Is(err, e.Err) {
			return e
		}
	}
	return Entry{Err: err, Code: CodeInternal, Status: http.StatusInternalServerError}
}

// Sentinel returns the error registered for code, or nil.
func Sentinel(code string) error {
	for _, e := range table {
		if e.Code == code {
			return e.Err
		}
	}
	return nil
}
