// internal/httpserver/routes_multiplayer.go
//
// HTTP routes of the lobby, mounted under /multiplayer:
//   - POST /login                  → new session + push channel token
//   - POST /logout                 → end a session
//   - GET  /players                → presence snapshot
//   - GET  /check-nickname         → availability of a nickname
//   - POST /invite                 → send an invitation (rate limited per sender)
//   - POST /invitation/respond     → accept or decline
//   - POST /invitation/cancel      → withdraw
//   - POST /game/set-secret        → pairing handoff after ACCEPTED
//   - GET  /game/status            → the caller's current match

package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hyacinthwings/mastermind/internal/apierr"
	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
)

func (s *Server) mountMultiplayer(r chi.Router) {
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Get("/players", s.handlePlayers)
	r.Get("/check-nickname", s.handleCheckNickname)
	r.Post("/invite", s.handleInvite)
	r.Post("/invitation/respond", s.handleRespond)
	r.Post("/invitation/cancel", s.handleCancel)
	r.Post("/game/set-secret", s.handleSetSecret)
	r.Get("/game/status", s.handleMatchStatus)
}

// requiredQuery returns the trimmed query parameter name or a bad request error.
func requiredQuery(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", fmt.Errorf("%w: query parameter %q is required", apierr.ErrBadRequest, name)
	}
	return v, nil
}

type loginReq struct {
	Nickname string `json:"nickname"`
}

type loginRes struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Token     string `json:"token,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.lobby.Login(req.Nickname)
	if err != nil {
		e := apierr.Lookup(err)
		writeJSON(w, e.Status, loginRes{Success: false, Error: e.Code, Message: err.Error()})
		return
	}
	tok, err := s.signToken(sess)
	if err != nil {
		s.lobby.Logout(sess.ID)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginRes{
		Success:   true,
		SessionID: sess.ID,
		Nickname:  sess.Nickname,
		Token:     tok,
		Message:   "Welcome, " + sess.Nickname,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, err := requiredQuery(r, "sessionId")
	if err != nil {
		writeError(w, err)
		return
	}
	s.lobby.Logout(id)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	players := s.lobby.Players(r.URL.Query().Get("exclude"))
	writeJSON(w, http.StatusOK, lobby.PlayerList{Players: players})
}

func (s *Server) handleCheckNickname(w http.ResponseWriter, r *http.Request) {
	nick, err := requiredQuery(r, "nickname")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.lobby.NicknameAvailable(nick))
}

type inviteReq struct {
	ToNickname string `json:"toNickname"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	from, err := requiredQuery(r, "fromNickname")
	if err != nil {
		writeError(w, err)
		return
	}
	var req inviteReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !s.limiter.Allow(from) {
		writeError(w, fmt.Errorf("%w: slow down before sending another invitation", apierr.ErrRateLimited))
		return
	}
	inv, err := s.lobby.Invite(from, req.ToNickname)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type respondReq struct {
	InvitationID string `json:"invitationId"`
	Accept       bool   `json:"accept"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	nick, err := requiredQuery(r, "nickname")
	if err != nil {
		writeError(w, err)
		return
	}
	var req respondReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	inv, err := s.lobby.Respond(nick, req.InvitationID, req.Accept)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := requiredQuery(r, "invitationId")
	if err != nil {
		writeError(w, err)
		return
	}
	inv, err := s.lobby.Cancel(id, r.URL.Query().Get("nickname"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type setSecretReq struct {
	Secret []string `json:"secret"`
}

func (s *Server) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	nick, err := requiredQuery(r, "nickname")
	if err != nil {
		writeError(w, err)
		return
	}
	opponent, err := requiredQuery(r, "opponentNickname")
	if err != nil {
		writeError(w, err)
		return
	}
	var req setSecretReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	secret, err := game.ParseCode(req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := s.lobby.SetSecret(r.Context(), nick, opponent, secret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMatchStatus(w http.ResponseWriter, r *http.Request) {
	nick, err := requiredQuery(r, "nickname")
	if err != nil {
		writeError(w, err)
		return
	}
	m, err := s.lobby.MatchFor(nick)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
