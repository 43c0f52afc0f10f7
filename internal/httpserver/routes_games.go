// internal/httpserver/routes_games.go
//
// HTTP routes of the game service.
//   - POST /games                 → create a game (random or given secret)
//   - GET  /games/colors          → the palette
//   - GET  /games/{id}            → current state
//   - POST /games/{id}/guesses    → submit a guess
//   - GET  /games/{id}/solution   → reveal the secret (no state change)
//   - GET  /games/{id}/suggest    → next consistent guess, 204 when none
//   - POST /games/{id}/reset      → new secret, empty history
//
// Guesses against a game that belongs to a head-to-head match are relayed
// to the lobby so the secret's owner sees the move.

package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/store"
)

func (s *Server) mountGames(r chi.Router) {
	r.Post("/", s.handleCreateGame)
	r.Get("/colors", s.handleColors)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetGame)
		r.Post("/guesses", s.handleGuess)
		r.Get("/solution", s.handleSolution)
		r.Get("/suggest", s.handleSuggest)
		r.Post("/reset", s.handleReset)
	})
}

// NewGameCreator returns the lobby hook that creates match games holding a
// player's secret.
func NewGameCreator(st store.Store, slotCount, maxAttempts int) lobby.GameCreator {
	return func(ctx context.Context, secret game.Code) (string, error) {
		g, err := game.New(slotCount, maxAttempts, secret)
		if err != nil {
			return "", err
		}
		if err := st.Save(ctx, g); err != nil {
			return "", err
		}
		return g.ID, nil
	}
}

// NewGameRemover returns the lobby hook that deletes the games of swept
// matches.
func NewGameRemover(st store.Store) lobby.GameRemover {
	return st.Delete
}

type createGameReq struct {
	SlotCount int      `json:"slotCount"`
	Secret    []string `json:"secret"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SlotCount == 0 {
		req.SlotCount = s.cfg.SlotCount
	}
	var secret game.Code
	if req.Secret != nil {
		var err error
		if secret, err = game.ParseCode(req.Secret); err != nil {
			writeError(w, err)
			return
		}
	}
	g, err := game.New(req.SlotCount, s.cfg.MaxAttempts, secret)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.games.Save(r.Context(), g); err != nil {
		writeError(w, err)
		return
	}
	log.Debug().Str("gameId", g.ID).Int("slotCount", g.SlotCount).Msg("game created")
	writeJSON(w, http.StatusCreated, g.State())
}

func (s *Server) handleColors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, game.Palette)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.games.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.State())
}

type guessReq struct {
	Colors []string `json:"colors"`
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	guess, err := game.ParseCode(req.Colors)
	if err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	g, err := s.games.Update(r.Context(), id, func(g *game.Game) error {
		_, err := g.ApplyGuess(guess)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	st := g.State()
	s.lobby.RecordMove(id, st)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSolution(w http.ResponseWriter, r *http.Request) {
	g, err := s.games.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Solution())
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	g, err := s.games.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	next := game.Suggest(g.History, g.SlotCount)
	if next == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	g, err := s.games.Update(r.Context(), chi.URLParam(r, "id"), func(g *game.Game) error {
		return g.Reset()
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.State())
}
