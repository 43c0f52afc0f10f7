// internal/httpserver/server.go
//
// HTTP server wiring for the Mastermind backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Game service endpoints: mounted under /games.
//   - Lobby endpoints: mounted under /multiplayer.
//   - Push channel: GET /ws, authenticated by the session token from login.
//
// Notes:
//   - Every error body has the shape {"error": CODE, "message": text}; codes
//     come from the apierr table.
//   - The websocket route is registered outside the Timeout middleware since
//     the connection outlives any single request.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyacinthwings/mastermind/internal/apierr"
	"github.com/hyacinthwings/mastermind/internal/game"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/push"
	"github.com/hyacinthwings/mastermind/internal/store"
)

// Config carries the settings the handlers need.
type Config struct {
	ClientOrigin string
	SlotCount    int           // default slot count for new games
	MaxAttempts  int           // attempt cap for new games; 0 = unlimited
	JWTSecret    string        // HS256 key for session tokens
	TokenTTL     time.Duration // session token lifetime
	InviteRate   rate.Limit    // invitations per second per sender
	InviteBurst  int
}

func (c *Config) defaults() {
	if c.ClientOrigin == "" {
		c.ClientOrigin = "http://localhost:5173"
	}
	if c.SlotCount == 0 {
		c.SlotCount = game.DefaultSlotCount
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev_secret_change_me"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.InviteRate == 0 {
		c.InviteRate = rate.Every(2 * time.Second)
	}
	if c.InviteBurst <= 0 {
		c.InviteBurst = 3
	}
}

// Server bundles router, game store, lobby and push hub.
type Server struct {
	r       *chi.Mux
	cfg     Config
	games   store.Store
	lobby   *lobby.Lobby
	hub     *push.Hub
	limiter *senderLimiter
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg Config, games store.Store, lb *lobby.Lobby, hub *push.Hub) *Server {
	cfg.defaults()
	s := &Server{
		r:       chi.NewRouter(),
		cfg:     cfg,
		games:   games,
		lobby:   lb,
		hub:     hub,
		limiter: newSenderLimiter(cfg.InviteRate, cfg.InviteBurst),
	}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(corsFor(cfg.ClientOrigin))

	s.r.Get("/ws", s.handleWebsocket)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Use(jsonContentType)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"service":"mastermind","endpoints":["/health","/games","/multiplayer","/ws"]}`))
		})
		r.Get("/health", s.handleHealth)

		r.Route("/games", s.mountGames)
		r.Route("/multiplayer", s.mountMultiplayer)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		writeJSON(w, http.StatusNotFound, errorBody{Error: apierr.CodeNotFound, Message: "no route for " + r.URL.Path})
	})

	return s
}

type healthResp struct {
	OK      bool `json:"ok"`
	Games   int  `json:"games"`
	Players int  `json:"players"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.games.Count(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("health: counting games")
		writeJSON(w, http.StatusServiceUnavailable, healthResp{})
		return
	}
	writeJSON(w, http.StatusOK, healthResp{OK: true, Games: n, Players: len(s.lobby.Players(""))})
}

// Start serves HTTP on addr until ctx is done, then drains open requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http: shutdown")
		}
	}()
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFor enables CORS for a single origin.
func corsFor(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ------------------------------- helpers -----------------------------------

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// writeError maps err through the apierr table.
func writeError(w http.ResponseWriter, err error) {
	e := apierr.Lookup(err)
	if e.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, e.Status, errorBody{Error: e.Code, Message: err.Error()})
}

// decodeBody decodes an optional JSON body into v. An empty body is allowed.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(apierr.ErrBadRequest, err)
	}
	return nil
}
