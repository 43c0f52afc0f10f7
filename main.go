// main.go
//
// Mastermind game and lobby service.
// Startup:
//   - Loads .env (development) and sets the log level.
//   - Opens the game store: sqlite when DB_PATH is set, in-memory otherwise.
//   - Starts the push hub and the lobby sweeper, then serves HTTP on PORT.

package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/httpserver"
	"github.com/hyacinthwings/mastermind/internal/lobby"
	"github.com/hyacinthwings/mastermind/internal/push"
	"github.com/hyacinthwings/mastermind/internal/store"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	games := store.NewMemoryStore()
	if dsn := getEnv("DB_PATH", ""); dsn != "" {
		st, db, err := store.OpenSQLite(dsn)
		if err != nil {
			log.Fatal().Err(err).Str("dsn", dsn).Msg("failed to open game store")
		}
		defer db.Close()
		games = st
	}

	slotCount := getEnvInt("SLOT_COUNT", 4)
	maxAttempts := getEnvInt("MAX_ATTEMPTS", 10)

	hub := push.NewHub()
	go hub.Run(ctx)

	lb := lobby.New(lobby.Config{
		InviteTTL:   getEnvDuration("INVITE_TTL", 5*time.Minute),
		IdleTimeout: getEnvDuration("PLAYER_IDLE_TIMEOUT", 10*time.Minute),
		RemoveGame:  httpserver.NewGameRemover(games),
	}, hub, httpserver.NewGameCreator(games, slotCount, maxAttempts))
	go lb.RunSweeper(ctx, getEnvDuration("SWEEP_INTERVAL", 2*time.Minute))

	srv := httpserver.New(httpserver.Config{
		ClientOrigin: getEnv("CLIENT_ORIGIN", ""),
		SlotCount:    slotCount,
		MaxAttempts:  maxAttempts,
		JWTSecret:    getEnv("JWT_SECRET", ""),
	}, games, lb, hub)

	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Bool("sqlite", getEnv("DB_PATH", "") != "").Msg("starting mastermind server")
	if err := srv.Start(ctx, ":"+port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	v, err := strconv.Atoi(getEnv(k, ""))
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(k, ""))
	if err != nil {
		return def
	}
	return d
}
