// cmd/mastermind/main.go
//
// Terminal client for the Mastermind service.
// Wiring:
//   - apiclient.Client talks to the game and lobby HTTP API.
//   - match.Orchestrator drives the current match.
//   - matchmaking.Client handles the lobby and hands paired matches to the
//     orchestrator over the push channel.
//
// The screen is a pure read of orchestrator snapshots and lobby events;
// commands only ever go through the two actors.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/internal/match"
	"github.com/hyacinthwings/mastermind/internal/matchmaking"
)

var _ matchmaking.Pairer = (*match.Orchestrator)(nil)

func main() {
	_ = godotenv.Load()
	server := flag.String("server", getEnv("MASTERMIND_SERVER", "http://localhost:5175"), "service base URL")
	slots := flag.Int("slots", 4, "colors per code")
	level := flag.String("log-level", getEnv("LOG_LEVEL", "warn"), "log level")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if lvl, err := zerolog.ParseLevel(*level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := newTerminal(*server, *slots, os.Stdout)
	t.start(ctx)

	fmt.Fprintln(t.out, "mastermind: type 'help' for commands")
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			t.shutdown()
			return
		case line, ok := <-lines:
			if !ok {
				t.shutdown()
				return
			}
			if quit := t.exec(ctx, line); quit {
				t.shutdown()
				return
			}
		}
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
