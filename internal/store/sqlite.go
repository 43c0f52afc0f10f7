// internal/store/sqlite.go
//
// SQLite-backed implementation of the Store interface.
// Responsibilities:
//   - Opening the SQLite database with safe defaults (WAL, busy timeout, foreign keys).
//   - Applying embedded migrations (idempotent, recorded in _migrations).
//   - Persisting games as one row each; secret and history are JSON columns.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/hyacinthwings/mastermind/assets"
	"github.com/hyacinthwings/mastermind/internal/game"
)

type sqliteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes read-modify-write in Update
}

/**
 * OpenSQLite opens (and creates if missing) a SQLite database file and
 * applies the embedded migrations.
 *
 * - Ensures parent directory exists for relative DSNs (e.g. ./data/games.db).
 * - Configures busy timeout and WAL journaling mode.
 */
func OpenSQLite(dsn string) (Store, *sql.DB, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("set pragmas: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return &sqliteStore{db: db}, db, nil
}

/**
 * migrate applies embedded SQL migrations.
 *
 * - Uses a _migrations table to track applied files.
 * - Each script runs inside its own transaction.
 */
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}
	migrations, err := assets.Migrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	for _, m := range migrations {
		var done int
		err := db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, m.Name).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", m.Name).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.Name, err)
		}
		log.Info().Str("migration", m.Name).Msg("applied")
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *sqliteStore) Save(ctx context.Context, g *game.Game) error {
	return saveGame(ctx, s.db, g)
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*game.Game, error) {
	return loadGame(ctx, s.db, id)
}

func (s *sqliteStore) Update(ctx context.Context, id string, fn func(g *game.Game) error) (*game.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	g, err := loadGame(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	if err := saveGame(ctx, tx, g); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id=?`, id)
	return err
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM games`).Scan(&n)
	return n, err
}

func saveGame(ctx context.Context, q querier, g *game.Game) error {
	secret, err := json.Marshal(g.Secret)
	if err != nil {
		return err
	}
	history, err := json.Marshal(g.History)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = q.ExecContext(ctx, `
        INSERT INTO games (id, secret, slot_count, max_attempts, history, game_over, won, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            secret=excluded.secret,
            history=excluded.history,
            game_over=excluded.game_over,
            won=excluded.won,
            updated_at=excluded.updated_at`,
		g.ID, string(secret), g.SlotCount, g.MaxAttempts, string(history),
		g.GameOver, g.Won, g.CreatedAt.UTC().Format(time.RFC3339Nano), now,
	)
	return err
}

func loadGame(ctx context.Context, q querier, id string) (*game.Game, error) {
	var (
		g               game.Game
		secret, history string
		created         string
	)
	err := q.QueryRowContext(ctx, `
        SELECT id, secret, slot_count, max_attempts, history, game_over, won, created_at
        FROM games WHERE id=?`, id,
	).Scan(&g.ID, &secret, &g.SlotCount, &g.MaxAttempts, &history, &g.GameOver, &g.Won, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(secret), &g.Secret); err != nil {
		return nil, fmt.Errorf("decode secret of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(history), &g.History); err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", id, err)
	}
	if g.History == nil {
		g.History = []game.Attempt{}
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &g, nil
}
