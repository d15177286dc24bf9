package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/okian/rally/pkg/logger"
	"github.com/okian/rally/pkg/metrics"
)

const playersSchema = `
CREATE TABLE IF NOT EXISTS players (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	surname TEXT NOT NULL,
	rating TEXT NOT NULL DEFAULT 'E',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore persists players in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	ids    *idGenerator
	logger logger.Logger
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions("sqlitestore", opts)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, playersSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init players schema: %w", err)
	}

	s := &SQLiteStore{db: db, ids: newIDGenerator(o.rng), logger: o.logger}
	metrics.UpdatePlayersTotal(s.Count(ctx))
	return s, nil
}

// ListPlayers implements Store.
func (s *SQLiteStore) ListPlayers(ctx context.Context) ([]Player, error) {
	defer observe("list", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT id, first_name, surname, rating FROM players ORDER BY surname, first_name, id`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.FirstName, &p.Surname, &p.Rating); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPlayer implements Store.
func (s *SQLiteStore) GetPlayer(ctx context.Context, id string) (Player, error) {
	defer observe("get", time.Now())
	var p Player
	err := s.db.QueryRowContext(ctx, `SELECT id, first_name, surname, rating FROM players WHERE id = ?`, id).
		Scan(&p.ID, &p.FirstName, &p.Surname, &p.Rating)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Player{}, fmt.Errorf("get player %s: %w", id, err)
	}
	return p, nil
}

// RegisterPlayer implements Store. A primary key conflict regenerates the id.
func (s *SQLiteStore) RegisterPlayer(ctx context.Context, firstName, surname, rating string) (Player, error) {
	defer observe("register", time.Now())
	p, err := normalizeNew(firstName, surname, rating)
	if err != nil {
		return Player{}, err
	}
	base := s.ids.Base(p.FirstName, p.Surname)

	for i := 0; i < maxIDAttempts; i++ {
		p.ID = s.ids.Next(base)
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO players (id, first_name, surname, rating) VALUES (?, ?, ?, ?)`,
			p.ID, p.FirstName, p.Surname, p.Rating)
		if isConstraint(err) {
			continue
		}
		if err != nil {
			return Player{}, fmt.Errorf("insert player: %w", err)
		}
		metrics.UpdatePlayersTotal(s.Count(ctx))
		s.logger.Debug(ctx, "player registered", logger.String("id", p.ID))
		return p, nil
	}
	return Player{}, fmt.Errorf("%w: no free id for %s", ErrDuplicate, base)
}

// UpdatePlayer implements Store.
func (s *SQLiteStore) UpdatePlayer(ctx context.Context, id string, patch Patch) (Player, error) {
	defer observe("update", time.Now())
	if patch.Empty() {
		return Player{}, fmt.Errorf("%w: nothing to update", ErrInvalidPlayer)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Player{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var p Player
	err = tx.QueryRowContext(ctx, `SELECT id, first_name, surname, rating FROM players WHERE id = ?`, id).
		Scan(&p.ID, &p.FirstName, &p.Surname, &p.Rating)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Player{}, fmt.Errorf("load player %s: %w", id, err)
	}

	if p, err = apply(p, patch); err != nil {
		return Player{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE players SET first_name = ?, surname = ?, rating = ? WHERE id = ?`,
		p.FirstName, p.Surname, p.Rating, id); err != nil {
		return Player{}, fmt.Errorf("update player %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Player{}, fmt.Errorf("commit update: %w", err)
	}
	return p, nil
}

// DeletePlayer implements Store.
func (s *SQLiteStore) DeletePlayer(ctx context.Context, id string) error {
	defer observe("delete", time.Now())
	res, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete player %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.UpdatePlayersTotal(s.Count(ctx))
	return nil
}

// Count implements Store. Errors count as zero and are logged.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&n); err != nil {
		s.logger.Warn(ctx, "count players failed", logger.Error(err))
		return 0
	}
	return n
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
