// Package postgres backs the Remote Collection Store with a single JSONB
// documents table, keyed by (collection, id).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"royalbakes/backend/internal/remote"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection text NOT NULL,
			id         text NOT NULL,
			data       jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) QueryAll(ctx context.Context, collection string) ([]remote.Record, error) {
	return s.Query(ctx, collection, remote.Filter{})
}

func (s *Store) Query(ctx context.Context, collection string, filter remote.Filter) ([]remote.Record, error) {
	query := `
		SELECT id, data, updated_at
		FROM documents
		WHERE collection = $1
	`
	args := []any{collection}
	if !filter.Empty() {
		if filter.Null {
			query += ` AND data->>$2 IS NULL`
		} else {
			query += ` AND data->>$2 IS NOT NULL`
		}
		args = append(args, filter.Field)
	}
	query += ` ORDER BY updated_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	records := make([]remote.Record, 0, 64)
	for rows.Next() {
		var rec remote.Record
		if err := rows.Scan(&rec.ID, &rec.Data, &rec.UpdatedAt); err != nil {
			return nil, unavailable(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}

	return records, nil
}

func (s *Store) GetSingleton(ctx context.Context, collection string, filter remote.Filter) (*remote.Record, error) {
	records, err := s.Query(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, remote.ErrNotFound
	}
	return &records[0], nil
}

func (s *Store) Upsert(ctx context.Context, collection string, rec remote.Record) (*remote.Record, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()
		RETURNING updated_at
	`, collection, rec.ID, rec.Data).Scan(&rec.UpdatedAt)
	if err != nil {
		return nil, unavailable(err)
	}
	return &rec, nil
}

func (s *Store) DeleteByID(ctx context.Context, collection string, id string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
}
