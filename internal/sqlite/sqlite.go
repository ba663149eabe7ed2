package sqlite

import (
	"campusgate/internal/storage"
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

type repositorySQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the on-device key-value file.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	const op = "sqlite.Open"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// a single connection keeps writers from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

func NewRepositorySQLite(ctx context.Context, db *sql.DB) (storage.KV, error) {
	r := &repositorySQLite{db: db}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *repositorySQLite) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate kv_store: %w", err)
	}
	return nil
}

const (
	selectQuery = `SELECT value FROM kv_store WHERE key = ?`
	upsertQuery = `INSERT INTO kv_store (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	deleteQuery = `DELETE FROM kv_store WHERE key = ?`
)

func (r *repositorySQLite) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, selectQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

func (r *repositorySQLite) Set(ctx context.Context, key string, value string) error {
	if _, err := r.db.ExecContext(ctx, upsertQuery, key, value); err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

func (r *repositorySQLite) MultiSet(ctx context.Context, pairs []storage.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range pairs {
			if _, err := tx.ExecContext(ctx, upsertQuery, p.Key, p.Value); err != nil {
				return fmt.Errorf("sqlite set %s: %w", p.Key, err)
			}
		}
		return nil
	})
}

func (r *repositorySQLite) MultiRemove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, deleteQuery, k); err != nil {
				return fmt.Errorf("sqlite delete %s: %w", k, err)
			}
		}
		return nil
	})
}

func (r *repositorySQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}
