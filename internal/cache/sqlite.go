package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS embeddings (
	cache_key   TEXT PRIMARY KEY,
	vector_json TEXT NOT NULL
)`

// sqliteStore keeps vectors in a single-table SQLite database. The driver is
// selected at build time; see build_cgo.go and build_purego.go.
type sqliteStore struct {
	db *sql.DB
}

func defaultCachePath() (string, error) {
	if override := os.Getenv("EMBX_CACHE_PATH"); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache path: %w", err)
	}
	return filepath.Join(home, ".cache", "embx", "cache.db"), nil
}

func newSQLiteStore(path string) (*sqliteStore, error) {
	if path == "" {
		var err error
		path, err = defaultCachePath()
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// WAL mode keeps concurrent processes sharing one cache file from
	// blocking each other; single-key writes stay atomic.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create embeddings table: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]float64, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT vector_json FROM embeddings WHERE cache_key = ?", key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	var vector []float64
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return vector, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key string, vector []float64) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO embeddings(cache_key, vector_json) VALUES (?, ?)",
		key, string(raw),
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
