// Package cache implements the rain-gauge/battery cached-counter side of
// C4 (spec.md §4.4's getCachedInt/cacheInt family) on local SQLite via
// modernc.org/sqlite, the pure-Go driver the teacher's SQLite config
// provider used for its CRUD store. That provider is dropped (see
// DESIGN.md); this package repurposes the same driver for a narrower job:
// a process-local fallback cache so a decoder's rain-counter state
// survives a restart and a brief window where Postgres is unreachable at
// boot, per SPEC_FULL.md §2.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
	_ "modernc.org/sqlite"
)

// Store is a local, file-backed CachedCounter table. It satisfies
// decode.CounterStore directly and store.Facade's four cache methods,
// so internal/store.FallbackCache (see fallback.go) can wrap any primary
// Facade with one of these as a local fallback cache.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS cached_counters (
	station TEXT NOT NULL,
	key TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	int_value INTEGER,
	float_value REAL,
	PRIMARY KEY (station, key)
)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) GetCachedInt(ctx context.Context, station model.StationID, key string) (time.Time, int64, bool, error) {
	var updatedAtUnix int64
	var value sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at, int_value FROM cached_counters WHERE station = ? AND key = ?`,
		string(station), key).Scan(&updatedAtUnix, &value)
	if err == sql.ErrNoRows || !value.Valid {
		return time.Time{}, 0, false, nil
	}
	if err != nil {
		return time.Time{}, 0, false, err
	}
	return time.Unix(updatedAtUnix, 0).UTC(), value.Int64, true, nil
}

func (s *Store) CacheInt(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cached_counters (station, key, updated_at, int_value, float_value)
VALUES (?, ?, ?, ?, NULL)
ON CONFLICT(station, key) DO UPDATE SET updated_at = excluded.updated_at, int_value = excluded.int_value, float_value = NULL`,
		string(station), key, updatedAt.Unix(), value)
	return err
}

func (s *Store) GetCachedFloat(ctx context.Context, station model.StationID, key string) (time.Time, float64, bool, error) {
	var updatedAtUnix int64
	var value sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at, float_value FROM cached_counters WHERE station = ? AND key = ?`,
		string(station), key).Scan(&updatedAtUnix, &value)
	if err == sql.ErrNoRows || !value.Valid {
		return time.Time{}, 0, false, nil
	}
	if err != nil {
		return time.Time{}, 0, false, err
	}
	return time.Unix(updatedAtUnix, 0).UTC(), value.Float64, true, nil
}

func (s *Store) CacheFloat(ctx context.Context, station model.StationID, key string, updatedAt time.Time, value float64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cached_counters (station, key, updated_at, int_value, float_value)
VALUES (?, ?, ?, NULL, ?)
ON CONFLICT(station, key) DO UPDATE SET updated_at = excluded.updated_at, float_value = excluded.float_value, int_value = NULL`,
		string(station), key, updatedAt.Unix(), value)
	return err
}
