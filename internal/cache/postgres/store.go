// Package postgres provides a Postgres-backed snapshot store for the pool
// cache, for fleets that share warm state across restarts and hosts.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolscope/internal/cache"
)

// Store persists cache snapshots in two tables: one row per entry plus a
// single metadata row carrying counters and the snapshot timestamp.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pool_cache_entries (
			cache_key  text PRIMARY KEY,
			entry      jsonb NOT NULL,
			expires_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS pool_cache_meta (
			id         int PRIMARY KEY,
			stats      jsonb NOT NULL,
			taken_at   timestamptz NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

// Load reads all unexpired entries plus the stored counters.
func (s *Store) Load(ctx context.Context) (*cache.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cache_key, entry FROM pool_cache_entries WHERE expires_at > now()
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot entries: %w", err)
	}
	defer rows.Close()

	snap := &cache.Snapshot{Entries: make(map[string]cache.Entry)}
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan snapshot entry: %w", err)
		}
		var entry cache.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("parse snapshot entry %s: %w", key, err)
		}
		snap.Entries[key] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot entries: %w", err)
	}
	if len(snap.Entries) == 0 {
		return nil, nil
	}

	var statsRaw []byte
	err = s.pool.QueryRow(ctx, `SELECT stats, taken_at FROM pool_cache_meta WHERE id = 1`).
		Scan(&statsRaw, &snap.Timestamp)
	if err == nil {
		if err := json.Unmarshal(statsRaw, &snap.Stats); err != nil {
			return nil, fmt.Errorf("parse snapshot stats: %w", err)
		}
	} else if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("query snapshot meta: %w", err)
	}

	return snap, nil
}

// Save replaces the stored snapshot with the given one in a single
// transaction.
func (s *Store) Save(ctx context.Context, snap *cache.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE pool_cache_entries`); err != nil {
		return fmt.Errorf("truncate snapshot entries: %w", err)
	}

	batch := &pgx.Batch{}
	for key, entry := range snap.Entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal snapshot entry %s: %w", key, err)
		}
		batch.Queue(`
			INSERT INTO pool_cache_entries (cache_key, entry, expires_at, updated_at)
			VALUES ($1, $2, $3, now())
		`, key, raw, entry.StoredAt.Add(entry.TTL).UTC())
	}

	statsRaw, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("marshal snapshot stats: %w", err)
	}
	batch.Queue(`
		INSERT INTO pool_cache_meta (id, stats, taken_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET stats = EXCLUDED.stats, taken_at = EXCLUDED.taken_at
	`, statsRaw, snap.Timestamp.UTC())

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close snapshot batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

var _ cache.SnapshotStore = (*Store)(nil)

// Touch is a connectivity probe used at startup.
func (s *Store) Touch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
