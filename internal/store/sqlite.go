package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"domovik/internal/models"
	"domovik/internal/syncerr"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteStore persists all three collections in a single SQLite file.
type SQLiteStore struct {
	path   string
	logger *zerolog.Logger

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string, logger *zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{path: path, logger: logger}
}

// Open creates the database file and schema. Idempotent: repeated calls after
// a successful open are no-ops.
func (s *SQLiteStore) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return syncerr.New(syncerr.KindStorageUnavailable, "store.Open", fmt.Errorf("create database directory: %w", err))
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return syncerr.New(syncerr.KindStorageUnavailable, "store.Open", fmt.Errorf("open database: %w", err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return syncerr.New(syncerr.KindStorageUnavailable, "store.Open", fmt.Errorf("connect to database: %w", err))
	}

	if err := createTables(db); err != nil {
		db.Close()
		return syncerr.New(syncerr.KindStorageUnavailable, "store.Open", err)
	}

	s.db = db
	s.logger.Info().Str("path", s.path).Msg("Локальное хранилище инициализировано")
	return nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id TEXT PRIMARY KEY,
            entity_type TEXT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            enqueued_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS cache_entries (
            key TEXT PRIMARY KEY,
            value BLOB NOT NULL,
            cached_at DATETIME NOT NULL,
            ttl_ms INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS kv (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity_type)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_enqueued ON sync_queue(enqueued_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, syncerr.New(syncerr.KindStorageUnavailable, "store", errors.New("store is not open"))
	}
	return s.db, nil
}

func (s *SQLiteStore) InsertMutation(ctx context.Context, m *models.PendingMutation) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	query := `INSERT INTO sync_queue (id, entity_type, payload, status, retry_count, last_error, enqueued_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		m.ID,
		m.EntityType,
		m.Payload,
		m.Status,
		m.RetryCount,
		m.LastError,
		m.EnqueuedAt,
		m.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mutation: %w", err)
	}
	return nil
}

const mutationColumns = `id, entity_type, payload, status, retry_count, last_error, enqueued_at, processed_at, next_retry_at`

// PendingMutations returns mutations due for replay, oldest first. Entries in
// a backoff window (next_retry_at in the future) are skipped.
func (s *SQLiteStore) PendingMutations(ctx context.Context, entityType string, limit int) ([]models.PendingMutation, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	// LIMIT -1 в SQLite означает "без ограничения"
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT ` + mutationColumns + `
              FROM sync_queue
              WHERE entity_type = ? AND status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY enqueued_at ASC, rowid ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, entityType, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending mutations: %w", err)
	}
	defer rows.Close()

	return scanMutations(rows)
}

func (s *SQLiteStore) DeleteMutation(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete mutation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMutationStatus(ctx context.Context, id string, status, errMsg string, nextRetryAt *time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	var query string
	var args []interface{}
	now := time.Now()

	switch status {
	case models.MutationRetry:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	case models.MutationCompleted, models.MutationFailed:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, &now, id}
	default:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update mutation status: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailedMutations(ctx context.Context) ([]models.PendingMutation, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + mutationColumns + `
              FROM sync_queue WHERE status = 'failed' ORDER BY enqueued_at DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed mutations: %w", err)
	}
	defer rows.Close()

	return scanMutations(rows)
}

func (s *SQLiteStore) CountPendingByEntity(ctx context.Context) (models.PendingSummary, error) {
	var summary models.PendingSummary

	db, err := s.conn()
	if err != nil {
		return summary, err
	}

	query := `SELECT entity_type, COUNT(*) FROM sync_queue
              WHERE status IN ('pending', 'retry', 'syncing')
              GROUP BY entity_type`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return summary, fmt.Errorf("failed to count pending mutations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityType string
		var count int
		if err := rows.Scan(&entityType, &count); err != nil {
			return summary, fmt.Errorf("failed to scan pending count: %w", err)
		}
		summary.Set(entityType, count)
	}
	return summary, rows.Err()
}

func scanMutations(rows *sql.Rows) ([]models.PendingMutation, error) {
	var mutations []models.PendingMutation
	for rows.Next() {
		var m models.PendingMutation
		err := rows.Scan(
			&m.ID, &m.EntityType, &m.Payload, &m.Status, &m.RetryCount, &m.LastError, &m.EnqueuedAt, &m.ProcessedAt, &m.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mutation: %w", err)
		}
		mutations = append(mutations, m)
	}
	return mutations, rows.Err()
}

func (s *SQLiteStore) PutCacheEntry(ctx context.Context, entry models.CacheEntry) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	query := `INSERT INTO cache_entries (key, value, cached_at, ttl_ms)
              VALUES (?, ?, ?, ?)
              ON CONFLICT(key) DO UPDATE SET
                  value = excluded.value,
                  cached_at = excluded.cached_at,
                  ttl_ms = excluded.ttl_ms`
	_, err = db.ExecContext(ctx, query, entry.Key, []byte(entry.Value), entry.CachedAt, entry.TTL.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var entry models.CacheEntry
	var value []byte
	var ttlMs int64
	row := db.QueryRowContext(ctx, `SELECT key, value, cached_at, ttl_ms FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&entry.Key, &value, &entry.CachedAt, &ttlMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	entry.Value = value
	entry.TTL = time.Duration(ttlMs) * time.Millisecond
	return &entry, nil
}

func (s *SQLiteStore) DeleteCacheEntry(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetValue(ctx context.Context, key, value string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	query := `INSERT INTO kv (key, value) VALUES (?, ?)
              ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	db, err := s.conn()
	if err != nil {
		return "", false, err
	}

	var value string
	row := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get value: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) DeleteValue(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
