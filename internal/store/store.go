// Package store persists the IDs of inbound messages already handled, so
// transport redeliveries are not answered twice.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore records seen message IDs in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath. Entries
// older than ttl are treated as unseen and removed by Purge.
func NewSQLiteStore(dbPath string, ttl time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl, now: time.Now, logger: logger}, nil
}

// MarkSeen records the message and reports whether it was not seen before
// (or its previous record had expired).
func (s *SQLiteStore) MarkSeen(ctx context.Context, channel, id string) (bool, error) {
	now := s.now()
	cutoff := int64(0)
	if s.ttl > 0 {
		cutoff = now.Add(-s.ttl).Unix()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_messages (channel, message_id, seen_at) VALUES (?, ?, ?)
		ON CONFLICT(channel, message_id) DO UPDATE SET seen_at = excluded.seen_at
		WHERE seen_messages.seen_at < ?`,
		channel, id, now.Unix(), cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark seen rows: %w", err)
	}
	return n > 0, nil
}

// Purge deletes expired entries and returns how many were removed.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM seen_messages WHERE seen_at < ?", s.now().Add(-s.ttl).Unix())
	if err != nil {
		return 0, fmt.Errorf("purge seen messages: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Debug("purged seen messages", "count", n)
	}
	return n, nil
}

// RunPurge calls Purge every interval until ctx is done.
func (s *SQLiteStore) RunPurge(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Purge(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("dedup purge failed", "error", err)
			}
		}
	}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
