// Package store keeps the triage and rate refresh history in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"calcbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.TriageRecorder and domain.RefreshRecorder.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) RecordTriage(ctx context.Context, rec domain.TriageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triage_log (message_id, channel, chat_id, content, expression, verdict, result, forced, replied, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MessageID, rec.Channel, rec.ChatID, rec.Content, rec.Expression,
		rec.Verdict, rec.Result, rec.Forced, rec.Replied, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert triage record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordRefresh(ctx context.Context, rec domain.RefreshRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_refreshes (installed, entries, fiat_ok, crypto_ok, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Installed, rec.Entries, rec.FiatOK, rec.CryptoOK, rec.Duration.Milliseconds(), rec.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert refresh record: %w", err)
	}
	return nil
}

// RecentTriage returns the newest triage decisions first.
func (s *SQLiteStore) RecentTriage(ctx context.Context, limit int) ([]domain.TriageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, channel, chat_id, content, expression, verdict, result, forced, replied, created_at
		 FROM triage_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.TriageRecord
	for rows.Next() {
		var r domain.TriageRecord
		if err := rows.Scan(&r.MessageID, &r.Channel, &r.ChatID, &r.Content, &r.Expression,
			&r.Verdict, &r.Result, &r.Forced, &r.Replied, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// VerdictCounts tallies triage decisions made since the given time.
func (s *SQLiteStore) VerdictCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT verdict, COUNT(*) FROM triage_log WHERE created_at >= ? GROUP BY verdict`, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, err
		}
		counts[verdict] = n
	}
	return counts, rows.Err()
}

// LastRefresh returns the newest refresh attempt, or nil when none was recorded.
func (s *SQLiteStore) LastRefresh(ctx context.Context) (*domain.RefreshRecord, error) {
	var r domain.RefreshRecord
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT installed, entries, fiat_ok, crypto_ok, duration_ms, started_at
		 FROM rate_refreshes ORDER BY id DESC LIMIT 1`,
	).Scan(&r.Installed, &r.Entries, &r.FiatOK, &r.CryptoOK, &ms, &r.StartedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Duration = time.Duration(ms) * time.Millisecond
	return &r, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
