// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import the SQLite3 driver

	"github-commit-tracker/internal/model"
)

const createSQLiteTable = `
CREATE TABLE IF NOT EXISTS channel_mappings (
    channel_id      TEXT PRIMARY KEY,
    owner           TEXT NOT NULL,
    repo            TEXT NOT NULL,
    branch          TEXT NOT NULL DEFAULT '',
    last_commit_sha TEXT,
    last_checked_at TEXT,
    linked_at       TEXT
);`

// SQLiteStore keeps the mapping set in a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at dbPath and ensures the schema exists.
func OpenSQLite(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createSQLiteTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create channel_mappings table: %w", err)
	}

	logger = logger.With("store", DriverSQLite, "path", dbPath)
	logger.Info("Connected to mapping database")
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Load reads every mapping row.
func (s *SQLiteStore) Load(ctx context.Context) (model.MappingSet, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT channel_id, owner, repo, branch, last_commit_sha, last_checked_at, linked_at
        FROM channel_mappings`)
	if err != nil {
		return model.MappingSet{}, fmt.Errorf("querying channel mappings: %w", err)
	}
	defer rows.Close()

	set := model.MappingSet{}
	for rows.Next() {
		var (
			m                  model.ChannelMapping
			sha, checked, link sql.NullString
		)
		if err := rows.Scan(&m.ChannelID, &m.Owner, &m.Repo, &m.Branch, &sha, &checked, &link); err != nil {
			return model.MappingSet{}, fmt.Errorf("scanning channel mapping: %w", err)
		}
		if sha.Valid {
			m.LastCommitSHA = model.StringPtr(sha.String)
		}
		if m.LastCheckedAt, err = parseNullTime(checked); err != nil {
			return model.MappingSet{}, err
		}
		if m.LinkedAt, err = parseNullTime(link); err != nil {
			return model.MappingSet{}, err
		}
		set[m.ChannelID] = m
	}
	if err := rows.Err(); err != nil {
		return model.MappingSet{}, fmt.Errorf("iterating channel mappings: %w", err)
	}
	return set, nil
}

// Save replaces all rows in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, set model.MappingSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() // Rollback is a no-op if the transaction is already committed.

	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_mappings`); err != nil {
		return fmt.Errorf("clearing channel mappings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO channel_mappings (channel_id, owner, repo, branch, last_commit_sha, last_checked_at, linked_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for id, m := range set {
		var sha sql.NullString
		if m.LastCommitSHA != nil {
			sha = sql.NullString{String: *m.LastCommitSHA, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, m.Owner, m.Repo, m.Branch, sha, formatNullTime(m.LastCheckedAt), formatNullTime(m.LinkedAt)); err != nil {
			return fmt.Errorf("inserting channel mapping %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing channel mappings: %w", err)
	}
	s.logger.Debug("Saved channel mappings", "count", len(set))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing stored timestamp %q: %w", s.String, err)
	}
	return &t, nil
}
