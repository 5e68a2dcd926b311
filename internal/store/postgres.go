// internal/store/postgres.go
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-commit-tracker/internal/model"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var mappingColumns = []string{"channel_id", "owner", "repo", "branch", "last_commit_sha", "last_checked_at", "linked_at"}

// PostgresStore keeps the mapping set in the channel_mappings table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to dbURL and applies pending migrations.
func OpenPostgres(ctx context.Context, dbURL string, logger *slog.Logger) (*PostgresStore, error) {
	if err := RunMigrations(dbURL); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("store", DriverPostgres)
	logger.Info("Database connection established")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// RunMigrations applies the embedded schema migrations to dbURL.
func RunMigrations(dbURL string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Load reads every mapping row.
func (s *PostgresStore) Load(ctx context.Context) (model.MappingSet, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT channel_id, owner, repo, branch, last_commit_sha, last_checked_at, linked_at
        FROM channel_mappings`)
	if err != nil {
		return model.MappingSet{}, fmt.Errorf("querying channel mappings: %w", err)
	}
	defer rows.Close()

	set := model.MappingSet{}
	for rows.Next() {
		var m model.ChannelMapping
		if err := rows.Scan(&m.ChannelID, &m.Owner, &m.Repo, &m.Branch, &m.LastCommitSHA, &m.LastCheckedAt, &m.LinkedAt); err != nil {
			return model.MappingSet{}, fmt.Errorf("scanning channel mapping: %w", err)
		}
		set[m.ChannelID] = m
	}
	if err := rows.Err(); err != nil {
		return model.MappingSet{}, fmt.Errorf("iterating channel mappings: %w", err)
	}
	return set, nil
}

// Save replaces all rows in one transaction using COPY.
func (s *PostgresStore) Save(ctx context.Context, set model.MappingSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	if _, err := tx.Exec(ctx, `DELETE FROM channel_mappings`); err != nil {
		return fmt.Errorf("clearing channel mappings: %w", err)
	}

	rows := make([][]any, 0, len(set))
	for id, m := range set {
		rows = append(rows, []any{id, m.Owner, m.Repo, m.Branch, m.LastCommitSHA, m.LastCheckedAt, m.LinkedAt})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"channel_mappings"}, mappingColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copying channel mappings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing channel mappings: %w", err)
	}
	s.logger.Debug("Saved channel mappings", "count", len(set))
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
