package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration is a single schema change.
type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations is ordered by version. Append only.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema (applied via schemaSQL)",
		apply:       func(tx *sql.Tx) error { return nil },
	},
	{
		version:     2,
		description: "store rendered error overlays per page",
		apply: func(tx *sql.Tx) error {
			return addColumn(tx, "ALTER TABLE pages ADD COLUMN image_with_errors_path TEXT")
		},
	},
	{
		version:     3,
		description: "record the model that produced a review",
		apply: func(tx *sql.Tx) error {
			return addColumn(tx, "ALTER TABLE gost_reviews ADD COLUMN model TEXT")
		},
	},
	{
		version:     4,
		description: "keep per-rule results with each check run",
		apply: func(tx *sql.Tx) error {
			return addColumn(tx, "ALTER TABLE check_runs ADD COLUMN results TEXT")
		},
	},
}

// addColumn tolerates columns that already exist, which happens when a
// database was created by a build whose base schema already had them.
func addColumn(tx *sql.Tx, stmt string) error {
	if _, err := tx.Exec(stmt); err != nil {
		slog.Debug("store: column may already exist", "sql", stmt, "error", err)
	}
	return nil
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		slog.Info("store: applying migration", "version", m.version, "description", m.description)

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if err := m.apply(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.description); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion reports the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}
