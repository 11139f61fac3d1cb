package queue

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
)

// Migrations are applied in file name order. Migration N (1-based) leaves the
// database at PRAGMA user_version N; shipped files are never edited, only
// appended to.
//
//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrSchemaMismatch reports a database written by a newer mediapost.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func loadMigrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	scripts := make([]string, 0, len(entries))
	for _, entry := range entries {
		body, err := fs.ReadFile(migrationFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		scripts = append(scripts, string(body))
	}
	return scripts, nil
}

// SchemaVersion reports the migration level recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ensureContext(ctx), "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// migrate brings the database up to the newest embedded migration, one
// transaction per step.
func (s *Store) migrate(ctx context.Context) error {
	scripts, err := loadMigrations()
	if err != nil {
		return err
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(scripts) {
		return fmt.Errorf("%w: %s is at version %d but this build knows %d; upgrade mediapost",
			ErrSchemaMismatch, s.path, current, len(scripts))
	}
	for version := current + 1; version <= len(scripts); version++ {
		script := scripts[version-1]
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			// Another process may have migrated since the version was read.
			var applied int
			if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&applied); err != nil {
				return err
			}
			if applied >= version {
				return nil
			}
			if _, err := tx.ExecContext(ctx, script); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
	}
	return nil
}
