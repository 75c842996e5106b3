package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrateUp applies all pending migrations. An empty dir uses the
// migrations compiled into the binary.
func MigrateUp(dsn, dir string) error {
	return runMigrations(dsn, dir, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back all applied migrations.
func MigrateDown(dsn, dir string) error {
	return runMigrations(dsn, dir, func(m *migrate.Migrate) error { return m.Down() })
}

func runMigrations(dsn, dir string, step func(*migrate.Migrate) error) error {
	migrator, err := newMigrator(dsn, dir)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := step(migrator); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migrate failed: %w", err)
	}
	return nil
}

func newMigrator(dsn, dir string) (*migrate.Migrate, error) {
	if strings.TrimSpace(dir) != "" {
		return migrate.New("file://"+dir, dsn)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", source, dsn)
}
