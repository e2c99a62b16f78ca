package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/johejo/golang-migrate-extra/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationError wraps a failed schema migration step.
type MigrationError struct {
	Err         error
	Description string
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("sqlite migration: %s: %v", e.Description, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// migration brings the schema of client up to date.
//
// The migrate instance is not closed: closing it closes client, which for
// ":memory:" would drop the database.
func migration(client *sql.DB, table string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return &MigrationError{Err: err, Description: "failed to create migration source"}
	}

	driver, err := sqlite3.WithInstance(client, &sqlite3.Config{
		MigrationsTable: table,
	})
	if err != nil {
		return &MigrationError{Err: err, Description: "failed to create migration driver"}
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return &MigrationError{Err: err, Description: "failed to create migration instance"}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &MigrationError{Err: err, Description: "failed to apply migration"}
	}

	return nil
}
