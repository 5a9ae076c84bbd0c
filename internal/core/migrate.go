// AngelaMos | 2026
// migrate.go

package core

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/carterperez-dev/gatepass/internal/config"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate applies pending goose migrations. The SQL is kept portable so the
// same files run on PostgreSQL and sqlite.
func Migrate(d *Database) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialectOf(d)); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(d.DB.DB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// SchemaVersion reports the latest applied migration.
func SchemaVersion(d *Database) (int64, error) {
	if err := goose.SetDialect(dialectOf(d)); err != nil {
		return 0, fmt.Errorf("goose set dialect: %w", err)
	}

	version, err := goose.GetDBVersion(d.DB.DB)
	if err != nil {
		return 0, fmt.Errorf("goose version: %w", err)
	}

	return version, nil
}

func dialectOf(d *Database) string {
	if d.Driver == config.DriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}
