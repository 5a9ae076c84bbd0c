// AngelaMos | 2026
// testhelper.go

package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/carterperez-dev/gatepass/internal/config"
)

// OpenTestDatabase opens a migrated sqlite database in t.TempDir() and
// closes it when the test ends.
func OpenTestDatabase(t *testing.T) *Database {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gatepass.sqlite")

	db, err := NewDatabase(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		URL:    "file:" + path,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}
