// Package dbtest provides migrated in-memory databases for tests.
package dbtest

import (
	"testing"

	"github.com/CUknot/roomchat/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a freshly migrated in-memory SQLite database that is closed
// when the test finishes.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	path := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := database.OpenSQLite(path, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}
