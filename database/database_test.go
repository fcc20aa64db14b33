package database

import (
	"testing"

	"github.com/CUknot/roomchat/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:chat.db?_foreign_keys=on&_busy_timeout=5000", sqliteDSN("chat.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on&_busy_timeout=5000", sqliteDSN("file:x?mode=memory"))
}

func TestMigrateCreatesTables(t *testing.T) {
	db, err := OpenSQLite("file:migrate_test?mode=memory&cache=shared", &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, Migrate(db))

	for _, model := range []any{&models.User{}, &models.Category{}, &models.Room{}, &models.Message{}, &models.Participant{}} {
		assert.True(t, db.Migrator().HasTable(model), "missing table for %T", model)
	}
}
