package database

import (
	"fmt"
	"log"
	"strings"

	"github.com/CUknot/roomchat/config"
	"github.com/CUknot/roomchat/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database described by cfg: postgres when a DSN is
// configured, a local SQLite file otherwise.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if cfg.UsesPostgres() {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		log.Println("Database connection established (postgres)")
		return db, nil
	}

	db, err := OpenSQLite(cfg.SQLitePath, gormConfig)
	if err != nil {
		return nil, err
	}
	log.Printf("Database connection established (sqlite: %s)", cfg.SQLitePath)
	return db, nil
}

// OpenSQLite opens a SQLite database with foreign keys enforced. SQLite
// allows a single writer, so the pool is capped at one connection.
func OpenSQLite(path string, gormConfig *gorm.Config) (*gorm.DB, error) {
	if gormConfig == nil {
		gormConfig = &gorm.Config{}
	}
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func sqliteDSN(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "_foreign_keys=on&_busy_timeout=5000"
}

// Migrate automatically migrates the database schema
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Room{}, "Users", &models.Participant{}); err != nil {
		return fmt.Errorf("failed to set up participants table: %w", err)
	}
	if err := db.SetupJoinTable(&models.User{}, "Rooms", &models.Participant{}); err != nil {
		return fmt.Errorf("failed to set up participants table: %w", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Room{},
		&models.Message{},
		&models.Participant{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
