package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Port string

	// Postgres is used when DATABASE_URL or DB_HOST is set, SQLite otherwise.
	DatabaseURL string
	SQLitePath  string

	JWTSecret      string
	AccessTokenTTL time.Duration
	TokenTTL       time.Duration

	MaxMessagesAvailable int
	RoomsPerPage         int
	CategoriesAtSidebar  int
	BroadcastTimeout     time.Duration

	Mail MailConfig

	RedisURL        string
	RateLimitBurst  int
	RateLimitWindow time.Duration

	ShutdownTimeout time.Duration

	Languages map[string]string
}

// MailConfig holds SMTP settings. An empty Server disables delivery.
type MailConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Workers  int
}

// Default returns the configuration used when no environment is present.
func Default() *Config {
	return &Config{
		Port:                 "8080",
		SQLitePath:           "roomchat.db",
		JWTSecret:            "your-secret-key",
		AccessTokenTTL:       7 * 24 * time.Hour,
		TokenTTL:             time.Hour,
		MaxMessagesAvailable: 20,
		RoomsPerPage:         5,
		CategoriesAtSidebar:  5,
		BroadcastTimeout:     5 * time.Second,
		Mail: MailConfig{
			Port:    25,
			Workers: 2,
		},
		RateLimitBurst:  5,
		RateLimitWindow: 3 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Languages: map[string]string{
			"en": "ENG",
			"ru": "РУС",
			"uk": "УКР",
		},
	}
}

// Load loads configuration from a .env file (if any) and the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := Default()

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	cfg.DatabaseURL = postgresDSN()
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
	cfg.AccessTokenTTL = durationEnv("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.TokenTTL = durationEnv("TOKEN_TTL", cfg.TokenTTL)

	cfg.MaxMessagesAvailable = intEnv("MAX_MESSAGES_AVAILABLE", cfg.MaxMessagesAvailable, 0)
	cfg.RoomsPerPage = intEnv("ROOMS_PER_PAGE", cfg.RoomsPerPage, 1)
	cfg.CategoriesAtSidebar = intEnv("CATEGORIES_AT_SIDEBAR", cfg.CategoriesAtSidebar, 1)
	cfg.BroadcastTimeout = durationEnv("BROADCAST_TIMEOUT", cfg.BroadcastTimeout)

	cfg.Mail.Server = os.Getenv("MAIL_SERVER")
	cfg.Mail.Port = intEnv("MAIL_PORT", cfg.Mail.Port, 1)
	cfg.Mail.Username = os.Getenv("MAIL_USERNAME")
	cfg.Mail.Password = os.Getenv("MAIL_PASSWORD")
	cfg.Mail.UseTLS = boolEnv("MAIL_USE_TLS")
	cfg.Mail.Workers = intEnv("MAIL_WORKERS", cfg.Mail.Workers, 1)

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.RateLimitBurst = intEnv("RATE_LIMIT_BURST", cfg.RateLimitBurst, 1)
	cfg.RateLimitWindow = durationEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)

	cfg.ShutdownTimeout = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	return cfg
}

// UsesPostgres reports whether a postgres DSN was configured.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// Language returns code if it is supported, "en" otherwise.
func (c *Config) Language(code string) string {
	if _, ok := c.Languages[code]; ok {
		return code
	}
	return "en"
}

func postgresDSN() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		// Heroku-style URLs use the legacy scheme.
		return strings.Replace(url, "postgres://", "postgresql://", 1)
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		return ""
	}

	user := os.Getenv("DB_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("DB_PASS")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("DB_NAME")
	if dbname == "" {
		dbname = "roomchat"
	}

	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port)
}

func intEnv(key string, def, min int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < min {
		log.Printf("Ignoring invalid %s=%q, using %d", key, value, def)
		return def
	}
	return parsed
}

// durationEnv accepts Go durations ("90s") or plain seconds ("90").
func durationEnv(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	log.Printf("Ignoring invalid %s=%q, using %s", key, value, def)
	return def
}

func boolEnv(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "yes", "true", "1":
		return true
	}
	return false
}
