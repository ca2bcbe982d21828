// Package config loads application configuration from environment variables,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // APP_ENV, e.g. "dev" or "prod"
	Port string // APP_PORT

	DBDriver string // DB_DRIVER: mysql (default) or sqlite
	DBUser   string
	DBPass   string // may be empty
	DBHost   string
	DBPort   string
	DBName   string
	DBPath   string // DB_PATH, SQLite file

	JWTSecret    string
	AccessTTLMin int // ACCESS_TOKEN_TTL_MIN
	BcryptCost   int

	Log LogConfig

	RabbitURL       string        // RABBITMQ_URL; empty disables the cross-instance bridge
	ChangesExchange string        // CHANGES_EXCHANGE
	ChangesBridge   bool          // CHANGES_BRIDGE_ENABLED
	ProfileCacheTTL time.Duration // PROFILE_CACHE_TTL
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment. Every missing or
// malformed required variable is reported in the returned error.
func Load() (Config, error) {
	var l loader
	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),
		Port:     envStr("APP_PORT", "8080"),
		DBDriver: strings.ToLower(envStr("DB_DRIVER", "mysql")),
		DBPass:   os.Getenv("DB_PASS"),

		JWTSecret:    l.must("JWT_SECRET"),
		AccessTTLMin: l.intOr("ACCESS_TOKEN_TTL_MIN", 60),
		BcryptCost:   l.intOr("BCRYPT_COST", 12),

		Log: LogConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Format: envStr("LOG_FORMAT", "json"),
		},

		RabbitURL:       os.Getenv("RABBITMQ_URL"),
		ChangesExchange: envStr("CHANGES_EXCHANGE", "swap.changes"),
		ChangesBridge:   envBool("CHANGES_BRIDGE_ENABLED", true),
		ProfileCacheTTL: envDur("PROFILE_CACHE_TTL", 5*time.Minute),
	}

	switch cfg.DBDriver {
	case "sqlite", "sqlite3":
		cfg.DBPath = l.must("DB_PATH")
	default:
		cfg.DBUser = l.must("DB_USER")
		cfg.DBHost = l.must("DB_HOST")
		cfg.DBPort = l.must("DB_PORT")
		cfg.DBName = l.must("DB_NAME")
	}

	if cfg.AccessTTLMin <= 0 {
		l.fail("ACCESS_TOKEN_TTL_MIN must be positive")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		l.fail("BCRYPT_COST must be between 4 and 31")
	}
	if err := l.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loader accumulates problems so one run reports all of them.
type loader struct{ problems []string }

func (l *loader) fail(msg string) { l.problems = append(l.problems, msg) }

// must retrieves a required variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.fail("missing required env var: " + key)
	}
	return v
}

func (l *loader) intOr(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.fail(fmt.Sprintf("invalid int for %s: %q", key, s))
	}
	return n
}

func (l *loader) err() error {
	if len(l.problems) == 0 {
		return nil
	}
	return fmt.Errorf("config: %s", strings.Join(l.problems, "; "))
}
