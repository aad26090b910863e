package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Backends for the snapshot stores.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration.
// Values come from defaults, then an optional TOML file, then environment
// variables; later sources win.
type Config struct {
	// Storage
	Backend    string `toml:"backend"`
	LedgerFile string `toml:"ledger_file"`
	UsersFile  string `toml:"users_file"`
	SQLitePath string `toml:"sqlite_path"`
	ExportFile string `toml:"export_file"`

	// Logging
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	// Resilience
	MaxRetries     int      `toml:"max_retries"`
	InitialBackoff Duration `toml:"initial_backoff"`

	// Auth
	BcryptCost    int      `toml:"bcrypt_cost"`
	SessionSecret string   `toml:"session_secret"`
	SessionTTL    Duration `toml:"session_ttl"`

	// Observability
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// Duration is a time.Duration that decodes from TOML strings like "15m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Backend:    BackendFile,
		LedgerFile: "bank_data.txt",
		UsersFile:  "users.txt",
		SQLitePath: "bank.db",
		ExportFile: "bank_export.json",

		LogLevel: "info",
		LogFile:  "ledger.log",

		MaxRetries:     2,
		InitialBackoff: Duration{50 * time.Millisecond},

		BcryptCost:    12,
		SessionSecret: "bank-ledger-dev-secret-change-me",
		SessionTTL:    Duration{30 * time.Minute},

		OTLPEndpoint: "",
	}
}

// Load builds the configuration. path names an optional TOML file; an
// empty path skips it, a missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Backend = getEnv("LEDGER_BACKEND", cfg.Backend)
	cfg.LedgerFile = getEnv("LEDGER_FILE", cfg.LedgerFile)
	cfg.UsersFile = getEnv("USERS_FILE", cfg.UsersFile)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.ExportFile = getEnv("EXPORT_FILE", cfg.ExportFile)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	cfg.MaxRetries = getEnvInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.InitialBackoff.Duration = getEnvDuration("INITIAL_BACKOFF", cfg.InitialBackoff.Duration)

	cfg.BcryptCost = getEnvInt("BCRYPT_COST", cfg.BcryptCost)
	cfg.SessionSecret = getEnv("SESSION_SECRET", cfg.SessionSecret)
	cfg.SessionTTL.Duration = getEnvDuration("SESSION_TTL", cfg.SessionTTL.Duration)

	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the program cannot run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.LedgerFile == "" || c.UsersFile == "" {
			return errors.New("config: ledger_file and users_file are required for the file backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want %q or %q)", c.Backend, BackendFile, BackendSQLite)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.SessionTTL.Duration <= 0 {
		return fmt.Errorf("config: session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.SessionSecret == "" {
		return errors.New("config: session_secret is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
