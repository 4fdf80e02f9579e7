// Package config provides environment-aware configuration management for the
// EBICS sandbox binary.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment identifies the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// ParseEnvironment normalizes a raw environment string, defaulting to
// Development when empty or unrecognized.
func ParseEnvironment(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(Testing):
		return Testing
	case string(Production):
		return Production
	default:
		return Development
	}
}

// Config holds every setting the sandbox needs to run: listener address,
// database connection, admin credentials, and the demobank defaults applied
// when no demobank-specific override exists.
type Config struct {
	Env Environment

	// ListenAddr is the address the EBICS + access-API HTTP server binds to.
	ListenAddr string

	// DatabaseDSN is the PostgreSQL connection string.
	DatabaseDSN     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnLifetime  time.Duration
	MigrateOnStart  bool

	// AdminUsername/AdminPassword gate the /admin/* provisioning routes.
	AdminUsername string
	AdminPassword string

	LogLevel  string
	LogFormat string

	// StatementTickCron is a robfig/cron/v3 expression controlling how often
	// the statement-tick job closes fresh transactions into a new statement.
	StatementTickCron string

	// DefaultDemobankName/Currency/DebtLimit seed the first demobank when the
	// sandbox starts against an empty database.
	DefaultDemobankName     string
	DefaultDemobankCurrency string
	DefaultDemobankDebtLimit string
}

// Load reads configuration from the environment, optionally preceded by a
// .env file named by SANDBOX_ENV_FILE (or config/<env>.env if unset), then
// validates the result.
func Load() (*Config, error) {
	env := ParseEnvironment(os.Getenv("SANDBOX_ENV"))

	envFile := os.Getenv("SANDBOX_ENV_FILE")
	if envFile == "" {
		envFile = fmt.Sprintf("config/%s.env", env)
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{Env: env}
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	c.ListenAddr = getEnv("SANDBOX_LISTEN_ADDR", ":5000")

	// DatabaseDSN and AdminPassword use the exact environment variable names
	// the EBICS sandbox command surface specifies (LIBEUFIN_SANDBOX_*);
	// everything else ambient (pool sizing, logging, scheduling) is free to
	// use the sandbox's own SANDBOX_* convention.
	c.DatabaseDSN = getEnv("LIBEUFIN_SANDBOX_DB_CONNECTION", "postgres://localhost:5432/ebicssandbox?sslmode=disable")
	c.DBMaxOpenConns = getIntEnv("SANDBOX_DB_MAX_OPEN_CONNS", 10)
	c.DBMaxIdleConns = getIntEnv("SANDBOX_DB_MAX_IDLE_CONNS", 5)
	c.DBConnLifetime = getDurationEnv("SANDBOX_DB_CONN_LIFETIME", 30*time.Minute)
	c.MigrateOnStart = getBoolEnv("SANDBOX_MIGRATE_ON_START", true)

	c.AdminUsername = getEnv("SANDBOX_ADMIN_USERNAME", "admin")
	c.AdminPassword = getEnv("LIBEUFIN_SANDBOX_ADMIN_PASSWORD", "")

	c.LogLevel = getEnv("SANDBOX_LOG_LEVEL", "info")
	c.LogFormat = getEnv("SANDBOX_LOG_FORMAT", "text")

	c.StatementTickCron = getEnv("SANDBOX_STATEMENT_TICK_CRON", "0 0 * * *")

	c.DefaultDemobankName = getEnv("SANDBOX_DEFAULT_DEMOBANK", "default")
	c.DefaultDemobankCurrency = getEnv("SANDBOX_DEFAULT_CURRENCY", "EUR")
	c.DefaultDemobankDebtLimit = getEnv("SANDBOX_DEFAULT_DEBT_LIMIT", "1000")
}

// Validate enforces production-only constraints and basic sanity checks.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("config: database DSN is required")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.Env == Production && c.AdminPassword == "" {
		return fmt.Errorf("config: LIBEUFIN_SANDBOX_ADMIN_PASSWORD is required in production")
	}
	if c.DBMaxOpenConns <= 0 {
		return fmt.Errorf("config: db max open conns must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getBoolEnv(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}
