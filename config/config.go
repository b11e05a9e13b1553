// Package config loads server configuration from .env, the environment and
// command-line flags, in that order of increasing precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/dose-engine/logging"
)

type Config struct {
	Port        int
	DBPath      string
	Timezone    string
	DosesPerDay int

	RefillCheckInterval    time.Duration
	ReminderBreakerTimeout time.Duration

	CORSOrigins []string
	Log         logging.Config
}

// Location resolves Timezone. Empty means the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load reads a .env file if present, then the environment, then args
// (usually os.Args[1:]).
func Load(args []string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	dosesPerDay, err := getEnvInt("DOSES_PER_DAY", 2)
	if err != nil {
		return nil, err
	}
	refillEvery, err := getEnvDuration("REFILL_CHECK_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	breakerTimeout, err := getEnvDuration("REMINDER_BREAKER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                   port,
		DBPath:                 getEnvOrDefault("DB_PATH", "doses.db"),
		Timezone:               getEnvOrDefault("TZ_NAME", "Local"),
		DosesPerDay:            dosesPerDay,
		RefillCheckInterval:    refillEvery,
		ReminderBreakerTimeout: breakerTimeout,
		CORSOrigins:            splitList(getEnvOrDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		Log: logging.Config{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	fs.StringVar(&cfg.Timezone, "tz", cfg.Timezone, "IANA timezone used for calendar days")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DosesPerDay <= 0 {
		return fmt.Errorf("DOSES_PER_DAY must be positive, got %d", c.DosesPerDay)
	}
	if c.RefillCheckInterval <= 0 {
		return fmt.Errorf("REFILL_CHECK_INTERVAL must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
