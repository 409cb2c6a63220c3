package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	DatabasePath   string
	Environment    string
	LogLevel       string
	SessionTTL     time.Duration
	SweepSchedule  string // cron spec for purging expired sessions
	QueryTimeout   time.Duration
	AllowedOrigins []string
	AdminUsername  string
	BcryptCost     int
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	portStr := getEnv("PORT", "3000")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", portStr)
	}

	sessionTTL, err := getEnvDuration("SESSION_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	queryTimeout, err := getEnvDuration("QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	costStr := getEnv("BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost))
	cost, err := strconv.Atoi(costStr)
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("invalid BCRYPT_COST %q", costStr)
	}

	schedule := getEnv("SESSION_SWEEP_SCHEDULE", "@every 5m")
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid SESSION_SWEEP_SCHEDULE %q: %w", schedule, err)
	}

	cfg := &Config{
		ServerPort:     port,
		DatabasePath:   getEnv("DATABASE_PATH", "./roleboard.db"),
		Environment:    getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SessionTTL:     sessionTTL,
		SweepSchedule:  schedule,
		QueryTimeout:   queryTimeout,
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		AdminUsername:  getEnv("ADMIN_USERNAME", "admin"),
		BcryptCost:     cost,
	}
	if cfg.AdminUsername == "" {
		return nil, fmt.Errorf("ADMIN_USERNAME must not be empty")
	}
	return cfg, nil
}

// IsProduction reports whether the app runs behind TLS in production mode.
// Session cookies are only marked Secure in that case.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, value)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
