// Package config loads server configuration from the environment and the
// optional scope-policy YAML file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port           string
	LogLevel       string
	SigningSecret  string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	StepTimeout    time.Duration
	RateLimitRPS   int
	RateLimitBurst int
	OTLPEndpoint   string
	ScopePolicy    string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	stepTimeout := 10 * time.Second
	if raw := os.Getenv("STEP_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			stepTimeout = d
		}
	}

	return &Config{
		Port:           port,
		LogLevel:       logLevel,
		SigningSecret:  os.Getenv("SIGNING_SECRET"),
		SQLitePath:     os.Getenv("SQLITE_PATH"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envInt("REDIS_DB", 0),
		StepTimeout:    stepTimeout,
		RateLimitRPS:   envInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		ScopePolicy:    os.Getenv("SCOPE_POLICY_FILE"),
	}
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
