package config

import (
	"errors"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	DatabaseURL  string
	LogLevel     string
	ServerPort   int
	Layout       string // built-in layout name; empty means auto-detect
	LayoutFile   string // YAML layout definition, overrides Layout
	DebugDir     string // page text and line dumps; empty disables them
	Workers      int
	ScanSchedule string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; variables already set in
// the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		ServerPort:   getEnvAsInt("SERVER_PORT", 8080),
		Layout:       getEnv("LAYOUT", ""),
		LayoutFile:   getEnv("LAYOUT_FILE", ""),
		DebugDir:     getEnv("DEBUG_DIR", ""),
		Workers:      getEnvAsInt("WORKERS", runtime.NumCPU()),
		ScanSchedule: getEnv("SCAN_SCHEDULE", "@every 15m"),
	}

	if cfg.Workers < 1 {
		return nil, errors.New("WORKERS must be at least 1")
	}
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return nil, errors.New("SERVER_PORT must be between 1 and 65535")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
