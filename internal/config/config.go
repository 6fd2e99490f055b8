// Package config loads relay server settings from the environment, with
// an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the relay server settings.
type Config struct {
	// Addr is the listen address for the HTTP and websocket endpoints.
	Addr string
	// DataDir holds the sqlite database file.
	DataDir string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// WriteTimeout bounds one outbound websocket frame write.
	WriteTimeout time.Duration
	// ClientBuffer is the per-client outbound queue length.
	ClientBuffer int
}

// Load reads settings from the environment. A .env file in the working
// directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:         getEnv("RELAY_ADDR", ":8800"),
		DataDir:      getEnv("RELAY_DATA_DIR", "./data"),
		LogLevel:     getEnv("RELAY_LOG_LEVEL", "info"),
		WriteTimeout: getEnvDuration("RELAY_WRITE_TIMEOUT", 10*time.Second),
		ClientBuffer: getEnvInt("RELAY_CLIENT_BUFFER", 256),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
