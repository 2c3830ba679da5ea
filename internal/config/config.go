package config

import (
	"os"
	"time"
)

// Config is the env-driven server configuration.
type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string

	// AuthSecret signs and verifies bearer tokens (HS256). Session
	// issuance happens outside this system.
	AuthSecret string

	// Room lifecycle tuning.
	RoomFlushInterval time.Duration
	RoomGracePeriod   time.Duration

	// LogDir enables file logging when set; empty logs to stdout only.
	LogDir      string
	LogMaxFiles int
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "dev"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		CORSOrigins:       getEnv("CORS_ORIGINS", "http://localhost:3000"),
		AuthSecret:        getEnv("AUTH_SECRET", ""),
		RoomFlushInterval: getDuration("ROOM_FLUSH_INTERVAL", 15*time.Second),
		RoomGracePeriod:   getDuration("ROOM_GRACE_PERIOD", 60*time.Second),
		LogDir:            getEnv("LOG_DIR", ""),
		LogMaxFiles:       10,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}
