package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Addr              string
	Env               string
	DBDSN             string
	JWTSecret         string
	RedisAddr         string // empty disables the directory cache
	DirectoryCacheTTL time.Duration
}

// Load reads configuration from environment variables. In development it
// loads from a .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:              getEnv("ADDR", ":8080"),
		Env:               getEnv("ENV", "development"),
		DBDSN:             os.Getenv("DB_DSN"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		DirectoryCacheTTL: getDuration("DIRECTORY_CACHE_TTL", 30*time.Second),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
