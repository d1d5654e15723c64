package config

import (
	"crypto/rand"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	RedisURL    string
	TokenSecret []byte // signs room access tokens; rotation invalidates them

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
	}

	if secret := os.Getenv("TOKEN_SECRET"); secret != "" {
		cfg.TokenSecret = []byte(secret)
	} else if cfg.Env != "production" {
		// Fresh secret per boot in development; restarting the server
		// invalidates outstanding room tokens, which dev can live with.
		cfg.TokenSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.TokenSecret); err != nil {
			panic(err)
		}
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	if cfg.Env == "production" {
		if os.Getenv("REDIS_URL") == "" {
			panic("REDIS_URL is required in production")
		}
		if len(cfg.TokenSecret) == 0 {
			panic("TOKEN_SECRET is required in production")
		}
	}

	return cfg
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
