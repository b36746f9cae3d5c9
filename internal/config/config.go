// Package config loads service configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/api needs to start.
type Config struct {
	Addr          string
	PostgresDSN   string
	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
}

// Load reads configuration. A missing .env file is not an error; explicit
// environment variables always win over file values.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:          getEnv("FOLIOHUB_ADDR", ":8080"),
		PostgresDSN:   strings.TrimSpace(os.Getenv("FOLIOHUB_PG_DSN")),
		RateBurst:     20,
		RatePerSecond: 10,
		MaxBodyBytes:  1 << 20,
	}

	var err error
	if cfg.RateBurst, err = getEnvInt("FOLIOHUB_RATE_BURST", cfg.RateBurst); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSecond, err = getEnvInt("FOLIOHUB_RATE_PER_SECOND", cfg.RatePerSecond); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return v, nil
}
