package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// DefaultOpTimeout bounds store writes and subscription opens when the
// caller's context carries no deadline of its own.
const DefaultOpTimeout = 10 * time.Second

// Config holds all configuration for the application.
type Config struct {
	DBUrl  string
	DBNs   string
	DBDb   string
	DBUser string
	DBPass string

	HTTPAddr  string
	OpTimeout time.Duration
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		DBUrl:     os.Getenv("SURREAL_URL"),
		DBUser:    os.Getenv("SURREAL_USER"),
		DBPass:    os.Getenv("SURREAL_PASS"),
		DBNs:      os.Getenv("SURREAL_NS"),
		DBDb:      os.Getenv("SURREAL_DB"),
		HTTPAddr:  os.Getenv("HTTP_ADDR"),
		OpTimeout: DefaultOpTimeout,
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	if raw := os.Getenv("STUDYSYNC_OP_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("Invalid STUDYSYNC_OP_TIMEOUT %q: %v", raw, err)
		}
		cfg.OpTimeout = d
	}

	if cfg.DBUrl == "" || cfg.DBNs == "" || cfg.DBDb == "" {
		log.Fatal("Required environment variables SURREAL_URL, SURREAL_NS, or SURREAL_DB are not set.")
	}

	return cfg
}
