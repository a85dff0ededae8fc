// Package config reads service configuration from the environment. A
// .env file in the working directory is loaded first when present, so
// local runs need no exported variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings shared by both services.
type Config struct {
	// ListenAddr is the ledger service's HTTP address.
	ListenAddr string
	// StoreURL is the base URL of the account store.
	StoreURL string
	// StoreListenAddr is the account store service's HTTP address.
	StoreListenAddr string
	// NATSURL enables transaction events when non-empty.
	NATSURL string
	// DatabaseURL selects the store service's Postgres backend when
	// non-empty; otherwise accounts live in memory.
	DatabaseURL string
	// PageSize is the statement page size.
	PageSize int
}

// Load builds the configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:      getenv("LEDGER_LISTEN_ADDR", ":8080"),
		StoreURL:        getenv("ACCOUNT_STORE_URL", "http://localhost:5001"),
		StoreListenAddr: getenv("STORE_LISTEN_ADDR", ":5001"),
		NATSURL:         os.Getenv("NATS_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		PageSize:        10,
	}

	if v := os.Getenv("STATEMENT_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid STATEMENT_PAGE_SIZE %q", v)
		}
		cfg.PageSize = n
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
