// Package db opens the SQLite database behind the "sqlite" store driver.
package db

import "time"

// Config describes a single-writer SQLite database. Writes from the bot and
// the onboarding flow are serialized through one connection.
type Config struct {
	DSN         string
	BusyTimeout time.Duration
	WAL         bool
	// MaxConns defaults to 1.
	MaxConns    int
	MaxLifetime time.Duration
	Migrate     bool
}

func DefaultConfig() Config {
	return Config{
		BusyTimeout: 5 * time.Second,
		WAL:         true,
		MaxConns:    1,
		Migrate:     true,
	}
}
