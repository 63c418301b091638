// Package store provides the Postgres persistence layer. The relational
// store is authoritative for all durable pipeline state; uniqueness
// constraints on emails, links, and rankings are what make redelivered jobs
// safe to replay.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store provides database operations for pipeline entities
type Store struct {
	db *sql.DB
}

// New creates a store over an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// DB exposes the underlying pool for components that manage their own
// statements (queue, migrations).
func (s *Store) DB() *sql.DB {
	return s.db
}
