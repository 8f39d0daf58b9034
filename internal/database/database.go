package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the SQLite-backed store. It is the single source of truth: bookings,
// units, users and the transactional outbox live in the same database so a
// mutation and its facts commit atomically.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS units (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            nightly_price INTEGER NOT NULL,
            cleaning_fee INTEGER NOT NULL,
            currency TEXT NOT NULL,
            amenities TEXT NOT NULL DEFAULT '[]',
            version INTEGER NOT NULL DEFAULT 1,
            last_reserved_on_utc DATETIME,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            unit_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            period_start TEXT NOT NULL,
            period_end TEXT NOT NULL,
            price_for_period INTEGER NOT NULL,
            cleaning_fee INTEGER NOT NULL,
            amenities_up_charge INTEGER NOT NULL,
            total_price INTEGER NOT NULL,
            currency TEXT NOT NULL,
            status TEXT NOT NULL,
            created_on_utc DATETIME NOT NULL,
            confirmed_on_utc DATETIME,
            rejected_on_utc DATETIME,
            completed_on_utc DATETIME,
            cancelled_on_utc DATETIME,
            version INTEGER NOT NULL DEFAULT 1
        )`,

		`CREATE TABLE IF NOT EXISTS outbox_messages (
            id TEXT PRIMARY KEY,
            occurred_on_utc DATETIME NOT NULL,
            type TEXT NOT NULL,
            content TEXT NOT NULL,
            processed_on_utc DATETIME,
            attempts INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            next_attempt_at DATETIME,
            claimed_until DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_unit_id ON bookings(unit_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_period ON bookings(period_start, period_end)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unprocessed ON outbox_messages(processed_on_utc, occurred_on_utc)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Healthy reports whether the underlying database answers a ping.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.PingContext(ctx) == nil
}
