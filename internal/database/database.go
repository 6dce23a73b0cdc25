package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateFriendly = errors.New("friendly id already used by business")
)

// DB wraps the SQLite connection and implements the stores the rest of the
// service needs.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		path:   path,
		logger: logger.With().Str("component", "database").Logger(),
	}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	instance.logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS businesses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			auto_approve BOOLEAN NOT NULL DEFAULT 0,
			operates_non_stop BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		// Readings are stored in their encoded day/hour/minute form.
		`CREATE TABLE IF NOT EXISTS schedule_blocks (
			business_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			start_reading INTEGER NOT NULL,
			end_reading INTEGER NOT NULL,
			PRIMARY KEY (business_id, position),
			FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			business_id TEXT NOT NULL,
			name TEXT NOT NULL,
			duration INTEGER NOT NULL,
			duration_unit TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			reminders TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			friendly_id TEXT NOT NULL,
			business_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_email TEXT,
			customer_phone TEXT,
			customer_telegram_chat_id INTEGER NOT NULL DEFAULT 0,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			comment TEXT,
			reminders TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (business_id, friendly_id),
			FOREIGN KEY (business_id) REFERENCES businesses(id),
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,
		`CREATE TABLE IF NOT EXISTS sent_reminders (
			booking_id TEXT NOT NULL,
			lead_minutes INTEGER NOT NULL,
			channel TEXT NOT NULL,
			sent_at DATETIME NOT NULL,
			PRIMARY KEY (booking_id, lead_minutes, channel),
			FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_services_business ON services(business_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_open ON bookings(status, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_business ON bookings(business_id)`,
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

// dbTime normalizes times before they are written so stored values compare
// correctly as text.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
