package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrConflict is returned when a write collides with an existing row.
var ErrConflict = errors.New("conflicting record")

// SQLiteStore persists listings, users, saved cars and test drives.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
	// now is replaceable in tests.
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the SQLite database at dbPath and
// makes sure the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

var schema = []struct {
	table string
	query string
}{
	{"cars", `
	CREATE TABLE IF NOT EXISTS cars (
		id TEXT PRIMARY KEY,
		make TEXT NOT NULL,
		model TEXT NOT NULL,
		year INTEGER NOT NULL,
		price REAL NOT NULL,
		mileage INTEGER NOT NULL,
		color TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		transmission TEXT NOT NULL,
		body_type TEXT NOT NULL,
		seats INTEGER,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'AVAILABLE',
		featured INTEGER NOT NULL DEFAULT 0,
		images TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`},
	{"users", `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		auth_subject TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		name TEXT,
		image_url TEXT,
		phone TEXT,
		role TEXT NOT NULL DEFAULT 'USER',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`},
	{"saved_cars", `
	CREATE TABLE IF NOT EXISTS saved_cars (
		user_id TEXT NOT NULL,
		car_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, car_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (car_id) REFERENCES cars(id) ON DELETE CASCADE
	);
	`},
	{"test_drives", `
	CREATE TABLE IF NOT EXISTS test_drives (
		id TEXT PRIMARY KEY,
		car_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		booking_date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		notes TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (car_id) REFERENCES cars(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	`},
	{"test_drives slot index", `
	CREATE INDEX IF NOT EXISTS idx_test_drives_slot
		ON test_drives (car_id, booking_date, start_time);
	`},
}

func (s *SQLiteStore) init() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.table, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
