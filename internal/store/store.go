// Package store is the persistence adapter for the router. It owns the
// four device tables (devices, sensors, actuators, alerts) plus the
// system_logs audit table, and wraps every statement with a per-attempt
// timeout and a single reconnect-and-retry on failure.
//
// The router is the only writer. Services read the same data through
// the system/select surface, never through this package.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// attemptTimeout bounds each statement attempt. A second attempt after
// reconnect gets its own budget.
const attemptTimeout = 5 * time.Second

// TimeFormat is the wall-clock timestamp format used in every table
// and every published payload.
const TimeFormat = "2006-01-02 15:04:05"

// Now returns the router wall clock formatted for persistence and
// publication. Device clocks are unsynchronized and never trusted.
func Now() string {
	return time.Now().Format(TimeFormat)
}

// Store wraps the SQLite database. All methods are safe for concurrent
// use; the reconnect path is serialized by mu.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	s := &Store{path: path, logger: logger, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by the healthcheck
// subcommand.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()
	return s.conn().PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		device_name TEXT NOT NULL PRIMARY KEY,
		last_seen   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sensors (
		id          INTEGER NOT NULL,
		device_name TEXT NOT NULL REFERENCES devices(device_name),
		name        TEXT,
		location    TEXT,
		value,
		unit        TEXT,
		enabled     INTEGER,
		last_seen   TEXT NOT NULL,
		PRIMARY KEY (device_name, id)
	);

	CREATE TABLE IF NOT EXISTS actuators (
		id          INTEGER NOT NULL,
		device_name TEXT NOT NULL REFERENCES devices(device_name),
		name        TEXT,
		location    TEXT,
		state       INTEGER,
		last_seen   TEXT NOT NULL,
		PRIMARY KEY (device_name, id)
	);

	CREATE TABLE IF NOT EXISTS alerts (
		device_name    TEXT NOT NULL REFERENCES devices(device_name),
		component_type TEXT NOT NULL,
		component_id   INTEGER NOT NULL,
		component_name TEXT,
		location       TEXT,
		status         TEXT,
		message        TEXT,
		severity       TEXT,
		code           TEXT,
		timestamp      TEXT NOT NULL,
		PRIMARY KEY (device_name, component_type, component_id)
	);

	CREATE TABLE IF NOT EXISTS system_logs (
		timestamp  TEXT NOT NULL,
		topic      TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload    TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) conn() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// reconnect closes and reopens the database handle. Called after a
// failed statement before the single retry.
func (s *Store) reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Warn("store connection lost, reconnecting", "path", s.path)
	s.db.Close()

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		s.logger.Error("store reconnect failed", "path", s.path, "error", err)
		return
	}
	s.db = db
}

// exec runs a write statement with the attempt timeout, reconnecting
// and retrying once on failure.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	attempt := func() error {
		actx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()
		_, err := s.conn().ExecContext(actx, query, args...)
		return err
	}

	err := attempt()
	if err == nil {
		return nil
	}

	s.logger.Warn("store statement failed, retrying after reconnect", "error", err)
	s.reconnect()

	if err := attempt(); err != nil {
		return fmt.Errorf("store statement failed after retry: %w", err)
	}
	return nil
}

// query runs a read statement with the attempt timeout, reconnecting
// and retrying once on failure. scan consumes the rows; it is invoked
// at most twice.
func (s *Store) query(ctx context.Context, query string, scan func(*sql.Rows) error, args ...any) error {
	attempt := func() error {
		actx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()
		rows, err := s.conn().QueryContext(actx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if err := scan(rows); err != nil {
			return err
		}
		return rows.Err()
	}

	err := attempt()
	if err == nil {
		return nil
	}

	s.logger.Warn("store query failed, retrying after reconnect", "error", err)
	s.reconnect()

	if err := attempt(); err != nil {
		return fmt.Errorf("store query failed after retry: %w", err)
	}
	return nil
}

// AppendSystemLog records an observed system/notify event in the audit
// table. Failures are the caller's to swallow; losing an audit row is
// acceptable, losing the message loop is not.
func (s *Store) AppendSystemLog(ctx context.Context, topic, eventType, payload string) error {
	return s.exec(ctx,
		`INSERT INTO system_logs (timestamp, topic, event_type, payload)
		 VALUES (?, ?, ?, ?)`,
		Now(), topic, eventType, payload,
	)
}

// CountSystemLogs returns the number of audit rows.
func (s *Store) CountSystemLogs(ctx context.Context) (int, error) {
	var n int
	err := s.query(ctx, `SELECT COUNT(*) FROM system_logs`,
		func(rows *sql.Rows) error {
			if rows.Next() {
				return rows.Scan(&n)
			}
			return nil
		},
	)
	return n, err
}
