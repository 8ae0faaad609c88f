package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/sysup/internal/fault"
)

// Store persists audit events to sqlite for later review.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (and migrates) the audit database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "audit.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		operation TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		fault_kind TEXT,
		session_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_events_op ON events(operation);
	CREATE INDEX IF NOT EXISTS idx_events_level ON events(level);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save appends one event. Events are never updated or deleted.
func (s *Store) Save(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (event_id, timestamp, operation, sequence, level, message, fault_kind, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EventID, e.Timestamp, e.Operation, e.Sequence, e.Level, e.Message, string(e.FaultKind), e.SessionID)
	return err
}

// QueryFilter narrows history queries.
type QueryFilter struct {
	Operation string
	Level     Level
	Since     time.Time
	Limit     int
}

// Query returns events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	query := `SELECT event_id, timestamp, operation, sequence, level, message, fault_kind, session_id
		FROM events WHERE 1=1`
	var args []any

	if filter.Operation != "" {
		query += " AND operation = ?"
		args = append(args, filter.Operation)
	}
	if filter.Level != "" {
		query += " AND level = ?"
		args = append(args, filter.Level)
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since)
	}

	query += " ORDER BY timestamp DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind sql.NullString
		var session sql.NullString
		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Operation, &e.Sequence,
			&e.Level, &e.Message, &kind, &session); err != nil {
			return nil, err
		}
		e.FaultKind = fault.Kind(kind.String)
		e.SessionID = session.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Failures returns recent ERROR and AUDIT events carrying a fault kind.
func (s *Store) Failures(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, timestamp, operation, sequence, level, message, fault_kind, session_id
		FROM events
		WHERE fault_kind != '' AND level IN ('ERROR', 'AUDIT')
		ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind, session sql.NullString
		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Operation, &e.Sequence,
			&e.Level, &e.Message, &kind, &session); err != nil {
			return nil, err
		}
		e.FaultKind = fault.Kind(kind.String)
		e.SessionID = session.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// LatestOutcomes returns the most recent AUDIT event per operation,
// newest first. AUDIT marks terminal outcomes, so this is the current
// state of every operation the tool has ever run.
func (s *Store) LatestOutcomes(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.event_id, e.timestamp, e.operation, e.sequence, e.level, e.message, e.fault_kind, e.session_id
		FROM events e
		JOIN (
			SELECT operation, MAX(timestamp) AS ts
			FROM events WHERE level = 'AUDIT' GROUP BY operation
		) latest ON e.operation = latest.operation AND e.timestamp = latest.ts
		WHERE e.level = 'AUDIT'
		ORDER BY e.timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind, session sql.NullString
		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Operation, &e.Sequence,
			&e.Level, &e.Message, &kind, &session); err != nil {
			return nil, err
		}
		e.FaultKind = fault.Kind(kind.String)
		e.SessionID = session.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Stats summarizes event counts per level and per fault kind.
type Stats struct {
	Total  int
	Levels map[Level]int
	Faults map[fault.Kind]int
	Oldest time.Time
	Newest time.Time
}

// GetStats aggregates the whole history.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Levels: make(map[Level]int),
		Faults: make(map[fault.Kind]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT level, COUNT(*) FROM events GROUP BY level`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Levels[Level(level)] = count
		stats.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT fault_kind, COUNT(*) FROM events WHERE fault_kind != '' GROUP BY fault_kind`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Faults[fault.Kind(kind)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT MIN(timestamp), MAX(timestamp) FROM events`)
	var oldest, newest sql.NullTime
	if err := row.Scan(&oldest, &newest); err == nil {
		stats.Oldest = oldest.Time
		stats.Newest = newest.Time
	}

	return stats, nil
}
