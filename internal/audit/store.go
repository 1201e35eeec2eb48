// Package audit persists an invocation trail in SQLite.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"grimm.is/speedctl/internal/clock"
)

// Record is one dispatched operation.
type Record struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Operation  string        `json:"operation"`
	Args       []string      `json:"args,omitempty"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	ClientIP   string        `json:"client_ip,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	Source     string        `json:"source"` // api or cli
	Duration   time.Duration `json:"duration_ns"`
	PayloadLen int           `json:"payload_bytes"`
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	Operation string
	Outcome   string
	Since     time.Time
	Limit     int
}

// Store provides persistent storage for invocation records.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	retentionDays int
	clock         clock.Clock
}

// NewStore opens (creating if needed) the audit database at dbPath.
func NewStore(dbPath string, retentionDays int) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// One writer; also keeps :memory: on a single connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			operation TEXT NOT NULL,
			args TEXT,
			outcome TEXT NOT NULL,
			error TEXT,
			client_ip TEXT,
			request_id TEXT,
			source TEXT NOT NULL,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			payload_bytes INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_invocations_timestamp ON invocations(timestamp);
		CREATE INDEX IF NOT EXISTS idx_invocations_operation ON invocations(operation);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &Store{
		db:            db,
		retentionDays: retentionDays,
		clock:         clock.RealClock{},
	}, nil
}

// SetClock overrides the time source used for defaults and pruning.
func (s *Store) SetClock(c clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// Write persists a record, assigning an ID and timestamp when missing.
func (s *Store) Write(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.clock.Now()
	}
	if rec.Source == "" {
		rec.Source = "api"
	}

	var argsJSON []byte
	if len(rec.Args) > 0 {
		var err error
		if argsJSON, err = json.Marshal(rec.Args); err != nil {
			return rec, fmt.Errorf("encode audit args: %w", err)
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO invocations (id, timestamp, operation, args, outcome, error, client_ip, request_id, source, duration_ns, payload_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp.UnixNano(), rec.Operation, string(argsJSON), rec.Outcome, rec.Error,
		rec.ClientIP, rec.RequestID, rec.Source, int64(rec.Duration), rec.PayloadLen)
	if err != nil {
		return rec, fmt.Errorf("insert audit record: %w", err)
	}
	return rec, nil
}

// Query returns records matching f, newest first.
func (s *Store) Query(f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if f.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, f.Operation)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UnixNano())
	}

	query := `SELECT id, timestamp, operation, args, outcome, error, client_ip, request_id, source, duration_ns, payload_bytes
		FROM invocations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                                    Record
			ts, durationNS                         int64
			argsJSON, errText, clientIP, requestID sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Operation, &argsJSON, &rec.Outcome, &errText,
			&clientIP, &requestID, &rec.Source, &durationNS, &rec.PayloadLen); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		rec.Duration = time.Duration(durationNS)
		rec.Error = errText.String
		rec.ClientIP = clientIP.String
		rec.RequestID = requestID.String
		if argsJSON.Valid && argsJSON.String != "" {
			if err := json.Unmarshal([]byte(argsJSON.String), &rec.Args); err != nil {
				return nil, fmt.Errorf("decode audit args for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune removes records older than the retention period.
func (s *Store) Prune() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.Exec("DELETE FROM invocations WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of records in the store.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM invocations").Scan(&count)
	return count, err
}

// PingContext checks that the database is reachable.
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
