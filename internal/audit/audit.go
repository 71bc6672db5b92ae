// Package audit persists per-run operation and event history into a sqlite
// database. The store is optional: a nil *Store is a no-op everywhere, so
// callers wire it unconditionally.
package audit

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "github.com/kartikbazzad/repcrec/internal/errors"
	"github.com/kartikbazzad/repcrec/internal/repcrec"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS operations (
	run_id    TEXT NOT NULL,
	case_name TEXT NOT NULL,
	tick      INTEGER NOT NULL,
	op        TEXT NOT NULL,
	status    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	run_id      TEXT NOT NULL,
	case_name   TEXT NOT NULL,
	tick        INTEGER NOT NULL,
	transaction_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	detail      TEXT NOT NULL
);
`

// Store is one audit database holding one run. Safe for concurrent
// recorders (directory mode runs cases in parallel).
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	runID  string
	closed bool
}

// Open opens (creating if needed) the audit database at path and registers
// a new run.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, runID: uuid.NewString()}
	if _, err := db.Exec(
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		s.runID, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// RunID returns the identifier of the run this store records.
func (s *Store) RunID() string {
	if s == nil {
		return ""
	}
	return s.runID
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) exec(query string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.ErrAuditClosed
	}
	_, err := s.db.Exec(query, args...)
	return err
}

// Recorder returns an event sink tagging everything it records with
// caseName. Returns nil (a valid no-op sink slot) on a nil store.
func (s *Store) Recorder(caseName string) *CaseRecorder {
	if s == nil {
		return nil
	}
	return &CaseRecorder{store: s, caseName: caseName}
}

// CaseRecorder implements repcrec.EventSink for one test case. Recording
// failures are deliberately swallowed: auditing must never change
// simulation behavior.
type CaseRecorder struct {
	store    *Store
	caseName string
}

func (r *CaseRecorder) OperationExecuted(op repcrec.Operation, tick int, status repcrec.Status) {
	if r == nil {
		return
	}
	_ = r.store.exec(
		`INSERT INTO operations (run_id, case_name, tick, op, status) VALUES (?, ?, ?, ?, ?)`,
		r.store.runID, r.caseName, tick, op.String(), string(status),
	)
}

func (r *CaseRecorder) TransactionCommitted(id string, tick int) {
	if r == nil {
		return
	}
	_ = r.store.exec(
		`INSERT INTO events (run_id, case_name, tick, transaction_id, kind, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		r.store.runID, r.caseName, tick, id, "commit", "",
	)
}

func (r *CaseRecorder) TransactionAborted(id string, tick int, reason repcrec.AbortReason) {
	if r == nil {
		return
	}
	_ = r.store.exec(
		`INSERT INTO events (run_id, case_name, tick, transaction_id, kind, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		r.store.runID, r.caseName, tick, id, "abort", string(reason),
	)
}

func (r *CaseRecorder) DeadlockDetected(victim string, trace []string, tick int) {
	if r == nil {
		return
	}
	_ = r.store.exec(
		`INSERT INTO events (run_id, case_name, tick, transaction_id, kind, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		r.store.runID, r.caseName, tick, victim, "deadlock", strings.Join(trace, ","),
	)
}
