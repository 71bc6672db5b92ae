package audit

import (
	"path/filepath"
	"testing"

	"github.com/kartikbazzad/repcrec/internal/repcrec"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordsOperationsAndEvents(t *testing.T) {
	s := openTestStore(t)
	rec := s.Recorder("case1")

	op, err := repcrec.Parse("W(T1,x2,5)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec.OperationExecuted(op, 1, repcrec.StatusOK)
	rec.TransactionCommitted("T1", 2)
	rec.TransactionAborted("T2", 3, repcrec.AbortDeadlock)
	rec.DeadlockDetected("T2", []string{"T1", "T2"}, 3)

	var ops int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM operations WHERE run_id = ? AND case_name = 'case1'`, s.runID,
	).Scan(&ops); err != nil {
		t.Fatalf("count operations: %v", err)
	}
	if ops != 1 {
		t.Errorf("operations = %d, want 1", ops)
	}

	var kinds []string
	rows, err := s.db.Query(
		`SELECT kind FROM events WHERE run_id = ? ORDER BY tick, kind`, s.runID,
	)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			t.Fatal(err)
		}
		kinds = append(kinds, k)
	}
	want := []string{"commit", "abort", "deadlock"}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

func TestStore_NilIsNoOp(t *testing.T) {
	var s *Store
	if s.Recorder("x") != nil {
		t.Error("nil store should hand out a nil recorder")
	}
	if s.RunID() != "" {
		t.Error("nil store has no run id")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil store: %v", err)
	}

	var rec *CaseRecorder
	rec.TransactionCommitted("T1", 1) // must not panic
}

func TestStore_SeparateRunsSeparateIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	idA := a.RunID()
	a.Close()

	b, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	if b.RunID() == idA {
		t.Error("each open should register a distinct run")
	}

	var runs int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs); err != nil {
		t.Fatal(err)
	}
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
}
