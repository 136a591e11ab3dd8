package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// one connection so every query sees the same in-memory database
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE provenance_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id       TEXT NOT NULL,
		snapshot_id  TEXT,
		iteration    INTEGER NOT NULL,
		stage        TEXT NOT NULL,
		decision     TEXT NOT NULL,
		reason       TEXT,
		details_json TEXT,
		created_at   TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:       "r1",
		SnapshotID:  "s1",
		Iteration:   2,
		Stage:       "optimization",
		DetailsJSON: `{"theta":0.7}`,
		Decision:    DecisionFit,
		Reason:      "converged",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var runID, decision string
	var iteration int
	db.QueryRow("SELECT run_id, decision, iteration FROM provenance_log").Scan(&runID, &decision, &iteration)
	if runID != "r1" {
		t.Errorf("expected run_id 'r1', got %q", runID)
	}
	if decision != DecisionFit {
		t.Errorf("expected decision 'fit', got %q", decision)
	}
	if iteration != 2 {
		t.Errorf("expected iteration 2, got %d", iteration)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:    "r2",
		Stage:    "iteration",
		Decision: DecisionReject,
	}

	before := time.Now().UTC()
	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM provenance_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		RunID:     "r3",
		Stage:     "optimization",
		Decision:  DecisionFallback,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snapshotID, details, reason sql.NullString
	db.QueryRow("SELECT snapshot_id, details_json, reason FROM provenance_log").Scan(
		&snapshotID, &details, &reason,
	)
	if snapshotID.Valid {
		t.Error("expected NULL snapshot_id for empty string")
	}
	if details.Valid {
		t.Error("expected NULL details_json for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	entry := ProvenanceEntry{
		RunID:    "r4",
		Stage:    "optimization",
		Decision: DecisionFit,
	}

	if err := LogDecision(db, entry); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-decision-tests

// #region iteration-record-tests
func TestLogIterationAndListEntries(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for i := 0; i < 3; i++ {
		rec := IterationRecord{
			Iteration: i,
			Offset:    float64(i) * 0.5,
			Theta:     0.7,
			Loss:      0.3,
			Converged: true,
			Checks:    []CheckRecord{{Name: "loss_finite", Value: 0.3, Pass: true}},
		}
		entry := ProvenanceEntry{RunID: "run", SnapshotID: "snap", Iteration: i, Stage: "optimization", Decision: DecisionFit}
		if err := LogIteration(db, entry, rec); err != nil {
			t.Fatalf("LogIteration: %v", err)
		}
	}
	LogDecision(db, ProvenanceEntry{RunID: "other", Stage: "optimization", Decision: DecisionFit})

	entries, err := ListEntries(db, "run")
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Iteration != i {
			t.Errorf("entry %d: iteration %d", i, e.Iteration)
		}
		rec, err := ParseIterationRecord(e.DetailsJSON)
		if err != nil {
			t.Fatalf("ParseIterationRecord: %v", err)
		}
		if rec.Offset != float64(i)*0.5 || len(rec.Checks) != 1 {
			t.Errorf("entry %d: unexpected record %+v", i, rec)
		}
	}
}

func TestParseIterationRecord_Empty(t *testing.T) {
	rec, err := ParseIterationRecord("")
	if err != nil || rec != nil {
		t.Fatalf("expected nil, nil; got %v, %v", rec, err)
	}
	if _, err := ParseIterationRecord("{"); err == nil {
		t.Fatal("expected error on malformed json")
	}
}

// #endregion iteration-record-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
