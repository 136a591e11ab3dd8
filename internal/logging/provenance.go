// Package logging writes per-iteration provenance rows next to a run's snapshots.
package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (run_id, snapshot_id, iteration, stage, details_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		nullIfEmpty(entry.SnapshotID),
		entry.Iteration,
		entry.Stage,
		nullIfEmpty(entry.DetailsJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// LogIteration serializes rec into the entry's details and writes it.
func LogIteration(db *sql.DB, entry ProvenanceEntry, rec IterationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal iteration record: %w", err)
	}
	entry.DetailsJSON = string(data)
	return LogDecision(db, entry)
}

// #endregion log-decision

// #region read
// ListEntries returns a run's provenance rows in insertion order.
func ListEntries(db *sql.DB, runID string) ([]ProvenanceEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, snapshot_id, iteration, stage, details_json, decision, reason, created_at
		 FROM provenance_log WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list provenance: %w", err)
	}
	defer rows.Close()

	var out []ProvenanceEntry
	for rows.Next() {
		var e ProvenanceEntry
		var snapshotID, details, reason sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &snapshotID, &e.Iteration, &e.Stage, &details, &e.Decision, &reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.SnapshotID = snapshotID.String
		e.DetailsJSON = details.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ParseIterationRecord decodes a details_json column. Empty input yields nil.
func ParseIterationRecord(details string) (*IterationRecord, error) {
	if details == "" {
		return nil, nil
	}
	var rec IterationRecord
	if err := json.Unmarshal([]byte(details), &rec); err != nil {
		return nil, fmt.Errorf("parse iteration record: %w", err)
	}
	return &rec, nil
}

// #endregion read

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
