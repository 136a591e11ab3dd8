package ledger

import (
	"errors"
	"time"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
)

// ErrNotFound is returned when a run or snapshot id is unknown.
var ErrNotFound = errors.New("not found")

// Run status values.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// #region run-record
// RunRecord is one simulation run: the config it was started with and, once
// finished, the encoded per-iteration series.
type RunRecord struct {
	RunID      string
	Seed       uint64
	ConfigJSON string
	Status     string
	CreatedAt  time.Time
	FinalTheta float64
	FinalLoss  float64
	Series     []byte
}

// #endregion run-record

// #region snapshot-record
// SnapshotRecord is the dataset and fit of one iteration. Snapshots of a run are
// chained through ParentID.
type SnapshotRecord struct {
	SnapshotID  string
	RunID       string
	ParentID    string
	Iteration   int
	Codec       dataset.Compression
	Points      dataset.Dataset
	Fingerprint uint64
	Theta       float64
	Loss        float64
	Offset      float64
	Converged   bool
	CreatedAt   time.Time
}

// #endregion snapshot-record

// #region snapshot-with-provenance
// SnapshotWithProvenance pairs a snapshot with its provenance row fields.
type SnapshotWithProvenance struct {
	SnapshotRecord
	Stage       string
	Decision    string
	Reason      string
	DetailsJSON string
}

// #endregion snapshot-with-provenance
