package logging

import "time"

// Decision values written to provenance_log.
const (
	DecisionFit      = "fit"
	DecisionFallback = "fallback"
	DecisionReject   = "reject"
)

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	RunID       string
	SnapshotID  string
	Iteration   int
	Stage       string
	DetailsJSON string
	Decision    string // "fit" | "fallback" | "reject"
	Reason      string
	CreatedAt   time.Time
}

// #endregion provenance-entry

// #region iteration-record
// IterationRecord captures everything that went into one iteration's decision.
// Serialized as JSON into provenance_log.details_json so a run can be replayed
// and compared step by step.
type IterationRecord struct {
	Iteration int     `json:"iteration"`
	Offset    float64 `json:"offset"`
	Angle     float64 `json:"pattern_angle"`
	Direction int     `json:"pattern_direction"`

	// Fit output
	Theta      float64 `json:"theta"`
	Loss       float64 `json:"loss"`
	Iterations int     `json:"optimizer_iterations"`
	Status     string  `json:"optimizer_status"`
	Converged  bool    `json:"converged"`

	// Dataset identity
	Fingerprint string `json:"fingerprint"`
	Points      int    `json:"points"`

	// Post-step checks
	Checks []CheckRecord `json:"checks,omitempty"`
}

// CheckRecord is one post-step validation metric.
type CheckRecord struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion iteration-record
