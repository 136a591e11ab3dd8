package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	seed         INTEGER NOT NULL,
	config_json  TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	final_theta  REAL,
	final_loss   REAL,
	series       BLOB
);

CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id  TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	parent_id    TEXT,
	iteration    INTEGER NOT NULL,
	codec        INTEGER NOT NULL,
	points       BLOB NOT NULL,
	fingerprint  TEXT NOT NULL,
	theta        REAL NOT NULL,
	loss         REAL NOT NULL,
	shift_offset REAL NOT NULL,
	converged    INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id),
	FOREIGN KEY (parent_id) REFERENCES snapshots(snapshot_id),
	UNIQUE (run_id, iteration)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	snapshot_id   TEXT,
	iteration     INTEGER NOT NULL,
	stage         TEXT NOT NULL,
	decision      TEXT NOT NULL,
	reason        TEXT,
	details_json  TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id),
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(snapshot_id)
);
`

// #endregion schema

// #region store-struct
// Store records runs and their snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection; keep a single one
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region runs
// CreateRun inserts a new run in the running state.
func (s *Store) CreateRun(seed uint64, configJSON string) (RunRecord, error) {
	rec := RunRecord{
		RunID:      uuid.New().String(),
		Seed:       seed,
		ConfigJSON: configJSON,
		Status:     StatusRunning,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, seed, config_json, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.RunID, int64(seed), configJSON, rec.Status, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}

// AttachSeries stores the encoded series and final fit on a run and sets its status.
func (s *Store) AttachSeries(runID string, series []byte, finalTheta, finalLoss float64, status string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET series = ?, final_theta = ?, final_loss = ?, status = ? WHERE run_id = ?`,
		series, finalTheta, finalLoss, status, runID,
	)
	if err != nil {
		return fmt.Errorf("attach series: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// SetStatus updates a run's status without touching its series.
func (s *Store) SetStatus(runID, status string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ? WHERE run_id = ?`, status, runID)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const runColumns = `run_id, seed, config_json, status, created_at, final_theta, final_loss, series`

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (RunRecord, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first. A negative limit lists
// every run.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var rec RunRecord
	var seed int64
	var createdStr string
	var theta, loss sql.NullFloat64
	if err := sc.Scan(&rec.RunID, &seed, &rec.ConfigJSON, &rec.Status, &createdStr, &theta, &loss, &rec.Series); err != nil {
		return RunRecord{}, err
	}
	rec.Seed = uint64(seed)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	rec.FinalTheta = theta.Float64
	rec.FinalLoss = loss.Float64
	return rec, nil
}

// #endregion runs

// #region snapshots
// CommitSnapshot encodes rec.Points with rec.Codec and inserts the snapshot. An
// empty SnapshotID gets a fresh one; the stored record is returned.
func (s *Store) CommitSnapshot(rec SnapshotRecord) (SnapshotRecord, error) {
	if rec.SnapshotID == "" {
		rec.SnapshotID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	blob, err := dataset.Encode(rec.Points, rec.Codec)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("encode points: %w", err)
	}
	if rec.Fingerprint == 0 {
		rec.Fingerprint = rec.Points.Fingerprint()
	}

	var parentPtr interface{}
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}

	_, err = s.db.Exec(
		`INSERT INTO snapshots (snapshot_id, run_id, parent_id, iteration, codec, points, fingerprint,
		                        theta, loss, shift_offset, converged, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SnapshotID, rec.RunID, parentPtr, rec.Iteration, int(rec.Codec), blob,
		formatFingerprint(rec.Fingerprint), rec.Theta, rec.Loss, rec.Offset, rec.Converged,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return rec, nil
}

const snapshotColumns = `snapshot_id, run_id, parent_id, iteration, codec, points, fingerprint,
	theta, loss, shift_offset, converged, created_at`

// GetSnapshot retrieves and decodes a snapshot by ID.
func (s *Store) GetSnapshot(id string) (SnapshotRecord, error) {
	row := s.db.QueryRow(`SELECT `+snapshotColumns+` FROM snapshots WHERE snapshot_id = ?`, id)
	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("get snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return rec, nil
}

// ListSnapshots returns a run's snapshots in iteration order.
func (s *Store) ListSnapshots(runID string) ([]SnapshotRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+snapshotColumns+` FROM snapshots WHERE run_id = ? ORDER BY iteration ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListSnapshotsWithProvenance returns a run's snapshots joined with the latest
// provenance row written for each.
func (s *Store) ListSnapshotsWithProvenance(runID string) ([]SnapshotWithProvenance, error) {
	rows, err := s.db.Query(
		`SELECT s.snapshot_id, s.run_id, s.parent_id, s.iteration, s.codec, s.points, s.fingerprint,
		        s.theta, s.loss, s.shift_offset, s.converged, s.created_at,
		        COALESCE(p.stage, ''), COALESCE(p.decision, ''), COALESCE(p.reason, ''), COALESCE(p.details_json, '')
		 FROM snapshots s
		 LEFT JOIN provenance_log p ON p.id = (
		     SELECT MAX(id) FROM provenance_log WHERE snapshot_id = s.snapshot_id
		 )
		 WHERE s.run_id = ?
		 ORDER BY s.iteration ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots with provenance: %w", err)
	}
	defer rows.Close()

	var out []SnapshotWithProvenance
	for rows.Next() {
		var sp SnapshotWithProvenance
		var extra [4]string
		rec, err := scanSnapshotWith(rows, &extra[0], &extra[1], &extra[2], &extra[3])
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sp.SnapshotRecord = rec
		sp.Stage, sp.Decision, sp.Reason, sp.DetailsJSON = extra[0], extra[1], extra[2], extra[3]
		out = append(out, sp)
	}
	return out, rows.Err()
}

func scanSnapshot(sc scanner) (SnapshotRecord, error) {
	return scanSnapshotWith(sc)
}

func scanSnapshotWith(sc scanner, extra ...any) (SnapshotRecord, error) {
	var rec SnapshotRecord
	var parentID sql.NullString
	var codec int
	var blob []byte
	var fp string
	var createdStr string

	dest := []any{&rec.SnapshotID, &rec.RunID, &parentID, &rec.Iteration, &codec, &blob, &fp,
		&rec.Theta, &rec.Loss, &rec.Offset, &rec.Converged, &createdStr}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return SnapshotRecord{}, err
	}
	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	rec.Codec = dataset.Compression(codec)
	points, err := dataset.Decode(blob)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("decode points: %w", err)
	}
	rec.Points = points
	if rec.Fingerprint, err = parseFingerprint(fp); err != nil {
		return SnapshotRecord{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion snapshots

// #region fingerprint-encoding
// Fingerprints use the full uint64 range, which SQLite INTEGER cannot hold.
func formatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}

func parseFingerprint(s string) (uint64, error) {
	fp, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", s, err)
	}
	return fp, nil
}

// #endregion fingerprint-encoding
