package ledger

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePoints() dataset.Dataset {
	return dataset.Dataset{
		{X1: 0.9, X2: 0.3, Label: 0, Group: dataset.GroupA},
		{X1: -0.2, X2: 1.1, Label: 1, Group: dataset.GroupA},
		{X1: 0.6, X2: 0.7, Label: 1, Group: dataset.GroupB},
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s := tempDB(t)

	rec, err := s.CreateRun(42, `{"random_seed":42}`)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if rec.RunID == "" {
		t.Fatal("expected non-empty run ID")
	}
	if rec.Status != StatusRunning {
		t.Fatalf("expected status running, got %s", rec.Status)
	}

	got, err := s.GetRun(rec.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Seed != 42 || got.ConfigJSON != rec.ConfigJSON {
		t.Fatalf("run mismatch: %+v", got)
	}
	if got.Series != nil {
		t.Fatalf("expected no series yet, got %d bytes", len(got.Series))
	}
}

func TestSeedKeepsFullRange(t *testing.T) {
	s := tempDB(t)
	seed := uint64(math.MaxUint64 - 5)

	rec, err := s.CreateRun(seed, "{}")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	got, err := s.GetRun(rec.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Seed != seed {
		t.Fatalf("expected seed %d, got %d", seed, got.Seed)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := tempDB(t)

	_, err := s.GetRun("nonexistent-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachSeriesAndStatus(t *testing.T) {
	s := tempDB(t)
	rec, _ := s.CreateRun(1, "{}")

	if err := s.AttachSeries(rec.RunID, []byte{1, 2, 3}, 0.78, 0.36, StatusComplete); err != nil {
		t.Fatalf("AttachSeries: %v", err)
	}
	got, _ := s.GetRun(rec.RunID)
	if got.Status != StatusComplete || got.FinalTheta != 0.78 || got.FinalLoss != 0.36 {
		t.Fatalf("unexpected run after attach: %+v", got)
	}
	if len(got.Series) != 3 {
		t.Fatalf("expected 3 series bytes, got %d", len(got.Series))
	}

	if err := s.SetStatus(rec.RunID, StatusFailed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ = s.GetRun(rec.RunID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}

	if err := s.AttachSeries("missing", nil, 0, 0, StatusComplete); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetStatus("missing", StatusFailed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	s := tempDB(t)
	for i := 0; i < 3; i++ {
		if _, err := s.CreateRun(uint64(i), "{}"); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}

	runs, _ = s.ListRuns(2)
	if len(runs) != 2 {
		t.Fatalf("expected limit 2, got %d", len(runs))
	}
}

func TestCommitAndGetSnapshot(t *testing.T) {
	for _, codec := range []dataset.Compression{dataset.CompressionNone, dataset.CompressionZstd, dataset.CompressionLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			s := tempDB(t)
			run, _ := s.CreateRun(7, "{}")
			pts := samplePoints()

			stored, err := s.CommitSnapshot(SnapshotRecord{
				RunID:     run.RunID,
				Iteration: 0,
				Codec:     codec,
				Points:    pts,
				Theta:     0.7,
				Loss:      0.4,
				Converged: true,
			})
			if err != nil {
				t.Fatalf("CommitSnapshot: %v", err)
			}
			if stored.SnapshotID == "" {
				t.Fatal("expected generated snapshot ID")
			}
			if stored.Fingerprint != pts.Fingerprint() {
				t.Fatal("expected fingerprint to be filled in")
			}

			got, err := s.GetSnapshot(stored.SnapshotID)
			if err != nil {
				t.Fatalf("GetSnapshot: %v", err)
			}
			if got.Codec != codec {
				t.Fatalf("codec mismatch: %v != %v", got.Codec, codec)
			}
			if got.Points.Fingerprint() != pts.Fingerprint() || got.Fingerprint != pts.Fingerprint() {
				t.Fatal("points did not round-trip")
			}
			if got.Theta != 0.7 || got.Loss != 0.4 || !got.Converged || got.ParentID != "" {
				t.Fatalf("unexpected snapshot: %+v", got)
			}
		})
	}
}

func TestSnapshotChain(t *testing.T) {
	s := tempDB(t)
	run, _ := s.CreateRun(7, "{}")

	first, err := s.CommitSnapshot(SnapshotRecord{RunID: run.RunID, Iteration: 0, Points: samplePoints()})
	if err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}
	second, err := s.CommitSnapshot(SnapshotRecord{
		RunID: run.RunID, ParentID: first.SnapshotID, Iteration: 1, Points: samplePoints(), Offset: -math.Pi / 3,
	})
	if err != nil {
		t.Fatalf("CommitSnapshot: %v", err)
	}

	snaps, err := s.ListSnapshots(run.RunID)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[1].SnapshotID != second.SnapshotID || snaps[1].ParentID != first.SnapshotID {
		t.Fatalf("chain broken: %+v", snaps[1])
	}
	if snaps[1].Offset != -math.Pi/3 {
		t.Fatalf("offset mismatch: %v", snaps[1].Offset)
	}

	// same iteration twice is rejected
	if _, err := s.CommitSnapshot(SnapshotRecord{RunID: run.RunID, Iteration: 1, Points: samplePoints()}); err == nil {
		t.Fatal("expected duplicate iteration to fail")
	}
}

func TestCommitSnapshotUnknownRun(t *testing.T) {
	s := tempDB(t)
	_, err := s.CommitSnapshot(SnapshotRecord{RunID: "no-such-run", Points: samplePoints()})
	if err == nil {
		t.Fatal("expected foreign key failure for unknown run")
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	s := tempDB(t)
	_, err := s.GetSnapshot("nonexistent-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSnapshotsWithProvenance(t *testing.T) {
	s := tempDB(t)
	run, _ := s.CreateRun(7, "{}")
	snap, _ := s.CommitSnapshot(SnapshotRecord{RunID: run.RunID, Iteration: 0, Points: samplePoints()})
	bare, _ := s.CommitSnapshot(SnapshotRecord{RunID: run.RunID, ParentID: snap.SnapshotID, Iteration: 1, Points: samplePoints()})

	for _, decision := range []string{"fallback", "fit"} {
		_, err := s.DB().Exec(
			`INSERT INTO provenance_log (run_id, snapshot_id, iteration, stage, decision, reason, details_json, created_at)
			 VALUES (?, ?, 0, 'optimization', ?, 'ok', '{}', '2026-01-01T00:00:00Z')`,
			run.RunID, snap.SnapshotID, decision,
		)
		if err != nil {
			t.Fatalf("insert provenance: %v", err)
		}
	}

	rows, err := s.ListSnapshotsWithProvenance(run.RunID)
	if err != nil {
		t.Fatalf("ListSnapshotsWithProvenance: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Decision != "fit" || rows[0].Stage != "optimization" || rows[0].DetailsJSON != "{}" {
		t.Fatalf("expected latest provenance row, got %+v", rows[0])
	}
	if rows[1].SnapshotID != bare.SnapshotID || rows[1].Decision != "" {
		t.Fatalf("expected empty provenance for bare snapshot, got %+v", rows[1])
	}
}

func TestFingerprintEncoding(t *testing.T) {
	for _, fp := range []uint64{0, 1, math.MaxUint64, 0x8000000000000000} {
		got, err := parseFingerprint(formatFingerprint(fp))
		if err != nil || got != fp {
			t.Fatalf("fingerprint %x: got %x, %v", fp, got, err)
		}
	}
	if _, err := parseFingerprint("zz"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewStoreInvalidPath(t *testing.T) {
	_, err := NewStore(filepath.Join(string(os.PathSeparator), "nonexistent", "deep", "path", "test.db"))
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestNewStoreNotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	junk := make([]byte, 4096)
	for i := range junk {
		junk[i] = byte(i*7 + 3)
	}
	if err := os.WriteFile(path, junk, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewStore(path); err == nil {
		t.Fatal("expected error for a file that is not a database")
	}
	// the failed open released its handle; the file can be replaced and reopened
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore after failure: %v", err)
	}
	s.Close()
}

func TestCreateRunOnClosedDB(t *testing.T) {
	s := tempDB(t)
	s.Close()

	if _, err := s.CreateRun(1, "{}"); err == nil {
		t.Fatal("expected error on closed DB")
	}
}
