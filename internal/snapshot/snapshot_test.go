package snapshot

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/logger"
	"github.com/optiview/optiview/internal/reduce"
	"github.com/optiview/optiview/internal/study"
	"github.com/optiview/optiview/pkg/types"
)

// snapshotStudy builds a small study whose values exercise every storage
// shape: plain scalars, a NaN scalar, infinite scalars, and array cells
// holding NaN and infinities.
func snapshotStudy(t *testing.T) *study.Study {
	t.Helper()

	ds := dataset.New(4)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("failed to build dataset: %v", err)
		}
	}

	must(ds.AddScalarColumn("iter", []float64{0, 1, 2, 3}))
	must(ds.AddScalarColumn("raft.pitch", []float64{5, 4, math.NaN(), 3}))
	must(ds.AddScalarColumn("turbine.cost", []float64{1, math.Inf(1), 3, math.Inf(-1)}))
	must(ds.AddArrayColumn("rotor.chord", 3, [][]float64{
		{1.0, 2.0, 1.5},
		{math.NaN(), 2.0, math.Inf(1)},
		{0.5, 0.5, 0.5},
		{3.0, math.Inf(-1), 2.0},
	}))

	def := types.NewDefinition(nil, nil, []types.VariableSpec{
		{Name: "raft.pitch", Role: types.RoleObjective, Size: 1},
		{Name: "turbine.cost", Role: types.RoleObjective, Size: 1},
		{Name: "rotor.chord", Role: types.RoleObjective, Size: 3},
	})
	must(reduce.Reduce(ds, def))

	return &study.Study{
		Definition:   def,
		Data:         ds,
		Fingerprint:  ds.Fingerprint(),
		SchemaSource: "mem://schema.yaml",
		TableSource:  "mem://table.csv",
		LoadedAt:     time.Now().UTC(),
	}
}

func writeSnapshot(t *testing.T, st *study.Study) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.snapshot")
	if _, err := NewWriter(logger.NewNop()).Write(context.Background(), path, st); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return path
}

// sameFloats compares bit patterns so NaN cells count as equal.
func sameFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}

func TestWriterReaderRoundTrip(t *testing.T) {
	st := snapshotStudy(t)
	path := filepath.Join(t.TempDir(), "study.snapshot")

	info, err := NewWriter(logger.NewNop()).Write(context.Background(), path, st)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if info.SnapshotID == "" {
		t.Error("expected a snapshot ID")
	}
	if info.RowCount != 4 {
		t.Errorf("expected RowCount=4, got %d", info.RowCount)
	}
	if info.SizeBytes == 0 {
		t.Error("expected SizeBytes > 0")
	}
	if info.Path != path {
		t.Errorf("expected Path=%s, got %s", path, info.Path)
	}

	st2, info2, err := Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if info2.SnapshotID != info.SnapshotID {
		t.Errorf("snapshot ID changed across round trip: %s vs %s", info.SnapshotID, info2.SnapshotID)
	}
	if info2.Fingerprint != info.Fingerprint {
		t.Errorf("fingerprint changed across round trip: %s vs %s", info.Fingerprint, info2.Fingerprint)
	}

	if st2.Fingerprint != st.Fingerprint {
		t.Errorf("expected fingerprint %016x, got %016x", st.Fingerprint, st2.Fingerprint)
	}
	if st2.SchemaSource != st.SchemaSource || st2.TableSource != st.TableSource {
		t.Errorf("sources not restored: %s / %s", st2.SchemaSource, st2.TableSource)
	}
	if st2.Data.RowCount() != 4 {
		t.Fatalf("expected 4 rows, got %d", st2.Data.RowCount())
	}

	// Column order and every cell must survive, NaN and infinities included.
	want := st.Data.Columns()
	got := st2.Data.Columns()
	if len(want) != len(got) {
		t.Fatalf("expected %d columns, got %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("column %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	for _, name := range want {
		orig, _ := st.Data.Column(name)
		read, ok := st2.Data.Column(name)
		if !ok {
			t.Fatalf("column %q missing after read", name)
		}
		if read.Kind != orig.Kind || read.Width != orig.Width {
			t.Errorf("column %q: kind/width changed to %s/%d", name, read.Kind, read.Width)
		}
		if read.Derived != orig.Derived || read.Base != orig.Base {
			t.Errorf("column %q: derived/base changed to %v/%q", name, read.Derived, read.Base)
		}
		if orig.IsScalar() {
			if !sameFloats(orig.Scalars, read.Scalars) {
				t.Errorf("column %q: scalar values changed: %v vs %v", name, orig.Scalars, read.Scalars)
			}
			continue
		}
		for row := range orig.Arrays {
			if !sameFloats(orig.Arrays[row], read.Arrays[row]) {
				t.Errorf("column %q row %d: array changed: %v vs %v",
					name, row, orig.Arrays[row], read.Arrays[row])
			}
		}
	}

	// The NaN scalar comes back as NaN, not zero.
	pitch, _ := st2.Data.Column("raft.pitch")
	if !math.IsNaN(pitch.Float(2)) {
		t.Errorf("expected NaN at raft.pitch row 2, got %v", pitch.Float(2))
	}

	// Problem definition survives with roles and sizes intact.
	if len(st2.Definition.Objectives) != 3 {
		t.Fatalf("expected 3 objectives, got %d", len(st2.Definition.Objectives))
	}
	chord, ok := st2.Definition.Lookup("rotor.chord")
	if !ok {
		t.Fatal("rotor.chord missing from restored definition")
	}
	if chord.Role != types.RoleObjective || chord.Size != 3 {
		t.Errorf("rotor.chord restored as role=%s size=%d", chord.Role, chord.Size)
	}
}

func TestWriterFinalizesJournal(t *testing.T) {
	path := writeSnapshot(t, snapshotStudy(t))

	// The published artifact is a single file: no temp, no WAL sidecars.
	for _, suffix := range []string{".tmp", "-wal", "-shm"} {
		if _, err := os.Stat(path + suffix); !os.IsNotExist(err) {
			t.Errorf("leftover %s file after write", suffix)
		}
	}

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to read journal mode: %v", err)
	}
	if mode != "delete" {
		t.Errorf("expected journal_mode=delete, got %s", mode)
	}
}

func TestWriterStoresNaNAsNull(t *testing.T) {
	path := writeSnapshot(t, snapshotStudy(t))

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	defer db.Close()

	var pitch sql.NullFloat64
	if err := db.QueryRow(`SELECT "raft.pitch" FROM iterations WHERE row_idx = 2`).Scan(&pitch); err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if pitch.Valid {
		t.Errorf("expected NULL for NaN cell, got %v", pitch.Float64)
	}

	// Infinities are ordinary IEEE doubles and stay REAL.
	var cost float64
	if err := db.QueryRow(`SELECT "turbine.cost" FROM iterations WHERE row_idx = 1`).Scan(&cost); err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if !math.IsInf(cost, 1) {
		t.Errorf("expected +Inf, got %v", cost)
	}
}

func TestWriterCompressesArrayCells(t *testing.T) {
	path := writeSnapshot(t, snapshotStudy(t))

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	defer db.Close()

	var blob []byte
	if err := db.QueryRow(`SELECT "rotor.chord" FROM iterations WHERE row_idx = 0`).Scan(&blob); err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		t.Fatalf("cell is not snappy-compressed: %v", err)
	}
	values, err := bytesToFloats(raw)
	if err != nil {
		t.Fatalf("failed to decode floats: %v", err)
	}
	if !sameFloats(values, []float64{1.0, 2.0, 1.5}) {
		t.Errorf("expected [1 2 1.5], got %v", values)
	}
}

func TestWriterRecordsColumnStats(t *testing.T) {
	path := writeSnapshot(t, snapshotStudy(t))

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	defer db.Close()

	// NaN is never counted; 5, 4, 3 are the finite pitch values.
	var min, max float64
	var finite int64
	row := db.QueryRow(
		"SELECT min_value, max_value, finite_count FROM _optiview_stats WHERE column_name = 'raft.pitch'")
	if err := row.Scan(&min, &max, &finite); err != nil {
		t.Fatalf("failed to read pitch stats: %v", err)
	}
	if min != 3 || max != 5 || finite != 3 {
		t.Errorf("pitch stats: min=%v max=%v finite=%d", min, max, finite)
	}

	// Infinities are excluded from stats just like NaN.
	row = db.QueryRow(
		"SELECT min_value, max_value, finite_count FROM _optiview_stats WHERE column_name = 'turbine.cost'")
	if err := row.Scan(&min, &max, &finite); err != nil {
		t.Fatalf("failed to read cost stats: %v", err)
	}
	if min != 1 || max != 3 || finite != 2 {
		t.Errorf("cost stats: min=%v max=%v finite=%d", min, max, finite)
	}

	var kind string
	var width, derived int
	var base string
	row = db.QueryRow(
		"SELECT kind, width, derived, base FROM _optiview_stats WHERE column_name = 'rotor.chord_min'")
	if err := row.Scan(&kind, &width, &derived, &base); err != nil {
		t.Fatalf("failed to read chord_min stats: %v", err)
	}
	if kind != "scalar" || width != 1 || derived != 1 || base != "rotor.chord" {
		t.Errorf("chord_min stats: kind=%s width=%d derived=%d base=%s", kind, width, derived, base)
	}
}

func TestWriterOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.snapshot")
	w := NewWriter(logger.NewNop())

	first := snapshotStudy(t)
	if _, err := w.Write(context.Background(), path, first); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	second := snapshotStudy(t)
	if err := second.Data.AddScalarColumn("extra", []float64{9, 9, 9, 9}); err != nil {
		t.Fatalf("failed to extend dataset: %v", err)
	}
	second.Fingerprint = second.Data.Fingerprint()
	if _, err := w.Write(context.Background(), path, second); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	st, _, err := Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if st.Fingerprint != second.Fingerprint {
		t.Error("expected the second study after overwrite")
	}
	if !st.Data.HasColumn("extra") {
		t.Error("expected the extra column after overwrite")
	}
}

func TestReadMissingSnapshot(t *testing.T) {
	_, _, err := Read(context.Background(), filepath.Join(t.TempDir(), "absent.snapshot"))
	if err == nil {
		t.Fatal("expected error for missing snapshot")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("expected a not-found error, got %v", err)
	}
	if errors.GetCode(err) != errors.CodeSnapshotNotFound {
		t.Errorf("expected code %s, got %s", errors.CodeSnapshotNotFound, errors.GetCode(err))
	}
}

func TestReadRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.snapshot")
	if err := os.WriteFile(path, []byte("this is not a database"), 0o644); err != nil {
		t.Fatalf("failed to write junk file: %v", err)
	}

	_, _, err := Read(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for a non-snapshot file")
	}
	if errors.GetCode(err) != errors.CodeSnapshotRead {
		t.Errorf("expected code %s, got %s", errors.CodeSnapshotRead, errors.GetCode(err))
	}
}

func TestReadRejectsUnknownFormatVersion(t *testing.T) {
	path := writeSnapshot(t, snapshotStudy(t))

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	if _, err := db.Exec(
		"UPDATE _optiview_meta SET value = '99' WHERE key = 'format_version'"); err != nil {
		t.Fatalf("failed to bump format version: %v", err)
	}
	db.Close()

	_, _, err = Read(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for unknown format version")
	}
	if errors.GetCode(err) != errors.CodeSnapshotRead {
		t.Errorf("expected code %s, got %s", errors.CodeSnapshotRead, errors.GetCode(err))
	}
}

func TestReadDetectsTamperedData(t *testing.T) {
	path := writeSnapshot(t, snapshotStudy(t))

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	if _, err := db.Exec(`UPDATE iterations SET "iter" = 999 WHERE row_idx = 0`); err != nil {
		t.Fatalf("failed to tamper with data: %v", err)
	}
	db.Close()

	_, _, err = Read(context.Background(), path)
	if err == nil {
		t.Fatal("expected fingerprint mismatch for tampered data")
	}
	if errors.GetCode(err) != errors.CodeSnapshotRead {
		t.Errorf("expected code %s, got %s", errors.CodeSnapshotRead, errors.GetCode(err))
	}
}

func TestFloatsBytesRoundTrip(t *testing.T) {
	values := []float64{0, 1.5, -2.25, math.NaN(), math.Inf(1), math.Inf(-1)}
	decoded, err := bytesToFloats(floatsToBytes(values))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !sameFloats(values, decoded) {
		t.Errorf("expected %v, got %v", values, decoded)
	}

	if _, err := bytesToFloats([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for a truncated payload")
	}
}
