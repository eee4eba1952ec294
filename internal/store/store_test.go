package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/roach88/framegraph/internal/executor"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/multiplex"
	"github.com/roach88/framegraph/internal/registry"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := Run{
		ID:            id,
		Source:        "testdata/deferred.cue",
		Extents:       multiplex.Extents{1, 1, 2, 1},
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := s.WriteRun(context.Background(), run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	return run
}

func createTestFrame(runID string, n uint32, hash string) FrameRecord {
	return FrameRecord{
		RunID:     runID,
		Frame:     n,
		Hash:      hash,
		Scheduled: []string{"/a", "/b"},
		Culled:    []string{"/c"},
		Pruned:    []string{},
		Canonical: "{}",
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"user_version": "1",
	} {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_UpgradesVersionZeroLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	for _, stmt := range []string{"DROP INDEX idx_reports_node", "PRAGMA user_version = 0"} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
	var n int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_reports_node'`).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if n != 1 {
		t.Errorf("idx_reports_node count = %d, want 1", n)
	}
}

func TestWriteRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	want := createTestRun(t, s, "run-1")

	got, err := s.ReadRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadRun() = %+v, want %+v", got, want)
	}
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")
	createTestRun(t, s, "run-1")

	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("got %d runs, want 1", len(runs))
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun() error = %v, want sql.ErrNoRows", err)
	}
}

func TestListRuns_OrderedByID(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "0192-b")
	createTestRun(t, s, "0192-a")

	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "0192-a" || runs[1].ID != "0192-b" {
		t.Errorf("ListRuns() = %+v, want 0192-a then 0192-b", runs)
	}
}

func TestWriteFrame_RequiresRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.WriteFrame(context.Background(), createTestFrame("missing", 1, "h"))
	if err == nil {
		t.Fatal("WriteFrame() succeeded without a run")
	}
}

func TestWriteFrame_RoundTripAndIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	rec := createTestFrame("run-1", 1, "h1")
	inserted, err := s.WriteFrame(ctx, rec)
	if err != nil || !inserted {
		t.Fatalf("WriteFrame() = %v, %v; want true, nil", inserted, err)
	}
	inserted, err = s.WriteFrame(ctx, createTestFrame("run-1", 1, "other"))
	if err != nil || inserted {
		t.Fatalf("second WriteFrame() = %v, %v; want false, nil", inserted, err)
	}

	frames, err := s.ReadFrames(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadFrames() failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !reflect.DeepEqual(frames[0], rec) {
		t.Errorf("ReadFrames()[0] = %+v, want %+v", frames[0], rec)
	}
}

func TestReadFrames_EmptyRun(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	frames, err := s.ReadFrames(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ReadFrames() failed: %v", err)
	}
	if frames == nil || len(frames) != 0 {
		t.Errorf("ReadFrames() = %#v, want empty non-nil slice", frames)
	}
}

func TestRecordFrame_WritesReportsAndDiagnostics(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	reports := []executor.Report{
		{
			Frame:        3,
			Node:         "/light",
			Kind:         executor.ReportShaderVar,
			Slot:         "depth_tex",
			Expected:     registry.View{Handle: 2},
			ExpectedName: "/depth",
			Observed:     registry.View{Handle: 9, Mip: 1},
			ObservedName: "",
			Bound:        true,
		},
		{
			Frame:        3,
			Node:         "/present",
			Kind:         executor.ReportRenderTarget,
			Slot:         "color0",
			ExpectedName: "/backbuffer",
		},
	}
	diags := []ir.Diagnostic{
		{Code: "F201", Severity: ir.SeverityError, Message: "missing", Node: "/present", Resource: "/output"},
		{Code: "F205", Severity: ir.SeverityWarning, Message: "unused"},
	}

	inserted, err := s.RecordFrame(ctx, createTestFrame("run-1", 3, "h"), reports, diags)
	if err != nil || !inserted {
		t.Fatalf("RecordFrame() = %v, %v; want true, nil", inserted, err)
	}

	gotReports, err := s.ReadReports(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadReports() failed: %v", err)
	}
	wantReports := []ReportRecord{
		{RunID: "run-1", Frame: 3, Seq: 0, Node: "/light", Kind: "shader_var", Slot: "depth_tex", Expected: "/depth", Observed: "#9@1.0"},
		{RunID: "run-1", Frame: 3, Seq: 1, Node: "/present", Kind: "render_target", Slot: "color0", Expected: "/backbuffer"},
	}
	if !reflect.DeepEqual(gotReports, wantReports) {
		t.Errorf("ReadReports() = %+v, want %+v", gotReports, wantReports)
	}

	light, err := s.ReadNodeReports(ctx, "run-1", "/light")
	if err != nil {
		t.Fatalf("ReadNodeReports() failed: %v", err)
	}
	if len(light) != 1 || light[0].Slot != "depth_tex" {
		t.Errorf("ReadNodeReports() = %+v, want the depth_tex report", light)
	}

	gotDiags, err := s.ReadDiagnostics(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadDiagnostics() failed: %v", err)
	}
	if len(gotDiags) != 2 || gotDiags[0].Code != "F201" || gotDiags[0].Resource != "/output" || gotDiags[1].Severity != "warning" {
		t.Errorf("ReadDiagnostics() = %+v", gotDiags)
	}
}

func TestRecordFrame_ExistingFrameWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	if _, err := s.RecordFrame(ctx, createTestFrame("run-1", 1, "h"), nil, nil); err != nil {
		t.Fatalf("RecordFrame() failed: %v", err)
	}
	report := executor.Report{Frame: 1, Node: "/a", Kind: executor.ReportShaderVar, Slot: "x"}
	inserted, err := s.RecordFrame(ctx, createTestFrame("run-1", 1, "h"), []executor.Report{report}, nil)
	if err != nil || inserted {
		t.Fatalf("RecordFrame() = %v, %v; want false, nil", inserted, err)
	}

	reports, _ := s.ReadReports(ctx, "run-1")
	if len(reports) != 0 {
		t.Errorf("got %d reports, want 0", len(reports))
	}
}

func TestRecordFrame_MismatchedReportRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	report := executor.Report{Frame: 7, Node: "/a", Kind: executor.ReportShaderVar, Slot: "x"}
	if _, err := s.RecordFrame(ctx, createTestFrame("run-1", 1, "h"), []executor.Report{report}, nil); err == nil {
		t.Fatal("RecordFrame() accepted a report from another frame")
	}

	frames, _ := s.ReadFrames(ctx, "run-1")
	if len(frames) != 0 {
		t.Errorf("frame was written despite rollback: %+v", frames)
	}
}

func TestNewFrameRecord(t *testing.T) {
	f := &ir.Frame{
		Culled: []string{"/unused"},
		Pruned: []string{"/broken"},
	}

	rec, err := NewFrameRecord("run-1", 4, f)
	if err != nil {
		t.Fatalf("NewFrameRecord() failed: %v", err)
	}
	if rec.Hash != f.MustHash() {
		t.Errorf("Hash = %s, want %s", rec.Hash, f.MustHash())
	}
	if rec.Frame != 4 || rec.RunID != "run-1" {
		t.Errorf("got frame %d of %s", rec.Frame, rec.RunID)
	}
	if !reflect.DeepEqual(rec.Culled, []string{"/unused"}) || !reflect.DeepEqual(rec.Pruned, []string{"/broken"}) {
		t.Errorf("culled/pruned = %v/%v", rec.Culled, rec.Pruned)
	}
	if rec.Canonical == "" {
		t.Error("Canonical is empty")
	}
}

func TestGetRunState(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	for i, h := range []string{"h1", "h1", "h2", "h2", "h1"} {
		var diags []ir.Diagnostic
		if i == 2 {
			diags = []ir.Diagnostic{{Code: "F201", Severity: ir.SeverityError, Message: "missing"}}
		}
		var reports []executor.Report
		if i == 4 {
			reports = []executor.Report{{Frame: uint32(i + 1), Node: "/a", Kind: executor.ReportShaderVar, Slot: "x"}}
		}
		if _, err := s.RecordFrame(ctx, createTestFrame("run-1", uint32(i+1), h), reports, diags); err != nil {
			t.Fatalf("RecordFrame(%d) failed: %v", i+1, err)
		}
	}

	state, err := s.GetRunState(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRunState() failed: %v", err)
	}
	if state.Frames != 5 || state.FirstFrame != 1 || state.LastFrame != 5 {
		t.Errorf("frames = %d [%d, %d], want 5 [1, 5]", state.Frames, state.FirstFrame, state.LastFrame)
	}
	if state.Compilations != 3 {
		t.Errorf("Compilations = %d, want 3", state.Compilations)
	}
	if state.Reports != 1 || state.Errors != 1 || state.Warnings != 0 {
		t.Errorf("reports/errors/warnings = %d/%d/%d, want 1/1/0", state.Reports, state.Errors, state.Warnings)
	}
}

func TestGetRunState_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetRunState(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetRunState() error = %v, want sql.ErrNoRows", err)
	}
}

func TestCompareRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "a")
	createTestRun(t, s, "b")

	for i, h := range []string{"h1", "h2", "h3"} {
		if _, err := s.WriteFrame(ctx, createTestFrame("a", uint32(i+1), h)); err != nil {
			t.Fatal(err)
		}
	}
	// b starts at a different frame number and diverges at position 1.
	for i, h := range []string{"h1", "hX"} {
		if _, err := s.WriteFrame(ctx, createTestFrame("b", uint32(i+10), h)); err != nil {
			t.Fatal(err)
		}
	}

	diffs, err := s.CompareRuns(ctx, "a", "b")
	if err != nil {
		t.Fatalf("CompareRuns() failed: %v", err)
	}
	want := []FrameDiff{
		{Position: 1, HashA: "h2", HashB: "hX"},
		{Position: 2, HashA: "h3", HashB: ""},
	}
	if !reflect.DeepEqual(diffs, want) {
		t.Errorf("CompareRuns() = %+v, want %+v", diffs, want)
	}

	same, err := s.CompareRuns(ctx, "a", "a")
	if err != nil || len(same) != 0 {
		t.Errorf("CompareRuns(a, a) = %+v, %v; want no diffs", same, err)
	}
}
