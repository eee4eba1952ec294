package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/queryir"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, extents, engine_version, ir_version
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns every run ordered by ID. Run IDs are UUIDv7, so this
// is creation order.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, extents, engine_version, ir_version
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var extents string
	if err := row.Scan(&run.ID, &run.Source, &extents, &run.EngineVersion, &run.IRVersion); err != nil {
		if err == sql.ErrNoRows {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	e, err := unmarshalExtents(extents)
	if err != nil {
		return run, err
	}
	run.Extents = e
	return run, nil
}

// ReadFrames returns every frame of a run in frame order.
// Returns an empty slice (not nil) if the run has no frames.
func (s *Store) ReadFrames(ctx context.Context, runID string) ([]FrameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, frame, hash, scheduled, culled, pruned, canonical
		FROM frames
		WHERE run_id = ?
		ORDER BY frame ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	frames := []FrameRecord{}
	for rows.Next() {
		var rec FrameRecord
		var scheduled, culled, pruned string
		if err := rows.Scan(&rec.RunID, &rec.Frame, &rec.Hash, &scheduled, &culled, &pruned, &rec.Canonical); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		if rec.Scheduled, err = unmarshalNames(scheduled); err != nil {
			return nil, err
		}
		if rec.Culled, err = unmarshalNames(culled); err != nil {
			return nil, err
		}
		if rec.Pruned, err = unmarshalNames(pruned); err != nil {
			return nil, err
		}
		frames = append(frames, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, nil
}

// ReadReports returns every report of a run ordered by frame, then seq.
func (s *Store) ReadReports(ctx context.Context, runID string) ([]ReportRecord, error) {
	return s.queryReports(ctx, `
		SELECT run_id, frame, seq, node, kind, slot, expected, observed
		FROM reports
		WHERE run_id = ?
		ORDER BY frame ASC, seq ASC
	`, runID)
}

// ReadNodeReports returns the reports raised by one node across a run.
func (s *Store) ReadNodeReports(ctx context.Context, runID, node string) ([]ReportRecord, error) {
	return s.QueryReports(ctx, runID, queryir.Equals{Field: "node", Value: ir.String(node)})
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	reports := []ReportRecord{}
	for rows.Next() {
		var r ReportRecord
		if err := rows.Scan(&r.RunID, &r.Frame, &r.Seq, &r.Node, &r.Kind, &r.Slot, &r.Expected, &r.Observed); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// ReadDiagnostics returns every diagnostic of a run ordered by frame, then
// seq.
func (s *Store) ReadDiagnostics(ctx context.Context, runID string) ([]DiagnosticRecord, error) {
	return s.queryDiagnostics(ctx, `
		SELECT run_id, frame, seq, code, severity, message, node, resource
		FROM diagnostics
		WHERE run_id = ?
		ORDER BY frame ASC, seq ASC
	`, runID)
}

func (s *Store) queryDiagnostics(ctx context.Context, query string, args ...any) ([]DiagnosticRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	diags := []DiagnosticRecord{}
	for rows.Next() {
		var d DiagnosticRecord
		if err := rows.Scan(&d.RunID, &d.Frame, &d.Seq, &d.Code, &d.Severity, &d.Message, &d.Node, &d.Resource); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return diags, nil
}
