package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/framegraph/internal/executor"
	"github.com/roach88/framegraph/internal/ir"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	extents, err := marshalExtents(run.Extents)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, extents, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Source,
		extents,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteFrame inserts a frame record.
// Uses ON CONFLICT(run_id, frame) DO NOTHING; the returned flag reports
// whether a row was inserted.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteFrame(ctx context.Context, rec FrameRecord) (bool, error) {
	inserted, err := writeFrame(ctx, s.db, rec)
	if err != nil {
		return false, fmt.Errorf("write frame: %w", err)
	}
	return inserted, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeFrame(ctx context.Context, db execer, rec FrameRecord) (bool, error) {
	scheduled, err := marshalNames(rec.Scheduled)
	if err != nil {
		return false, err
	}
	culled, err := marshalNames(rec.Culled)
	if err != nil {
		return false, err
	}
	pruned, err := marshalNames(rec.Pruned)
	if err != nil {
		return false, err
	}
	result, err := db.ExecContext(ctx, `
		INSERT INTO frames (run_id, frame, hash, scheduled, culled, pruned, canonical)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, frame) DO NOTHING
	`,
		rec.RunID,
		rec.Frame,
		rec.Hash,
		scheduled,
		culled,
		pruned,
		rec.Canonical,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// RecordFrame atomically writes a frame with the reports raised while it
// ran and the diagnostics it carried. Reports are stored under the frame
// number they carry; rec.Frame must match it.
//
// If the frame already exists nothing is written and inserted is false.
func (s *Store) RecordFrame(
	ctx context.Context,
	rec FrameRecord,
	reports []executor.Report,
	diags []ir.Diagnostic,
) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("record frame: begin tx: %w", err)
	}
	defer tx.Rollback()

	inserted, err = writeFrame(ctx, tx, rec)
	if err != nil {
		return false, fmt.Errorf("record frame: write frame: %w", err)
	}
	if !inserted {
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("record frame: commit (existing): %w", err)
		}
		return false, nil
	}

	for i, r := range reports {
		if r.Frame != rec.Frame {
			return false, fmt.Errorf("record frame: report for frame %d in frame %d", r.Frame, rec.Frame)
		}
		rr := reportRecord(rec.RunID, int64(i), r)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reports (run_id, frame, seq, node, kind, slot, expected, observed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rr.RunID, rr.Frame, rr.Seq, rr.Node, rr.Kind, rr.Slot, rr.Expected, rr.Observed,
		)
		if err != nil {
			return false, fmt.Errorf("record frame: write report: %w", err)
		}
	}

	for i, d := range diags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO diagnostics (run_id, frame, seq, code, severity, message, node, resource)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.RunID, rec.Frame, int64(i), d.Code, string(d.Severity), d.Message, d.Node, d.Resource,
		)
		if err != nil {
			return false, fmt.Errorf("record frame: write diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("record frame: commit: %w", err)
	}
	return true, nil
}
