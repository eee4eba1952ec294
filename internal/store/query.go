package store

import (
	"context"
	"fmt"

	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/queryir"
	"github.com/roach88/framegraph/internal/querysql"
)

var (
	reportColumns     = []string{"run_id", "frame", "seq", "node", "kind", "slot", "expected", "observed"}
	diagnosticColumns = []string{"run_id", "frame", "seq", "code", "severity", "message", "node", "resource"}
)

// scoped restricts filter to one run.
func scoped(runID string, filter queryir.Predicate) queryir.Predicate {
	preds := []queryir.Predicate{queryir.Equals{Field: "run_id", Value: ir.String(runID)}}
	if filter != nil {
		preds = append(preds, filter)
	}
	return queryir.And{Predicates: preds}
}

// QueryReports returns the reports of a run matching filter, ordered by
// frame, then seq. A nil filter matches every report.
func (s *Store) QueryReports(ctx context.Context, runID string, filter queryir.Predicate) ([]ReportRecord, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(queryir.Select{
		From:    "reports",
		Columns: reportColumns,
		Filter:  scoped(runID, filter),
	})
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	return s.queryReports(ctx, query, params...)
}

// QueryDiagnostics returns the diagnostics of a run matching filter,
// ordered by frame, then seq. A nil filter matches every diagnostic.
func (s *Store) QueryDiagnostics(ctx context.Context, runID string, filter queryir.Predicate) ([]DiagnosticRecord, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(queryir.Select{
		From:    "diagnostics",
		Columns: diagnosticColumns,
		Filter:  scoped(runID, filter),
	})
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	return s.queryDiagnostics(ctx, query, params...)
}
