package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/queryir"
	"github.com/roach88/framegraph/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Node     string // optional - filter reports to one node
	Kind     string // optional - filter reports to one kind
	From     int64  // optional - first frame, inclusive
	To       int64  // optional - last frame, inclusive
}

// TraceFrame is one recorded frame in the trace timeline.
type TraceFrame struct {
	Frame     uint32   `json:"frame"`
	Hash      string   `json:"hash"`
	Scheduled []string `json:"scheduled"`
	Culled    []string `json:"culled"`
	Pruned    []string `json:"pruned"`
	// Recompiled is set when the hash differs from the previous frame's.
	Recompiled bool `json:"recompiled"`
}

// TraceReport is one recorded validation report.
type TraceReport struct {
	Frame    uint32 `json:"frame"`
	Node     string `json:"node"`
	Kind     string `json:"kind"`
	Slot     string `json:"slot"`
	Expected string `json:"expected"`
	Observed string `json:"observed"`
}

// TraceDiagnostic is one recorded compile diagnostic.
type TraceDiagnostic struct {
	Frame    uint32 `json:"frame"`
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID       string            `json:"run_id"`
	Source      string            `json:"source"`
	Timeline    []TraceFrame      `json:"timeline"`
	Reports     []TraceReport     `json:"reports"`
	Diagnostics []TraceDiagnostic `json:"diagnostics"`
	Stats       TraceStats        `json:"stats"`
}

// TraceStats holds summary statistics for the run.
type TraceStats struct {
	Frames       int    `json:"frames"`
	FirstFrame   uint32 `json:"first_frame"`
	LastFrame    uint32 `json:"last_frame"`
	Compilations int    `json:"compilations"`
	Reports      int    `json:"reports"`
	Errors       int    `json:"errors"`
	Warnings     int    `json:"warnings"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded frames of a run",
		Long: `Show what a recorded run executed.

The output includes:
- Timeline: every frame with its schedule, marking recompilations
- Reports: validation reports raised while executing
- Diagnostics: compile diagnostics carried by the frames
- Stats: summary statistics for the run

Examples:
  framegraph trace --db ./framegraph.db --run 0192f0c4-...
  framegraph trace --db ./framegraph.db --run 0192f0c4-... --node /lighting
  framegraph trace --db ./framegraph.db --run 0192f0c4-... --kind shader_var --from 10 --to 20
  framegraph trace --db ./framegraph.db --run 0192f0c4-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace (required)")
	_ = cmd.MarkFlagRequired("run")
	cmd.Flags().StringVar(&opts.Node, "node", "", "filter reports to one node")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter reports to one kind (shader_var, render_target)")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first frame to show")
	cmd.Flags().Int64Var(&opts.To, "to", math.MaxUint32, "last frame to show")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts.RunID, traceFilter{
		Node: opts.Node,
		Kind: opts.Kind,
		From: opts.From,
		To:   opts.To,
	})
	if errors.Is(err, sql.ErrNoRows) {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("no run %s", opts.RunID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}
	outputTraceText(formatter.Writer, result)
	return nil
}

// traceFilter narrows what a trace shows. The frame range applies to the
// timeline, reports and diagnostics; node and kind to reports only. Stats
// always cover the whole run.
type traceFilter struct {
	Node string
	Kind string
	From int64
	To   int64
}

// frames returns the frame range predicate, or nil when the range is open.
func (f traceFilter) frames() queryir.Predicate {
	if f.From <= 0 && f.To >= math.MaxUint32 {
		return nil
	}
	return queryir.Between{Field: "frame", Lo: f.From, Hi: f.To}
}

func (f traceFilter) reports() queryir.Predicate {
	var preds []queryir.Predicate
	if f.Node != "" {
		preds = append(preds, queryir.Equals{Field: "node", Value: ir.String(f.Node)})
	}
	if f.Kind != "" {
		preds = append(preds, queryir.Equals{Field: "kind", Value: ir.String(f.Kind)})
	}
	if p := f.frames(); p != nil {
		preds = append(preds, p)
	}
	if len(preds) == 0 {
		return nil
	}
	return queryir.And{Predicates: preds}
}

func (f traceFilter) contains(frame uint32) bool {
	return int64(frame) >= f.From && int64(frame) <= f.To
}

// buildTrace reads a run back from st.
func buildTrace(ctx context.Context, st *store.Store, runID string, filter traceFilter) (TraceResult, error) {
	state, err := st.GetRunState(ctx, runID)
	if err != nil {
		return TraceResult{}, err
	}
	result := TraceResult{
		RunID:       runID,
		Source:      state.Run.Source,
		Timeline:    []TraceFrame{},
		Reports:     []TraceReport{},
		Diagnostics: []TraceDiagnostic{},
		Stats: TraceStats{
			Frames:       state.Frames,
			FirstFrame:   state.FirstFrame,
			LastFrame:    state.LastFrame,
			Compilations: state.Compilations,
			Reports:      state.Reports,
			Errors:       state.Errors,
			Warnings:     state.Warnings,
		},
	}

	frames, err := st.ReadFrames(ctx, runID)
	if err != nil {
		return result, err
	}
	prev := ""
	for _, f := range frames {
		recompiled := f.Hash != prev
		prev = f.Hash
		if !filter.contains(f.Frame) {
			continue
		}
		result.Timeline = append(result.Timeline, TraceFrame{
			Frame:      f.Frame,
			Hash:       f.Hash,
			Scheduled:  nonNil(f.Scheduled),
			Culled:     nonNil(f.Culled),
			Pruned:     nonNil(f.Pruned),
			Recompiled: recompiled,
		})
	}

	reports, err := st.QueryReports(ctx, runID, filter.reports())
	if err != nil {
		return result, err
	}
	for _, r := range reports {
		result.Reports = append(result.Reports, TraceReport{
			Frame:    r.Frame,
			Node:     r.Node,
			Kind:     r.Kind,
			Slot:     r.Slot,
			Expected: r.Expected,
			Observed: r.Observed,
		})
	}

	diags, err := st.QueryDiagnostics(ctx, runID, filter.frames())
	if err != nil {
		return result, err
	}
	for _, d := range diags {
		result.Diagnostics = append(result.Diagnostics, TraceDiagnostic{
			Frame:    d.Frame,
			Code:     d.Code,
			Severity: d.Severity,
			Message:  d.Message,
		})
	}
	return result, nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	fmt.Fprintf(w, "Source: %s\n", result.Source)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no frames)")
	}
	for _, f := range result.Timeline {
		marker := " "
		if f.Recompiled {
			marker = "*"
		}
		fmt.Fprintf(w, "%s [%d] %s %v\n", marker, f.Frame, truncateID(f.Hash), f.Scheduled)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Reports ===")
	if len(result.Reports) == 0 {
		fmt.Fprintln(w, "  (no reports)")
	}
	for _, r := range result.Reports {
		observed := r.Observed
		if observed == "" {
			observed = "nothing"
		}
		fmt.Fprintf(w, "  [%d] %s %s %s: %s, expected %s\n", r.Frame, r.Node, r.Kind, r.Slot, observed, r.Expected)
	}
	fmt.Fprintln(w)

	if len(result.Diagnostics) > 0 {
		fmt.Fprintln(w, "=== Diagnostics ===")
		for _, d := range result.Diagnostics {
			fmt.Fprintf(w, "  [%d] %s %s: %s\n", d.Frame, d.Severity, d.Code, d.Message)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Frames:       %d\n", result.Stats.Frames)
	fmt.Fprintf(w, "  Compilations: %d\n", result.Stats.Compilations)
	fmt.Fprintf(w, "  Reports:      %d\n", result.Stats.Reports)
	fmt.Fprintf(w, "  Errors:       %d\n", result.Stats.Errors)
	fmt.Fprintf(w, "  Warnings:     %d\n", result.Stats.Warnings)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
