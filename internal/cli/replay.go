package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/framegraph/internal/engine"
	"github.com/roach88/framegraph/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only

	// RunIDs allows overriding the replay run id generator (for testing).
	RunIDs engine.RunIDGenerator
}

// ReplayDiff is a frame position at which a replay compiled differently.
type ReplayDiff struct {
	Position int    `json:"position"`
	Recorded string `json:"recorded"`
	Replayed string `json:"replayed"`
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string       `json:"run_id"`
	ReplayID      string       `json:"replay_id"`
	Source        string       `json:"source"`
	Frames        int          `json:"frames"`
	Diffs         []ReplayDiff `json:"diffs"`
	Deterministic bool         `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run recorded runs and verify determinism",
		Long: `Re-run recorded runs and verify that they compile identically.

Each run is executed again from its recorded description for the same
number of frames. The replay is recorded as a new run in the same
database and its frame hashes are compared with the original's,
position by position.

Exit codes:
  0 - All runs are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, description missing, etc.)

Examples:
  framegraph replay --db ./framegraph.db
  framegraph replay --db ./framegraph.db --run 0192f0c4-...
  framegraph replay --db ./framegraph.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	// Snapshot the runs first: replays are recorded in the same database.
	var runIDs []string
	if opts.RunID != "" {
		runIDs = []string{opts.RunID}
	} else {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, r := range runs {
			runIDs = append(runIDs, r.ID)
		}
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(runIDs)),
		TotalRuns:        len(runIDs),
		AllDeterministic: true,
	}
	if len(runIDs) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(formatter, result)
		}
		fmt.Fprintln(formatter.Writer, "No runs found in database.")
		return nil
	}

	gen := opts.RunIDs
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	for _, id := range runIDs {
		runResult, err := replayAndVerifyRun(ctx, st, id, gen, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", id), err)
		}
		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

// replayAndVerifyRun executes the run's description again and compares the
// replay's frames with the recorded ones.
func replayAndVerifyRun(
	ctx context.Context,
	st *store.Store,
	runID string,
	gen engine.RunIDGenerator,
	logger *slog.Logger,
) (ReplayRunResult, error) {
	state, err := st.GetRunState(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return ReplayRunResult{}, fmt.Errorf("no run %s", runID)
	}
	if err != nil {
		return ReplayRunResult{}, err
	}
	result := ReplayRunResult{
		RunID:  runID,
		Source: state.Run.Source,
		Frames: state.Frames,
		Diffs:  []ReplayDiff{},
	}
	if state.Frames == 0 {
		result.Deterministic = true
		return result, nil
	}

	loaded, err := LoadGraph(state.Run.Source)
	if err != nil {
		return result, err
	}
	summary, err := recordRun(ctx, st, loaded.Graph, state.Run.Source, state.Frames, logger,
		engine.WithRunIDs(gen),
		engine.WithExtents(state.Run.Extents),
	)
	if err != nil {
		return result, err
	}
	result.ReplayID = summary.RunID

	diffs, err := st.CompareRuns(ctx, runID, summary.RunID)
	if err != nil {
		return result, err
	}
	for _, d := range diffs {
		result.Diffs = append(result.Diffs, ReplayDiff{Position: d.Position, Recorded: d.HashA, Replayed: d.HashB})
	}
	result.Deterministic = len(diffs) == 0
	logger.Info("run replayed", "run_id", runID, "replay_id", summary.RunID, "diffs", len(diffs))
	return result, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	if err := formatter.JSON(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)
		fmt.Fprintf(w, "  Frames: %d\n", run.Frames)
		if verbose {
			fmt.Fprintf(w, "  Source: %s\n", run.Source)
			fmt.Fprintf(w, "  Replay: %s\n", run.ReplayID)
		}
		for _, d := range run.Diffs {
			fmt.Fprintf(w, "  frame %d: recorded %s, replayed %s\n",
				d.Position, truncateID(d.Recorded), truncateID(d.Replayed))
		}
		if !run.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
