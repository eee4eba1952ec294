package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/framegraph/internal/desc"
	"github.com/roach88/framegraph/internal/engine"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Frames      int
	ShuffleSeed uint64

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunSummary describes a recorded run.
type RunSummary struct {
	RunID       string          `json:"run_id"`
	Source      string          `json:"source"`
	Frames      int             `json:"frames"`
	Reports     int             `json:"reports"`
	Hash        string          `json:"hash"`
	Diagnostics []ir.Diagnostic `json:"diagnostics"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <graph>",
		Short: "Execute frames of a graph and record them",
		Long: `Install a graph description and execute frames against a recording
device.

Every frame is recorded in a SQLite database (created if it doesn't
exist) together with its validation reports and compile diagnostics.
The run id printed at the end names the run for trace and replay.

Example:
  framegraph run --db ./framegraph.db --frames 3 ./graphs/deferred.cue
  framegraph run --db /tmp/test.db ./graphs/deferred --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Frames, "frames", 1, "number of frames to execute")
	cmd.Flags().Uint64Var(&opts.ShuffleSeed, "shuffle-seed", 0, "declare pending nodes in a seeded random order")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runGraph(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if opts.Frames <= 0 {
		return NewExitError(ExitCommandError, "--frames must be positive")
	}

	loaded, err := LoadGraph(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing)
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	engineOpts := []engine.Option{engine.WithRunIDs(runIDs)}
	if cmd.Flags().Changed("shuffle-seed") {
		engineOpts = append(engineOpts, engine.WithShuffleSeed(opts.ShuffleSeed))
	}

	summary, err := recordRun(ctx, st, loaded.Graph, loaded.Source, opts.Frames, logger, engineOpts...)
	if err != nil {
		if errors.Is(err, context.Canceled) && summary != nil {
			logger.Info("run interrupted", "run_id", summary.RunID, "frames", summary.Frames)
		} else {
			return WrapExitError(ExitFailure, "run failed", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: summary, RunID: summary.RunID})
	}
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Run %s\n", summary.RunID)
	fmt.Fprintf(w, "  Frames:  %d\n", summary.Frames)
	fmt.Fprintf(w, "  Reports: %d\n", summary.Reports)
	fmt.Fprintf(w, "  Hash:    %s\n", summary.Hash)
	printDiagnostics(w, summary.Diagnostics)
	return nil
}

// recordRun installs g, executes frames frames and records each of them in
// st. A cancelled context stops the run between frames and returns the
// summary of what was recorded so far.
func recordRun(
	ctx context.Context,
	st *store.Store,
	g *desc.Graph,
	source string,
	frames int,
	logger *slog.Logger,
	opts ...engine.Option,
) (*RunSummary, error) {
	rt, err := installGraph(g, logger, opts...)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	summary := &RunSummary{RunID: rt.RunID(), Source: source, Diagnostics: []ir.Diagnostic{}}
	err = st.WriteRun(ctx, store.Run{
		ID:            rt.RunID(),
		Source:        source,
		Extents:       rt.Extents(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("run started", "run_id", rt.RunID(), "source", source, "frames", frames)

	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		frame := rt.Compile()
		before := len(rt.Reports())
		if err := rt.RunNodes(ctx); err != nil {
			return summary, err
		}
		n := rt.Frame()
		reports := rt.Reports()[before:]

		rec, err := store.NewFrameRecord(rt.RunID(), n, frame)
		if err != nil {
			return summary, fmt.Errorf("record frame %d: %w", n, err)
		}
		if _, err := st.RecordFrame(ctx, rec, reports, frame.Diagnostics); err != nil {
			return summary, err
		}
		for _, r := range reports {
			logger.Warn("validation report", "frame", n, "report", r.String())
		}

		summary.Frames++
		summary.Reports += len(reports)
		summary.Hash = rec.Hash
		summary.Diagnostics = nonNil(frame.Diagnostics)
	}
	logger.Info("run finished", "run_id", rt.RunID(), "frames", summary.Frames, "reports", summary.Reports)
	return summary, nil
}
