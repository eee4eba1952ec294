package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/framegraph/internal/desc"
	"github.com/roach88/framegraph/internal/engine"
	"github.com/roach88/framegraph/internal/testutil"
)

// newLogger returns a text logger on w: debug under --verbose, warnings
// otherwise.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// graphRuntime is an installed description executing against a recording
// device.
type graphRuntime struct {
	*engine.Runtime
	dev *testutil.RecordingDevice
}

// installGraph installs g into a fresh runtime backed by testutil fakes.
// Dynamic resolutions the runtime rejects are logged and skipped.
func installGraph(g *desc.Graph, logger *slog.Logger, opts ...engine.Option) (*graphRuntime, error) {
	dev := testutil.NewRecordingDevice()
	opts = append([]engine.Option{
		engine.WithDevice(dev),
		engine.WithAllocator(testutil.NewAllocator()),
		engine.WithLogger(logger),
	}, opts...)
	rt := engine.New(opts...)

	handles, err := desc.Install(rt, g)
	if err != nil {
		if len(handles) < len(g.Nodes) {
			rt.Close()
			return nil, fmt.Errorf("install graph: %w", err)
		}
		logger.Warn("description partly rejected", "error", err)
	}
	return &graphRuntime{Runtime: rt, dev: dev}, nil
}
