package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/framegraph/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult summarises one compiled frame.
type CompilationResult struct {
	Source      string          `json:"source"`
	Hash        string          `json:"hash"`
	Schedule    []string        `json:"schedule"`
	Culled      []string        `json:"culled"`
	Pruned      []string        `json:"pruned"`
	Resources   int             `json:"resources"`
	Diagnostics []ir.Diagnostic `json:"diagnostics"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <graph>",
		Short: "Compile a graph description and print its schedule",
		Long: `Compile a CUE graph description into a frame.

<graph> is a .cue file or a directory holding one CUE package. The
command prints the execution order, culled and pruned nodes, the number
of physical resources and the frame hash. With --output the canonical
JSON of the frame is written to a file.

Exit codes:
  0 - Compiled without error diagnostics
  1 - The frame carries error diagnostics
  2 - The description could not be loaded`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the canonical frame JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	frame, result, err := compileGraph(opts.RootOptions, path, cmd.ErrOrStderr())
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Compiled %d node instance(s) from %s", len(frame.Nodes), path)

	if opts.Output != "" {
		if err := writeFrameToFile(frame, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if frame.HasErrors() {
			resp.Status = "error"
			resp.Error = firstErrorDiagnostic(frame.Diagnostics)
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		printCompilation(formatter.Writer, result, opts.Output)
	}

	if frame.HasErrors() {
		return NewExitError(ExitFailure, fmt.Sprintf("frame has %d error diagnostic(s)", countErrors(frame.Diagnostics)))
	}
	return nil
}

// compileGraph loads and compiles the description at path.
func compileGraph(opts *RootOptions, path string, logw io.Writer) (*ir.Frame, *CompilationResult, error) {
	loaded, err := LoadGraph(path)
	if err != nil {
		return nil, nil, err
	}
	rt, err := installGraph(loaded.Graph, newLogger(opts, logw))
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	defer rt.Close()

	frame := rt.Compile()
	hash, err := frame.Hash()
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("hash frame: %v", err)}
	}
	return frame, &CompilationResult{
		Source:      loaded.Source,
		Hash:        hash,
		Schedule:    nonNil(frame.ScheduledLabels()),
		Culled:      nonNil(frame.Culled),
		Pruned:      nonNil(frame.Pruned),
		Resources:   len(frame.Resources),
		Diagnostics: nonNil(frame.Diagnostics),
	}, nil
}

func printCompilation(w io.Writer, result *CompilationResult, outputFile string) {
	status := "✓"
	if countErrors(result.Diagnostics) > 0 {
		status = "✗"
	}
	fmt.Fprintf(w, "%s Compiled %s: %d scheduled, %d culled, %d pruned, %d resource(s)\n\n",
		status, result.Source, len(result.Schedule), len(result.Culled), len(result.Pruned), result.Resources)

	if len(result.Schedule) > 0 {
		fmt.Fprintln(w, "Schedule:")
		for i, name := range result.Schedule {
			fmt.Fprintf(w, "  %d. %s\n", i+1, name)
		}
		fmt.Fprintln(w)
	}
	if len(result.Culled) > 0 {
		fmt.Fprintf(w, "Culled: %s\n", strings.Join(result.Culled, ", "))
	}
	if len(result.Pruned) > 0 {
		fmt.Fprintf(w, "Pruned: %s\n", strings.Join(result.Pruned, ", "))
	}
	printDiagnostics(w, result.Diagnostics)

	fmt.Fprintf(w, "Hash: %s\n", result.Hash)
	if outputFile != "" {
		fmt.Fprintf(w, "Wrote canonical frame to %s\n", outputFile)
	}
}

func printDiagnostics(w io.Writer, diags []ir.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintln(w, "Diagnostics:")
	for _, d := range diags {
		fmt.Fprintf(w, "  [%s] %s\n", d.Severity, d.Error())
	}
	fmt.Fprintln(w)
}

// outputLoadError reports a description that could not be loaded. Load
// errors are command-level errors (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code, message = loadErr.Code, loadErr.Message
	}

	if formatter.Format == "json" {
		var details any
		switch {
		case loadErr != nil && loadErr.Pos.IsValid():
			details = map[string]any{
				"file":   loadErr.Pos.Filename(),
				"line":   loadErr.Pos.Line(),
				"column": loadErr.Pos.Column(),
			}
		case loadErr != nil && len(loadErr.Problems) > 0:
			details = map[string]any{"problems": loadErr.Problems}
		}
		if err := formatter.Error(code, message, details); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Loading description failed")
		if loadErr != nil && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		if loadErr != nil && len(loadErr.Problems) > 0 {
			for _, p := range loadErr.Problems {
				fmt.Fprintf(formatter.Writer, "  %s\n", p.Error())
			}
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", code, message)
		}
	}
	return WrapExitError(ExitCommandError, "loading description failed", err)
}

func firstErrorDiagnostic(diags []ir.Diagnostic) *CLIError {
	for _, d := range diags {
		if d.Severity == ir.SeverityError {
			return &CLIError{Code: d.Code, Message: d.Message}
		}
	}
	return nil
}

func countErrors(diags []ir.Diagnostic) int {
	n := 0
	for _, d := range diags {
		if d.Severity == ir.SeverityError {
			n++
		}
	}
	return n
}

// writeFrameToFile writes the frame's canonical JSON, the form its hash is
// computed over.
func writeFrameToFile(frame *ir.Frame, filename string) error {
	data, err := ir.MarshalCanonical(frame.Canonical())
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
