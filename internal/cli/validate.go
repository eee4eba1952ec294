package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/framegraph/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool            `json:"valid"`
	Errors      int             `json:"errors"`
	Warnings    int             `json:"warnings"`
	Diagnostics []ir.Diagnostic `json:"diagnostics"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph>",
		Short: "Check a graph description and print its diagnostics",
		Long: `Compile a CUE graph description and report its diagnostics only.

Reports missing producers, dependency cycles, rename conflicts,
declaration conflicts and unsized textures. Warnings do not fail
validation.

Exit codes:
  0 - No error diagnostics
  1 - One or more error diagnostics
  2 - The description could not be loaded`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	frame, _, err := compileGraph(opts, path, cmd.ErrOrStderr())
	if err != nil {
		return outputLoadError(formatter, err)
	}

	result := ValidationResult{Diagnostics: nonNil(frame.Diagnostics)}
	for _, d := range frame.Diagnostics {
		formatter.VerboseLog("%s %s", d.Severity, d.Error())
		switch d.Severity {
		case ir.SeverityError:
			result.Errors++
		case ir.SeverityWarning:
			result.Warnings++
		}
	}
	result.Valid = result.Errors == 0

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = firstErrorDiagnostic(frame.Diagnostics)
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		printDiagnostics(w, frame.Diagnostics)
		if result.Valid {
			fmt.Fprintf(w, "✓ %s is valid (%d warning(s))\n", path, result.Warnings)
		} else {
			fmt.Fprintf(w, "✗ %s has %d error(s), %d warning(s)\n", path, result.Errors, result.Warnings)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", result.Errors))
	}
	return nil
}
