package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/framegraph/internal/engine"
	"github.com/roach88/framegraph/internal/ir"
	"github.com/roach88/framegraph/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	// Frames is the full trace for context.
	Frames []FrameTrace
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Frames) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, f := range e.Frames {
			fmt.Fprintf(&buf, "  [frame %d] %s\n", f.Frame, strings.Join(f.Order, " "))
			for _, r := range f.Reports {
				fmt.Fprintf(&buf, "    report: %s\n", r)
			}
		}
	}
	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	RunID   string
	Runtime *engine.Runtime
	// Frame is the last compiled frame.
	Frame *ir.Frame
	// Executed counts callback executions by node name.
	Executed map[string]int
}

// assertOrder checks that the last executed frame scheduled exactly the
// expected instances in order.
func assertOrder(result *Result, a Assertion) error {
	last := result.LastFrame()
	if last == nil {
		return &AssertionError{
			Type:     AssertOrder,
			Expected: fmt.Sprintf("order %v", a.Nodes),
			Actual:   "no frame was executed",
		}
	}
	if !slices.Equal(last.Order, a.Nodes) {
		return &AssertionError{
			Type:     AssertOrder,
			Expected: fmt.Sprintf("order %v", a.Nodes),
			Actual:   fmt.Sprintf("order %v", last.Order),
			Frames:   result.Frames,
		}
	}
	return nil
}

// assertExecuted checks how many times a node's callback ran across every
// frame.
func assertExecuted(result *Result, a Assertion, executed map[string]int) error {
	got := executed[nodeName(a.Node)]
	if got != a.Count {
		return &AssertionError{
			Type:     AssertExecuted,
			Expected: fmt.Sprintf("%s executed %d times", a.Node, a.Count),
			Actual:   fmt.Sprintf("%d executions", got),
			Frames:   result.Frames,
		}
	}
	return nil
}

// assertCulled compares the culled set of the last compilation, ignoring
// order.
func assertCulled(a Assertion, frame *ir.Frame) error {
	want := slices.Sorted(slices.Values(a.Nodes))
	got := slices.Sorted(slices.Values(frame.Culled))
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertCulled,
			Expected: fmt.Sprintf("culled %v", want),
			Actual:   fmt.Sprintf("culled %v", got),
		}
	}
	return nil
}

// assertReportCount counts the reports recorded for the run, or for one
// node when set.
func assertReportCount(actx *AssertionContext, a Assertion) error {
	var (
		reports []store.ReportRecord
		err     error
	)
	if a.Node != "" {
		reports, err = actx.Store.ReadNodeReports(actx.Ctx, actx.RunID, nodeName(a.Node))
	} else {
		reports, err = actx.Store.ReadReports(actx.Ctx, actx.RunID)
	}
	if err != nil {
		return fmt.Errorf("read reports: %w", err)
	}
	if len(reports) != a.Count {
		what := "reports"
		if a.Node != "" {
			what = "reports for " + a.Node
		}
		actual := make([]string, 0, len(reports))
		for _, r := range reports {
			actual = append(actual, fmt.Sprintf("frame %d %s %s", r.Frame, r.Node, r.Slot))
		}
		return &AssertionError{
			Type:     AssertReportCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d: %v", len(reports), actual),
		}
	}
	return nil
}

// assertResolve checks what a name resolves to after the last compilation.
// An empty target asserts the name does not resolve.
func assertResolve(rt *engine.Runtime, a Assertion) error {
	got, ok := rt.Resolve(a.Name)
	if !ok {
		got = ""
	}
	if got != a.Target {
		actual := "unresolved"
		if ok {
			actual = got
		}
		return &AssertionError{
			Type:     AssertResolve,
			Expected: fmt.Sprintf("%s resolves to %q", a.Name, a.Target),
			Actual:   actual,
		}
	}
	return nil
}

// assertDiagnostic checks that the last compilation carried a diagnostic
// with the given code, raised by Node when set.
func assertDiagnostic(a Assertion, frame *ir.Frame) error {
	for _, d := range frame.Diagnostics {
		if d.Code == a.Code && (a.Node == "" || d.Node == nodeName(a.Node)) {
			return nil
		}
	}
	actual := make([]string, 0, len(frame.Diagnostics))
	for _, d := range frame.Diagnostics {
		actual = append(actual, d.Error())
	}
	expected := a.Code
	if a.Node != "" {
		expected += " on " + a.Node
	}
	return &AssertionError{
		Type:     AssertDiagnostic,
		Expected: expected,
		Actual:   fmt.Sprintf("diagnostics %v", actual),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOrder:
			err = assertOrder(result, assertion)
		case AssertExecuted:
			err = assertExecuted(result, assertion, actx.Executed)
		case AssertCulled:
			err = assertCulled(assertion, actx.Frame)
		case AssertReportCount:
			if actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: report_count requires a store", i)
			} else {
				err = assertReportCount(actx, assertion)
			}
		case AssertResolve:
			err = assertResolve(actx.Runtime, assertion)
		case AssertDiagnostic:
			err = assertDiagnostic(assertion, actx.Frame)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
