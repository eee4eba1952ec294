package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/framegraph/internal/ir"
)

// TraceSnapshot captures the frames of a scenario execution for golden
// comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario"`
	Frames       []FrameTrace `json:"frames"`
}

// Canonical converts the snapshot to an ir.Object so it serializes with
// ir.MarshalCanonical.
func (s *TraceSnapshot) Canonical() ir.Object {
	frames := make(ir.Array, 0, len(s.Frames))
	for _, f := range s.Frames {
		frames = append(frames, ir.Object{
			"frame":    ir.Int(f.Frame),
			"order":    stringArray(f.Order),
			"calls":    stringArray(f.Calls),
			"executed": stringArray(f.Executed),
			"reports":  stringArray(f.Reports),
		})
	}
	return ir.Object{
		"scenario": ir.String(s.ScenarioName),
		"frames":   frames,
	}
}

func stringArray(list []string) ir.Array {
	out := make(ir.Array, 0, len(list))
	for _, s := range list {
		out = append(out, ir.String(s))
	}
	return out
}

// MarshalTrace returns the canonical JSON of a result's frames.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Frames: result.Frames}
	return ir.MarshalCanonical(snapshot.Canonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
