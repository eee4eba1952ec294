package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runs(n int) *int { return &n }

func TestRun_TestdataScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_FramesNumberedAndRunIDFixed(t *testing.T) {
	scenario := &Scenario{
		Name:        "numbered",
		Description: "Three frames of the chain",
		Graph:       "testdata/graphs/chain.cue",
		Steps:       []Step{{Run: runs(3)}},
		Assertions:  []Assertion{{Type: AssertCulled, Nodes: []string{"/unused"}}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "numbered", result.RunID)

	require.Len(t, result.Frames, 3)
	for i, f := range result.Frames {
		assert.Equal(t, uint32(i+1), f.Frame)
		assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, f.Order)
		assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, f.Executed)
		assert.Empty(t, f.Reports)
	}
}

func TestRun_DriftReportedInTrace(t *testing.T) {
	scenario := &Scenario{
		Name:        "drift_trace",
		Description: "Drift shows up in the frame that ran it",
		Graph:       "testdata/graphs/chain.cue",
		Steps: []Step{
			{Run: runs(1)},
			{Drift: &DriftStep{Node: "d", Var: "tex_in", Handle: 7}},
			{Run: runs(1)},
		},
		Assertions: []Assertion{{Type: AssertReportCount, Node: "/d", Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Frames, 2)
	assert.Empty(t, result.Frames[0].Reports)
	require.Len(t, result.Frames[1].Reports, 1)
	assert.Contains(t, result.Frames[1].Reports[0], "node /d left shader_var tex_in")
}

func TestRun_FailedAssertionFailsResult(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_order",
		Description: "Expects an order the graph does not produce",
		Graph:       "testdata/graphs/chain.cue",
		Steps:       []Step{{Run: runs(1)}},
		Assertions: []Assertion{
			{Type: AssertOrder, Nodes: []string{"/d", "/c", "/b", "/a"}},
			{Type: AssertExecuted, Node: "/a", Count: 5},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: order")
	assert.Contains(t, result.Errors[1], "Assertion failed: executed")
}

func TestRun_RefusedStepDoesNotAbort(t *testing.T) {
	scenario := &Scenario{
		Name:        "refused",
		Description: "Unregistering an unknown node fails the scenario",
		Graph:       "testdata/graphs/chain.cue",
		Steps: []Step{
			{Unregister: "/nope"},
			{Register: "/nope"},
			{SetDynamicResolution: &ResolutionStep{Type: "missing", Width: 1, Height: 1}},
			{Run: runs(1)},
		},
		Assertions: []Assertion{{Type: AssertOrder, Nodes: []string{"/a", "/b", "/c", "/d"}}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "steps[0]: no registered node /nope")
	assert.Contains(t, result.Errors[1], "steps[1]: register /nope")
	assert.Contains(t, result.Errors[2], "steps[2]: set_dynamic_resolution")
	require.Len(t, result.Frames, 1)
}

func TestRun_ExpectedRejectionNotRaised(t *testing.T) {
	scenario := &Scenario{
		Name:        "accepted",
		Description: "A valid dynamic resolution marked as expected to fail",
		Graph:       "testdata/graphs/resolution.cue",
		Steps: []Step{
			{SetDynamicResolution: &ResolutionStep{Type: "main", Width: 32, Height: 16, ExpectError: true}},
			{Run: runs(1)},
		},
		Assertions: []Assertion{{Type: AssertExecuted, Node: "/draw", Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected the runtime to reject it")
}

func TestRun_MissingGraph(t *testing.T) {
	scenario := &Scenario{
		Name:       "missing",
		Graph:      filepath.Join(t.TempDir(), "missing.cue"),
		Steps:      []Step{{Run: runs(1)}},
		Assertions: []Assertion{{Type: AssertCulled}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load graph")
}
