package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: chain_order
description: "The chain runs in dependency order"
graph: chain.cue
steps:
  - run: 2
assertions:
  - type: order
    nodes: [/a, /b, /c, /d]
  - type: culled
    nodes: [/unused]
`

const failingScenario = `name: chain_wrong
description: "Asserts an order the chain never produces"
graph: chain.cue
steps:
  - run: 1
assertions:
  - type: order
    nodes: [/d, /c, /b, /a]
`

// writeScenarios lays out a scenarios directory next to the chain graph.
func writeScenarios(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chain.cue"), []byte(chainGraph), 0o644))
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTest_Passing(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"chain_order.yaml": passingScenario})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ chain_order")
	assert.Contains(t, output, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, output, "✓ All scenarios passed")
}

func TestTest_Failing(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"chain_order.yaml": passingScenario,
		"chain_wrong.yaml": failingScenario,
	})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ chain_wrong")
	assert.Contains(t, output, "Assertion failed: order")
	assert.Contains(t, output, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTest_JSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"chain_order.yaml": passingScenario,
		"chain_wrong.yaml": failingScenario,
	})

	output, err := execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTest_Filter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"chain_order.yaml": passingScenario,
		"chain_wrong.yaml": failingScenario,
	})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "*_order")
	require.NoError(t, err)
	assert.Contains(t, output, "1 total")
	assert.NotContains(t, output, "chain_wrong")
}

func TestTest_GoldenUpdateThenCompare(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"chain_order.yaml": passingScenario})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, output, "✓ chain_order (golden updated)")

	goldenPath := filepath.Join(dir, "golden", "chain_order.golden")
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"chain_order"`)

	_, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario":"stale"}`), 0o644))
	output, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, output, "trace does not match golden file")
}

func TestTest_InvalidScenario(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"broken.yaml": "name: broken\nassertion: []\n"})

	output, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ broken.yaml")
	assert.Contains(t, output, "failed to load scenario")
}

func TestTest_NoScenarios(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFindScenarioFiles_SkipsGolden(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"a.yaml": passingScenario, "b.yml": passingScenario, "notes.txt": "x"})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "c.yaml"), []byte("x"), 0o644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "chain.golden"), goldenFilePath(filepath.Join("scenarios", "chain.yaml")))
}
