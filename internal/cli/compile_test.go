package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/framegraph/internal/ir"
)

func TestCompile_Text(t *testing.T) {
	path := writeGraph(t, chainGraph)

	output, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)

	assert.Contains(t, output, "✓ Compiled")
	assert.Contains(t, output, "4 scheduled, 1 culled, 0 pruned")
	assert.Contains(t, output, "1. /a")
	assert.Contains(t, output, "4. /d")
	assert.Contains(t, output, "Culled: /unused")
	assert.Contains(t, output, "Hash: ")
}

func TestCompile_JSON(t *testing.T) {
	path := writeGraph(t, chainGraph)

	output, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, path, resp.Data.Source)
	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, resp.Data.Schedule)
	assert.Equal(t, []string{"/unused"}, resp.Data.Culled)
	assert.Empty(t, resp.Data.Pruned)
	assert.NotEmpty(t, resp.Data.Hash)
	assert.NotNil(t, resp.Data.Diagnostics)
}

func TestCompile_HashIsStable(t *testing.T) {
	path := writeGraph(t, chainGraph)

	hash := func() string {
		output, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), path)
		require.NoError(t, err)
		var resp struct {
			Data CompilationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(output), &resp))
		return resp.Data.Hash
	}
	assert.Equal(t, hash(), hash())
}

func TestCompile_OutputToFile(t *testing.T) {
	path := writeGraph(t, chainGraph)
	outputFile := filepath.Join(t.TempDir(), "frame.json")

	output, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), path, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, output, "Wrote canonical frame to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Contains(t, frame, "order")
	assert.Contains(t, frame, "culled")
}

func TestCompile_ErrorDiagnosticsExitFailure(t *testing.T) {
	path := writeGraph(t, missingGraph)

	output, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ Compiled")
	assert.Contains(t, output, "F201")
	assert.Contains(t, output, "Pruned: /present")
}

func TestCompile_ErrorDiagnosticsJSON(t *testing.T) {
	path := writeGraph(t, missingGraph)

	output, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "F201", resp.Error.Code)
}

func TestCompile_InvalidDescription(t *testing.T) {
	path := writeGraph(t, invalidGraph)

	output, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "✗ Loading description failed")
	assert.Contains(t, output, ErrCodeNodeUse)
	assert.Contains(t, output, `unknown usage "bogus"`)
}

func TestCompile_InvalidDescriptionJSON(t *testing.T) {
	path := writeGraph(t, invalidGraph)

	output, err := execute(NewCompileCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNodeUse, resp.Error.Code)
}

func TestCompile_MissingPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.cue")

	output, err := execute(NewCompileCommand(&RootOptions{Format: "text"}), missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, ErrCodeNotFound)
}

func TestCompile_RequiresArgument(t *testing.T) {
	_, err := execute(NewCompileCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
}

func TestWriteFrameToFile_MatchesHash(t *testing.T) {
	path := writeGraph(t, chainGraph)
	frame, result, err := compileGraph(&RootOptions{Format: "text"}, path, os.Stderr)
	require.NoError(t, err)

	outputFile := filepath.Join(t.TempDir(), "frame.json")
	require.NoError(t, writeFrameToFile(frame, outputFile))

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	want, err := ir.MarshalCanonical(frame.Canonical())
	require.NoError(t, err)
	assert.Equal(t, string(want), string(data))
	assert.NotEmpty(t, result.Hash)
}
