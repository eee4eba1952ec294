package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// chainGraph has a four node chain ending in an external reader and one
// node nobody needs.
const chainGraph = `
node: a: create: tex: {
	texture: {format: "rgba8unorm", width: 32, height: 32}
	usage:   "color_attachment"
}
node: b: modify: tex: {usage: "unordered_access", stage: ["compute"]}
node: c: rename: tex2: "tex"
node: d: {
	side_effects: "external"
	read: tex2: {usage: "shader_resource", stage: ["pixel"], shader_var: "tex_in"}
}
node: unused: create: spare: buffer: size: 16
`

// missingGraph reads a resource no node produces.
const missingGraph = `
node: present: {
	side_effects: "external"
	read: missing: usage: "shader_resource"
}
`

// invalidGraph fails description compilation.
const invalidGraph = `node: a: read: x: usage: "bogus"
`

// writeGraph writes src to a .cue file in a fresh temp dir.
func writeGraph(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// execute runs cmd with args and returns stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
