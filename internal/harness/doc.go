// Package harness provides conformance testing for frame graph
// descriptions.
//
// The harness installs a CUE description into a runtime backed by a
// recording device, applies a scripted sequence of edits and frame runs,
// and checks what the runtime scheduled, executed and reported.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	graph: ../graphs/chain.cue
//	extents: {viewport: 2}
//	steps:
//	  - run: 1
//	  - unregister: /c
//	  - drift: {node: /d, var: tex_in, handle: 999}
//	  - run: 1
//	assertions:
//	  - type: order
//	    nodes: [/a, /b, /c, /d]
//	  - type: report_count
//	    node: /d
//	    count: 1
//
// Steps are run, unregister, register, enable, disable, fill_slot,
// clear_slot, set_resolution, set_dynamic_resolution and drift. A step the
// runtime refuses fails the scenario but does not stop it.
//
// # Assertion Types
//
//   - order: the last executed frame scheduled exactly these instances
//   - executed: a node's callback ran exactly N times
//   - culled: the last compilation culled exactly these nodes
//   - report_count: N validation reports were recorded
//   - resolve: a name resolves to a target
//   - diagnostic: the last compilation carried a diagnostic code
//
// # Deterministic Testing
//
// Every scenario runs with a deterministic frame clock starting at 1, the
// scenario name as run id, and sequential allocator handles, so traces
// are identical across runs. Frames and reports are recorded in an
// in-memory store; report_count assertions read them back from it.
//
// RunWithGolden compares the canonical JSON of a scenario's frame traces
// against testdata/golden/<name>.golden.
package harness
