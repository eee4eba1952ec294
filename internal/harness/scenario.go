package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/framegraph/internal/multiplex"
)

// Scenario defines a conformance test scenario.
// A scenario installs a frame graph description, applies a sequence of
// edits and frame runs, and asserts on what the runtime scheduled and
// reported.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the run id the
	// scenario's frames are recorded under and the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is the path of the CUE description to install.
	// Relative paths are resolved against the scenario file's directory.
	Graph string `yaml:"graph"`

	// Extents overrides the description's multiplexing extents, keyed by
	// dimension name.
	Extents map[string]uint32 `yaml:"extents,omitempty"`

	// Steps run in order. Each step sets exactly one field.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	// Supported types: order, executed, culled, report_count, resolve,
	// diagnostic
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one edit or frame run.
type Step struct {
	// Run executes the given number of frames.
	Run *int `yaml:"run,omitempty"`

	// Unregister releases the named node.
	Unregister string `yaml:"unregister,omitempty"`

	// Register registers the named description node again, replacing the
	// live node of that name if there is one.
	Register string `yaml:"register,omitempty"`

	// Enable and Disable toggle the named node.
	Enable  string `yaml:"enable,omitempty"`
	Disable string `yaml:"disable,omitempty"`

	FillSlot  *SlotStep `yaml:"fill_slot,omitempty"`
	ClearSlot string    `yaml:"clear_slot,omitempty"`

	SetResolution        *ResolutionStep `yaml:"set_resolution,omitempty"`
	SetDynamicResolution *ResolutionStep `yaml:"set_dynamic_resolution,omitempty"`

	// Drift makes the named node rebind a shader variable the next time
	// it executes.
	Drift *DriftStep `yaml:"drift,omitempty"`
}

// SlotStep fills a slot from the root namespace.
type SlotStep struct {
	Slot   string `yaml:"slot"`
	Target string `yaml:"target"`
}

// ResolutionStep sets a static or dynamic auto-resolution.
type ResolutionStep struct {
	Type   string `yaml:"type"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	// ExpectError marks a step the runtime must reject.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// DriftStep rebinds Var to Handle from inside Node's callback.
type DriftStep struct {
	Node   string `yaml:"node"`
	Var    string `yaml:"var"`
	Handle uint64 `yaml:"handle,omitempty"`
}

// Assertion validates the state left by the steps.
type Assertion struct {
	// Type specifies the assertion type:
	// - "order": the last frame scheduled exactly Nodes, in order
	// - "executed": Node's callback ran exactly Count times
	// - "culled": the last compilation culled exactly Nodes
	// - "report_count": Count reports were recorded, for Node if set
	// - "resolve": Name resolves to Target
	// - "diagnostic": the last compilation carried Code, for Node if set
	Type string `yaml:"type"`

	Nodes  []string `yaml:"nodes,omitempty"`
	Node   string   `yaml:"node,omitempty"`
	Count  int      `yaml:"count,omitempty"`
	Name   string   `yaml:"name,omitempty"`
	Target string   `yaml:"target,omitempty"`
	Code   string   `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertOrder       = "order"
	AssertExecuted    = "executed"
	AssertCulled      = "culled"
	AssertReportCount = "report_count"
	AssertResolve     = "resolve"
	AssertDiagnostic  = "diagnostic"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields so "assertion:" is not silently ignored.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) {
		scenario.Graph = filepath.Join(filepath.Dir(path), scenario.Graph)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
		return fmt.Errorf("graph file not found: %s", s.Graph)
	}
	for dim := range s.Extents {
		if _, ok := multiplex.ParseDim(dim); !ok {
			return fmt.Errorf("extents: unknown dimension %q", dim)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	set := 0
	count := func(ok bool) {
		if ok {
			set++
		}
	}
	count(st.Run != nil)
	count(st.Unregister != "")
	count(st.Register != "")
	count(st.Enable != "")
	count(st.Disable != "")
	count(st.FillSlot != nil)
	count(st.ClearSlot != "")
	count(st.SetResolution != nil)
	count(st.SetDynamicResolution != nil)
	count(st.Drift != nil)
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, set)
	}

	switch {
	case st.Run != nil && *st.Run <= 0:
		return fmt.Errorf("steps[%d]: run must be positive", index)
	case st.FillSlot != nil && (st.FillSlot.Slot == "" || st.FillSlot.Target == ""):
		return fmt.Errorf("steps[%d]: fill_slot requires slot and target", index)
	case st.SetResolution != nil && st.SetResolution.Type == "":
		return fmt.Errorf("steps[%d]: set_resolution requires type", index)
	case st.SetDynamicResolution != nil && st.SetDynamicResolution.Type == "":
		return fmt.Errorf("steps[%d]: set_dynamic_resolution requires type", index)
	case st.Drift != nil && (st.Drift.Node == "" || st.Drift.Var == ""):
		return fmt.Errorf("steps[%d]: drift requires node and var", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOrder:
		if len(a.Nodes) == 0 {
			return fmt.Errorf("assertions[%d]: nodes list is required for order", index)
		}
	case AssertExecuted:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for executed", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for executed", index)
		}
	case AssertCulled:
		// An empty list asserts nothing was culled.
	case AssertReportCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for report_count", index)
		}
	case AssertResolve:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for resolve", index)
		}
	case AssertDiagnostic:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for diagnostic", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
