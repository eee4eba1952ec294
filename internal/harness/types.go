package harness

// FrameTrace records what one executed frame did.
type FrameTrace struct {
	Frame uint32 `json:"frame"`
	// Order lists the scheduled node instances in execution order.
	Order []string `json:"order"`
	// Calls are the device calls the frame made, as recorded by
	// testutil.RecordingDevice.
	Calls []string `json:"calls"`
	// Executed lists node callbacks in the order they ran.
	Executed []string `json:"executed"`
	// Reports are the frame's validation reports, formatted.
	Reports []string `json:"reports"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step applied and every assertion held.
	Pass bool `json:"pass"`

	// RunID is the id the scenario's frames were recorded under.
	RunID string `json:"run_id"`

	// Frames contains one trace per executed frame, oldest first.
	// Used for golden comparison.
	Frames []FrameTrace `json:"frames"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Frames: []FrameTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// LastFrame returns the most recent frame trace, or nil before any frame
// ran.
func (r *Result) LastFrame() *FrameTrace {
	if len(r.Frames) == 0 {
		return nil
	}
	return &r.Frames[len(r.Frames)-1]
}
