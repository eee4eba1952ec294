package store

import (
	"context"
	"fmt"
)

// RunState summarises a stored run.
type RunState struct {
	Run    Run
	Frames int
	// FirstFrame and LastFrame are zero when Frames is zero.
	FirstFrame uint32
	LastFrame  uint32
	// Compilations counts the distinct frame hashes in frame order: a
	// frame whose hash differs from its predecessor's was recompiled.
	Compilations int
	Reports      int
	Errors       int
	Warnings     int
}

// GetRunState reads a run and its frames and summarises them.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	state := RunState{Run: run}

	frames, err := s.ReadFrames(ctx, runID)
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}
	state.Frames = len(frames)
	prev := ""
	for i, f := range frames {
		if i == 0 {
			state.FirstFrame = f.Frame
		}
		state.LastFrame = f.Frame
		if f.Hash != prev {
			state.Compilations++
			prev = f.Hash
		}
	}

	reports, err := s.ReadReports(ctx, runID)
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}
	state.Reports = len(reports)

	diags, err := s.ReadDiagnostics(ctx, runID)
	if err != nil {
		return state, fmt.Errorf("get run state: %w", err)
	}
	for _, d := range diags {
		switch d.Severity {
		case "error":
			state.Errors++
		case "warning":
			state.Warnings++
		}
	}
	return state, nil
}

// FrameDiff is a position at which two runs compiled differently.
type FrameDiff struct {
	// Position is the frame's index within each run, not its frame number.
	Position int
	HashA    string
	HashB    string
}

// CompareRuns checks that two runs over the same description compiled the
// same frames in the same order. Frame numbers may differ between runs;
// frames are matched by position. A run with more frames than the other
// yields diffs with an empty hash on the short side.
func (s *Store) CompareRuns(ctx context.Context, a, b string) ([]FrameDiff, error) {
	fa, err := s.ReadFrames(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	fb, err := s.ReadFrames(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}

	diffs := []FrameDiff{}
	for i := 0; i < max(len(fa), len(fb)); i++ {
		var ha, hb string
		if i < len(fa) {
			ha = fa[i].Hash
		}
		if i < len(fb) {
			hb = fb[i].Hash
		}
		if ha != hb {
			diffs = append(diffs, FrameDiff{Position: i, HashA: ha, HashB: hb})
		}
	}
	return diffs, nil
}
