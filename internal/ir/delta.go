package ir

import "github.com/roach88/framegraph/internal/registry"

// Transition computes what must change to go from prev's state to cur's. A nil
// prev is the state at the start of the frame: no pass, no layers,
// wireframe off, default shading rate.
func Transition(prev, cur *Node) StateDelta {
	var from NodeState
	if prev != nil {
		from = prev.State
	}
	to := cur.State
	d := StateDelta{
		PopLayers:  []string{},
		PushLayers: []registry.BlockLayer{},
		ShaderVars: to.ShaderVars,
	}

	// Passes merge only across instances bound to the same physical targets,
	// which the multiplexing index decides.
	samePass := from.Pass.Equal(to.Pass) && prev != nil && prev.Index == cur.Index
	if from.Pass != nil && !samePass {
		d.EndPass = true
	}
	if to.Pass != nil && !samePass {
		d.BeginPass = to.Pass
	}

	common := 0
	for common < len(from.BlockLayers) && common < len(to.BlockLayers) &&
		from.BlockLayers[common] == to.BlockLayers[common] {
		common++
	}
	for i := len(from.BlockLayers) - 1; i >= common; i-- {
		d.PopLayers = append(d.PopLayers, from.BlockLayers[i].Block)
	}
	d.PushLayers = append(d.PushLayers, to.BlockLayers[common:]...)

	if from.Wireframe != to.Wireframe {
		w := to.Wireframe
		d.Wireframe = &w
	}
	if !vrsEqual(from.VRS, to.VRS) {
		d.SetVRS = true
		d.VRS = to.VRS
	}
	return d
}

func vrsEqual(a, b *registry.VRSState) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.RateX != b.RateX || a.RateY != b.RateY {
		return false
	}
	if a.Rate == nil || b.Rate == nil {
		return a.Rate == b.Rate
	}
	return *a.Rate == *b.Rate
}
