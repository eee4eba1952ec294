// Package multiplex maps a node's logical multi-dimensional iteration index
// (super-sampling, sub-sampling, viewport, sub-camera) to and from a flat
// intermediate index.
//
// Dimensions are ordered outermost to innermost. Iteration advances like an
// odometer with the innermost dimension moving fastest, and the flat index
// uses the same mixed-radix order, so iterating with Next visits flat indices
// 0, 1, 2, ... in sequence.
package multiplex

import (
	"fmt"
	"math/bits"
)

// Dim names one multiplexing dimension.
type Dim int

const (
	DimSuperSampling Dim = iota
	DimSubSampling
	DimViewport
	DimSubCamera

	NumDims = 4
)

var dimNames = [NumDims]string{"super_sampling", "sub_sampling", "viewport", "sub_camera"}

func (d Dim) String() string {
	if d < 0 || d >= NumDims {
		return fmt.Sprintf("dim(%d)", int(d))
	}
	return dimNames[d]
}

// ParseDim is the inverse of Dim.String.
func ParseDim(s string) (Dim, bool) {
	for i, n := range dimNames {
		if n == s {
			return Dim(i), true
		}
	}
	return 0, false
}

// Index is a coordinate in the multiplexing box.
type Index [NumDims]uint32

// Extents is the size of the box along each dimension. A zero extent is
// degenerate and behaves as 1.
type Extents [NumDims]uint32

// Mode is the set of dimensions a node is replicated across.
type Mode uint8

const (
	ModeNone          Mode = 0
	ModeSuperSampling Mode = 1 << DimSuperSampling
	ModeSubSampling   Mode = 1 << DimSubSampling
	ModeViewport      Mode = 1 << DimViewport
	ModeSubCamera     Mode = 1 << DimSubCamera

	ModeFull = ModeSuperSampling | ModeSubSampling | ModeViewport | ModeSubCamera
)

// Has reports whether the mode replicates along d.
func (m Mode) Has(d Dim) bool {
	return m&(1<<d) != 0
}

func (m Mode) String() string {
	if m == ModeNone {
		return "none"
	}
	s := ""
	for d := Dim(0); d < NumDims; d++ {
		if m.Has(d) {
			if s != "" {
				s += "|"
			}
			s += d.String()
		}
	}
	return s
}

// One returns extents of 1 along every dimension.
func One() Extents {
	return Extents{1, 1, 1, 1}
}

func (e Extents) dim(d int) uint32 {
	if e[d] == 0 {
		return 1
	}
	return e[d]
}

// Count returns the number of indices inside the extents.
func Count(e Extents) uint32 {
	n := uint32(1)
	for d := 0; d < NumDims; d++ {
		n *= e.dim(d)
	}
	return n
}

// InsideExtents reports whether every coordinate of idx lies in [0, extents).
func InsideExtents(idx Index, e Extents) bool {
	for d := 0; d < NumDims; d++ {
		if idx[d] >= e.dim(d) {
			return false
		}
	}
	return true
}

// Next advances idx by one step. After the last index it returns an index
// outside the extents; callers must check InsideExtents.
func Next(idx Index, e Extents) Index {
	for d := NumDims - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < e.dim(d) {
			return idx
		}
		if d == 0 {
			// Past the end: leave the outermost coordinate out of range.
			return idx
		}
		idx[d] = 0
	}
	return idx
}

// ExtentsForNode collapses the dimensions mode does not replicate along.
func ExtentsForNode(mode Mode, total Extents) Extents {
	out := One()
	for d := 0; d < NumDims; d++ {
		if mode.Has(Dim(d)) {
			out[d] = total.dim(d)
		}
	}
	return out
}

// LessMultiplexed is a strict total order on modes in which a strict subset
// of dimensions always compares less. Less multiplexed nodes form the outer
// loop when iterations are nested.
func LessMultiplexed(a, b Mode) bool {
	ca, cb := bits.OnesCount8(uint8(a)), bits.OnesCount8(uint8(b))
	if ca != cb {
		return ca < cb
	}
	return a < b
}

// Project zeroes every coordinate mode does not replicate along.
func Project(idx Index, mode Mode) Index {
	for d := 0; d < NumDims; d++ {
		if !mode.Has(Dim(d)) {
			idx[d] = 0
		}
	}
	return idx
}

// ToIR flattens idx into a single intermediate index.
func ToIR(idx Index, e Extents) uint32 {
	var flat uint32
	for d := 0; d < NumDims; d++ {
		flat = flat*e.dim(d) + idx[d]
	}
	return flat
}

// FromIR is the inverse of ToIR for indices inside the extents.
func FromIR(flat uint32, e Extents) Index {
	var idx Index
	for d := NumDims - 1; d >= 0; d-- {
		size := e.dim(d)
		idx[d] = flat % size
		flat /= size
	}
	return idx
}

// All returns every index inside the extents in iteration order.
func All(e Extents) []Index {
	out := make([]Index, 0, Count(e))
	for idx := (Index{}); InsideExtents(idx, e); idx = Next(idx, e) {
		out = append(out, idx)
	}
	return out
}

func (i Index) String() string {
	return fmt.Sprintf("[%d %d %d %d]", i[0], i[1], i[2], i[3])
}
