package mousedb

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultWeight is the selection weight every movement starts with after a rebuild.
const DefaultWeight = 1.0

// MinWeight is the floor a selection weight can decay to.
const MinWeight = 0.05

// Index holds the relative form of every stored movement together with the
// per-movement data queries rank on. All slices share one indexing and are
// only ever replaced together by Rebuild.
type Index struct {
	movements []MouseMovement // relative, first point at the origin
	angles    []float64
	targets   []r2.Vec
	durations []float64
	weights   []float64
}

// Rebuild recomputes the index from movements and resets every weight.
// Movements without points are skipped.
func (ix *Index) Rebuild(movements []MouseMovement) {
	n := len(movements)
	rel := make([]MouseMovement, 0, n)
	for _, m := range movements {
		if !m.IsValid() {
			continue
		}
		rel = append(rel, m.Relative())
	}

	n = len(rel)
	angles := make([]float64, n)
	targets := make([]r2.Vec, n)
	durations := make([]float64, n)
	weights := make([]float64, n)

	for i, m := range rel {
		target := vec(m.Last())
		angles[i] = m.Angle()
		targets[i] = target
		durations[i] = m.TotalTime()
		weights[i] = DefaultWeight
	}

	ix.movements = rel
	ix.angles = angles
	ix.targets = targets
	ix.durations = durations
	ix.weights = weights
}

// Len returns the number of indexed movements.
func (ix *Index) Len() int {
	return len(ix.movements)
}

// Movement returns the relative movement at i.
func (ix *Index) Movement(i int) MouseMovement {
	return ix.movements[i]
}

// Duration returns the total dwell time of movement i.
func (ix *Index) Duration(i int) float64 {
	return ix.durations[i]
}

// Weight returns the current selection weight of movement i.
func (ix *Index) Weight(i int) float64 {
	return ix.weights[i]
}

// Weights returns a copy of all selection weights.
func (ix *Index) Weights() []float64 {
	out := make([]float64, len(ix.weights))
	copy(out, ix.weights)
	return out
}
