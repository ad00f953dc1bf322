package mousedb

import (
	"image"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
)

// Window bounds the total duration of an acceptable movement. Both bounds are
// exclusive.
type Window struct {
	Min float64
	Max float64
}

// AnyDuration accepts every positive duration.
var AnyDuration = Window{Min: 0, Max: math.Inf(1)}

// Contains reports whether d lies strictly inside the window.
func (w Window) Contains(d float64) bool {
	return d > w.Min && d < w.Max
}

// QueryEngine selects movements from an Index.
//
// Selection favours movements whose endpoint is closest to the requested
// displacement and whose direction is closest to the requested direction,
// while the per-movement weights in the Index keep the same recording from
// being picked every time a similar query repeats.
type QueryEngine struct {
	index *Index
	rng   *rand.Rand
	log   zerolog.Logger

	ids      []int
	inWindow []bool
	dist2    []float64
}

// NewQueryEngine creates an engine over index drawing from rng.
func NewQueryEngine(index *Index, rng *rand.Rand, log zerolog.Logger) *QueryEngine {
	return &QueryEngine{
		index: index,
		rng:   rng,
		log:   log.With().Str("component", "movement-query").Logger(),
	}
}

// Query returns one movement that starts at from and ends within radius of to,
// preferring movements whose duration lies inside window. The returned
// movement is invalid when nothing ends within radius; that means "no path
// right now", not failure.
//
// The selected movement's weight drops and every other candidate's weight
// rises.
func (q *QueryEngine) Query(from, to image.Point, radius float64, window Window) MouseMovement {
	pool := q.candidates(from, to, radius, window)
	if len(pool) == 0 {
		q.log.Debug().
			Stringer("from", from).
			Stringer("to", to).
			Float64("radius", radius).
			Msg("no movement matched")
		return MouseMovement{}
	}

	pick := q.pick(pool)
	q.feedback(pool, pick)

	q.log.Debug().
		Stringer("from", from).
		Stringer("to", to).
		Int("candidates", len(pool)).
		Int("rank", pick+1).
		Msg("movement selected")

	return q.index.Movement(pool[pick]).Translate(from)
}

// Candidates returns every movement Query would choose from, closest
// direction first, translated to start at from. Weights are left untouched.
func (q *QueryEngine) Candidates(from, to image.Point, radius float64, window Window) []MouseMovement {
	pool := q.candidates(from, to, radius, window)
	if len(pool) == 0 {
		return nil
	}
	out := make([]MouseMovement, len(pool))
	for i, id := range pool {
		out[i] = q.index.Movement(id).Translate(from)
	}
	return out
}

// candidates ranks the whole index and returns the pool of indices to pick
// from, sorted by angular closeness.
//
// Ranking puts in-window movements before out-of-window ones and orders each
// group by squared distance between the movement's endpoint and the query
// displacement. Each group is walked until its first out-of-radius entry. The
// in-window hits form the pool; when there are none the out-of-window hits are
// used instead.
func (q *QueryEngine) candidates(from, to image.Point, radius float64, window Window) []int {
	n := q.index.Len()
	if n == 0 {
		return nil
	}

	d := vec(to.Sub(from))
	q.ids = q.ids[:0]
	q.inWindow = resizeBools(q.inWindow, n)
	q.dist2 = resizeFloats(q.dist2, n)
	for i := 0; i < n; i++ {
		q.ids = append(q.ids, i)
		q.inWindow[i] = window.Contains(q.index.durations[i])
		q.dist2[i] = r2.Norm2(r2.Sub(q.index.targets[i], d))
	}

	sort.SliceStable(q.ids, func(a, b int) bool {
		ia, ib := q.ids[a], q.ids[b]
		if q.inWindow[ia] != q.inWindow[ib] {
			return q.inWindow[ia]
		}
		return q.dist2[ia] < q.dist2[ib]
	})

	// The in-window group is a prefix of ids.
	split := sort.Search(n, func(i int) bool { return !q.inWindow[q.ids[i]] })
	strict := countWithin(q.ids[:split], q.dist2, radius)
	relaxed := countWithin(q.ids[split:], q.dist2, radius)

	var pool []int
	switch {
	case strict > 0:
		pool = q.ids[:strict]
	case relaxed > 0:
		pool = q.ids[split : split+relaxed]
	default:
		return nil
	}

	angle := math.Atan2(d.Y, d.X)
	sort.SliceStable(pool, func(a, b int) bool {
		// Raw difference, no wraparound at ±π.
		da := math.Abs(q.index.angles[pool[a]] - angle)
		db := math.Abs(q.index.angles[pool[b]] - angle)
		return da < db
	})

	out := make([]int, len(pool))
	copy(out, pool)
	return out
}

// pick draws a rank from pool with harmonic weighting: rank i (from 1) has
// weight 1/i scaled by the movement's selection weight. When the draw is not
// used up the last rank is chosen.
func (q *QueryEngine) pick(pool []int) int {
	budget := q.rng.Float64() * floats.Sum(harmonic(len(pool)))
	for i, id := range pool {
		budget -= q.index.weights[id] / float64(i+1)
		if budget < 0 {
			return i
		}
	}
	return len(pool) - 1
}

// feedback lowers the picked movement's weight by half its harmonic weight,
// floored at MinWeight, and raises every other candidate by half of theirs.
func (q *QueryEngine) feedback(pool []int, pick int) {
	for i, id := range pool {
		half := 0.5 / float64(i+1)
		if i == pick {
			q.index.weights[id] = math.Max(MinWeight, q.index.weights[id]-half)
			continue
		}
		q.index.weights[id] += half
	}
}

func countWithin(ids []int, dist2 []float64, radius float64) int {
	count := 0
	for _, id := range ids {
		if math.Sqrt(dist2[id]) >= radius {
			break
		}
		count++
	}
	return count
}

// harmonic returns the terms 1/1 .. 1/n.
func harmonic(n int) []float64 {
	terms := make([]float64, n)
	for i := range terms {
		terms[i] = 1 / float64(i+1)
	}
	return terms
}

func resizeBools(s []bool, n int) []bool {
	if cap(s) < n {
		return make([]bool, n)
	}
	return s[:n]
}

func resizeFloats(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
