package mousedb

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/rs/zerolog"
)

// Edge is a button transition observed between two samples.
type Edge int

const (
	EdgeNone Edge = iota
	EdgePress
	EdgeRelease
)

// Sample is one frame of observed cursor state.
type Sample struct {
	Pos     image.Point // cursor position this frame
	Edge    Edge        // button transition seen this frame, if any
	EdgePos image.Point // where the transition happened
}

// RecorderConfig tunes a Recorder.
type RecorderConfig struct {
	// SamePosThreshold caps the dwell accumulated while the cursor stays put.
	SamePosThreshold float64
	Button           Button
}

// DefaultRecorderConfig returns the recorder defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		SamePosThreshold: 1.0,
		Button:           ButtonLeft,
	}
}

// Recorder turns a stream of cursor samples into movements.
//
// A press finishes the current movement as ClickDown and opens an empty one.
// A release finishes the current movement at the release point as ClickUp and
// opens a new one starting there. Between edges, samples at a new position
// append a point and samples at the same position extend the last point's
// dwell, up to SamePosThreshold.
//
// Nothing is recorded until the first edge after Start.
type Recorder struct {
	cfg RecorderConfig
	rng *rand.Rand
	log zerolog.Logger

	recording bool
	active    bool
	current   MouseMovement
	finished  []MouseMovement
}

// NewRecorder creates a stopped recorder.
func NewRecorder(cfg RecorderConfig, rng *rand.Rand, log zerolog.Logger) *Recorder {
	if cfg.SamePosThreshold <= 0 {
		cfg.SamePosThreshold = DefaultRecorderConfig().SamePosThreshold
	}
	return &Recorder{
		cfg: cfg,
		rng: rng,
		log: log.With().Str("component", "recorder").Logger(),
	}
}

// Start begins capturing.
func (r *Recorder) Start() {
	r.recording = true
	r.active = false
	r.current = MouseMovement{}
	r.log.Info().Msg("recording started")
}

// Stop ends capturing and discards the unfinished movement.
func (r *Recorder) Stop() {
	r.recording = false
	r.active = false
	r.current = MouseMovement{}
	r.log.Info().Int("finished", len(r.finished)).Msg("recording stopped")
}

// Recording reports whether samples are being captured.
func (r *Recorder) Recording() bool {
	return r.recording
}

// Current returns a copy of the movement being recorded.
func (r *Recorder) Current() MouseMovement {
	return r.current.Clone()
}

// Pending returns how many finished movements are waiting to be taken.
func (r *Recorder) Pending() int {
	return len(r.finished)
}

// Take returns the finished movements and forgets them.
func (r *Recorder) Take() []MouseMovement {
	out := r.finished
	r.finished = nil
	return out
}

// Sample feeds one frame of cursor state, dt seconds after the previous one.
func (r *Recorder) Sample(s Sample, dt float64) {
	if !r.recording {
		return
	}

	switch s.Edge {
	case EdgeRelease:
		if r.active {
			r.current.AddPoint(s.EdgePos, dt)
			r.current.ClickState = ClickUp
			r.finish()
		}
		r.open()
		r.current.AddPoint(s.EdgePos, dt)

	case EdgePress:
		if r.active {
			r.current.AddPoint(s.EdgePos, dt)
			r.current.ClickState = ClickDown
			r.finish()
		}
		r.open()

	default:
		if !r.active {
			return
		}
		n := len(r.current.Points)
		if n > 0 && r.current.Points[n-1].Pos == s.Pos {
			last := &r.current.Points[n-1]
			last.DeltaTime = math.Min(last.DeltaTime+dt, r.cfg.SamePosThreshold)
			return
		}
		r.current.AddPoint(s.Pos, dt)
	}
}

func (r *Recorder) open() {
	r.current = NewMouseMovement(r.randomColor())
	r.current.Button = r.cfg.Button
	r.active = true
}

func (r *Recorder) finish() {
	if r.current.IsValid() {
		r.finished = append(r.finished, r.current)
		r.log.Debug().
			Stringer("click", r.current.ClickState).
			Int("points", len(r.current.Points)).
			Float64("duration", r.current.TotalTime()).
			Msg("movement recorded")
	}
	r.current = MouseMovement{}
	r.active = false
}

func (r *Recorder) randomColor() color.RGBA {
	return color.RGBA{
		R: uint8(r.rng.Intn(256)),
		G: uint8(r.rng.Intn(256)),
		B: uint8(r.rng.Intn(256)),
		A: 255,
	}
}
