package task

// mining.go implements the ore mining state machine.
//
// States:
//   - Idle: no target, looking for the nearest visible ore and a path to it
//   - Seeking: target picked and a path queried, playback starting
//   - Approaching: consuming the path; the last point presses the button
//   - ClickDown: button held, consuming the short release path
//   - WaitingForYield: released, waiting for the rock to change class
//
// Transitions:
//   Idle -> Seeking (visible ore found and a path to it exists)
//   Seeking/Approaching -> Idle (target evicted or changed before the click)
//   Approaching -> ClickDown (last path point pressed the button)
//   ClickDown -> WaitingForYield (release path finished, button released)
//   WaitingForYield -> Idle (target changed class, or grace timer expired)
//   any -> Idle (Cancel)
//
// The target is held as a tracking.Handle and resolved every frame, so a
// rock that leaves the tracker is noticed on the frame it goes away.
// When the grace timer expires, the target's last area is skipped by target
// selection for AvoidTimeout seconds.

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"orebot/internal/mousedb"
	"orebot/internal/tracking"
	"orebot/internal/vision"
)

// MiningState is a state of the mining task.
type MiningState int

const (
	MiningIdle MiningState = iota
	MiningSeeking
	MiningApproaching
	MiningClickDown
	MiningWaitingForYield
)

// String returns the string representation of the state
func (s MiningState) String() string {
	switch s {
	case MiningIdle:
		return "Idle"
	case MiningSeeking:
		return "Seeking"
	case MiningApproaching:
		return "Approaching"
	case MiningClickDown:
		return "ClickDown"
	case MiningWaitingForYield:
		return "WaitingForYield"
	default:
		return "Unknown"
	}
}

// MiningConfig tunes the mining task. Windows bound the total duration of
// the movements queried for each purpose.
type MiningConfig struct {
	Ore Ore
	// RadiusFactor scales half the smaller box side into the click radius.
	RadiusFactor   float64
	ApproachWindow mousedb.Window
	// The release path is queried from the click point to itself.
	ReleaseRadius float64
	ReleaseWindow mousedb.Window
	// Idle wander while waiting: a dwell when the cursor is already on an
	// ore, a free wander otherwise.
	WanderRadius float64
	DwellWindow  mousedb.Window
	WanderWindow mousedb.Window
	// GraceTimeout is how long, in seconds, to wait for a target that is no
	// longer visible.
	GraceTimeout float64
	// AvoidTimeout is how long, in seconds, the area of a target that timed
	// out is skipped when picking the next one. Zero disables it.
	AvoidTimeout float64
	Button       mousedb.Button
}

// DefaultMiningConfig returns the copper mining defaults.
func DefaultMiningConfig() MiningConfig {
	return MiningConfig{
		Ore:            OreCopper,
		RadiusFactor:   0.85,
		ApproachWindow: mousedb.Window{Min: 0, Max: 1.5},
		ReleaseRadius:  200,
		ReleaseWindow:  mousedb.Window{Min: 0, Max: 0.5},
		WanderRadius:   200,
		DwellWindow:    mousedb.Window{Min: 0.7, Max: 20},
		WanderWindow:   mousedb.Window{Min: 1.0, Max: 20},
		GraceTimeout:   10,
		Button:         mousedb.ButtonLeft,
	}
}

// MiningTask clicks the nearest visible ore of one class and waits for it to
// be mined, over and over.
//
// Run, Draw, Cancel and Target must be called from the frame loop.
// RequestCancel, SetPaused, SetOre and State may be called from any goroutine.
type MiningTask struct {
	cfg      MiningConfig
	input    Input
	detector Detector
	paths    PathFinder
	mapper   CoordinateMapper
	tracker  *tracking.Tracker
	res      *Resources
	stats    *Statistics
	log      zerolog.Logger

	state     MiningState
	target    tracking.Handle
	targetBox tracking.DetectionBox
	avoid     avoidList
	path      *Player
	wander    *Player
	clickHeld bool

	useWaitTimer bool
	waitTimer    float64
	// Seconds since the current target was picked.
	elapsed float64
	// dt of skipped frames, folded into the next tracker update.
	pendingDt float64

	frame   image.Rectangle
	nearest nearestOre
	// The approach query that picked the current target, for the overlay.
	approach     approachQuery
	haveApproach bool

	cancelRequested atomic.Bool
	paused          atomic.Bool
	stateView       atomic.Int32
	// oreRequest is the requested ore plus one; zero means no request.
	oreRequest atomic.Int32
}

// nearestOre is the visible ore closest to the player this frame.
type nearestOre struct {
	found  bool
	handle tracking.Handle
	box    tracking.DetectionBox
	// pos is the box centre in desktop coordinates.
	pos    image.Point
	radius float64
}

// MiningDeps are the collaborators of a MiningTask.
type MiningDeps struct {
	Input     Input
	Detector  Detector
	Paths     PathFinder
	Mapper    CoordinateMapper
	Tracker   *tracking.Tracker
	Resources *Resources
	Stats     *Statistics
}

// NewMiningTask creates an idle mining task.
func NewMiningTask(cfg MiningConfig, deps MiningDeps, log zerolog.Logger) *MiningTask {
	if deps.Stats == nil {
		deps.Stats = NewStatistics()
	}
	return &MiningTask{
		cfg:      cfg,
		input:    deps.Input,
		detector: deps.Detector,
		paths:    deps.Paths,
		mapper:   deps.Mapper,
		tracker:  deps.Tracker,
		res:      deps.Resources,
		stats:    deps.Stats,
		log:      log.With().Str("component", "mining").Logger(),
		path:     NewPlayer(deps.Input, cfg.Button),
		wander:   NewPlayer(deps.Input, cfg.Button),
	}
}

// Name implements Task.
func (t *MiningTask) Name() string {
	return "Mining Task"
}

// InputResources implements Task.
func (t *MiningTask) InputResources() []string {
	return []string{MainFrame}
}

// OutputResources implements Task.
func (t *MiningTask) OutputResources() []string {
	return nil
}

// Load implements Task.
func (t *MiningTask) Load() error {
	switch {
	case t.input == nil:
		return fmt.Errorf("mining task: no input")
	case t.detector == nil:
		return fmt.Errorf("mining task: no detector")
	case t.paths == nil:
		return fmt.Errorf("mining task: no path finder")
	case t.mapper == nil:
		return fmt.Errorf("mining task: no coordinate mapper")
	case t.tracker == nil:
		return fmt.Errorf("mining task: no tracker")
	case t.res == nil:
		return fmt.Errorf("mining task: no resources")
	}
	t.log.Info().Stringer("ore", t.cfg.Ore).Msg("mining task loaded")
	return nil
}

// State returns the current state.
func (t *MiningTask) State() MiningState {
	return MiningState(t.stateView.Load())
}

// Target returns the handle of the current target, or the zero handle.
func (t *MiningTask) Target() tracking.Handle {
	return t.target
}

// Stats returns the task statistics.
func (t *MiningTask) Stats() *Statistics {
	return t.stats
}

// RequestCancel asks the task to cancel at the start of the next Run.
func (t *MiningTask) RequestCancel() {
	t.cancelRequested.Store(true)
}

// SetPaused pauses or resumes the state machine. A paused task keeps
// detecting and tracking so the overlay stays live, but cancels whatever it
// was doing and clicks nothing.
func (t *MiningTask) SetPaused(paused bool) {
	t.paused.Store(paused)
}

// SetOre switches the mined ore. The next Run applies it and cancels the
// current target when the ore changed.
func (t *MiningTask) SetOre(ore Ore) {
	t.oreRequest.Store(int32(ore) + 1)
}

// Paused reports whether the task is paused.
func (t *MiningTask) Paused() bool {
	return t.paused.Load()
}

// Cancel releases a held button, drops the target and any queued movement
// and returns to Idle.
func (t *MiningTask) Cancel() {
	if t.clickHeld {
		pos := t.input.Cursor()
		if err := t.input.Click(pos, t.cfg.Button, mousedb.ClickUp); err != nil {
			t.log.Error().Err(err).Msg("failed to release button on cancel")
		}
		t.clickHeld = false
	}
	if t.state != MiningIdle {
		t.log.Info().Stringer("state", t.state).Msg("mining cancelled")
	}
	t.resetTarget()
	t.setState(MiningIdle)
}

// Run implements Task.
func (t *MiningTask) Run(dt float64) {
	if t.cancelRequested.Swap(false) {
		t.pendingDt += dt
		t.Cancel()
		return
	}
	if req := t.oreRequest.Swap(0); req != 0 {
		if ore := Ore(req - 1); ore != t.cfg.Ore {
			t.Cancel()
			t.cfg.Ore = ore
			t.log.Info().Stringer("ore", ore).Msg("mining ore changed")
		}
	}

	frame, err := Get[*image.RGBA](t.res, MainFrame)
	if err != nil {
		t.pendingDt += dt
		t.log.Debug().Err(err).Msg("skipping frame")
		return
	}
	boxes, err := t.detector.Infer(frame)
	if err != nil {
		t.pendingDt += dt
		t.log.Warn().Err(err).Msg("detector failed, skipping frame")
		return
	}

	dt += t.pendingDt
	t.pendingDt = 0
	t.avoid.Tick(dt)

	for _, ev := range t.tracker.Update(boxes, dt) {
		if !t.target.IsZero() && (ev.Handle == t.target || ev.Previous == t.target) {
			t.log.Debug().Stringer("event", ev.Kind).Stringer("target", t.target).Msg("target event")
		}
	}

	t.frame = frame.Bounds()
	t.nearest = t.findNearest()
	if t.paused.Load() {
		if t.state != MiningIdle || t.clickHeld {
			t.Cancel()
		}
		return
	}
	if !t.target.IsZero() {
		t.elapsed += dt
	}

	t.setState(t.runStateMachine(dt))
}

func (t *MiningTask) setState(s MiningState) {
	if s != t.state {
		t.log.Debug().Stringer("from", t.state).Stringer("to", s).Msg("state change")
	}
	t.state = s
	t.stateView.Store(int32(s))
}

// runStateMachine executes the state machine and returns next state
func (t *MiningTask) runStateMachine(dt float64) MiningState {
	switch t.state {
	case MiningIdle:
		return t.onIdle()
	case MiningSeeking:
		return t.onSeeking(dt)
	case MiningApproaching:
		return t.onApproaching(dt)
	case MiningClickDown:
		return t.onClickDown(dt)
	case MiningWaitingForYield:
		return t.onWaitingForYield(dt)
	default:
		return MiningIdle
	}
}

// onIdle picks the nearest visible ore and queries a path to it. Without a
// path the task stays idle and tries again next frame.
func (t *MiningTask) onIdle() MiningState {
	if !t.nearest.found {
		return MiningIdle
	}

	cursor := t.input.Cursor()
	m := t.paths.Query(cursor, t.nearest.pos, t.nearest.radius, t.cfg.ApproachWindow)
	if !m.IsValid() {
		t.log.Debug().Stringer("cursor", cursor).Stringer("ore", t.nearest.pos).Msg("no path to ore")
		return MiningIdle
	}

	t.target = t.nearest.handle
	t.targetBox = t.nearest.box
	t.approach = approachQuery{from: cursor, to: t.nearest.pos, radius: t.nearest.radius}
	t.haveApproach = true
	t.elapsed = 0
	t.path.Play(m, mousedb.ClickDown)
	t.wander.Clear()

	t.log.Info().
		Stringer("target", t.target).
		Stringer("pos", t.nearest.pos).
		Int("points", len(m.Points)).
		Msg("target selected")
	return MiningSeeking
}

func (t *MiningTask) onSeeking(dt float64) MiningState {
	next := t.onApproaching(dt)
	if next == MiningSeeking {
		return MiningApproaching
	}
	return next
}

// onApproaching plays the path to the target. The last point presses the
// button, after which exactly one release path is queried.
func (t *MiningTask) onApproaching(dt float64) MiningState {
	if _, status := t.tracker.Lookup(t.target); status != tracking.StatusLive {
		t.log.Info().Stringer("target", t.target).Stringer("status", status).Msg("target lost before click")
		t.stats.AddLost()
		t.resetTarget()
		return MiningIdle
	}

	step, err := t.path.Step(dt)
	if err != nil {
		t.log.Warn().Err(err).Msg("input failed")
	}
	if !step.Finished {
		return t.state
	}

	t.clickHeld = true
	release := t.paths.Query(step.Pos, step.Pos, t.cfg.ReleaseRadius, t.cfg.ReleaseWindow)
	if !release.IsValid() {
		release = mousedb.MouseMovement{}
		release.AddPoint(step.Pos, 0)
	}
	t.path.Play(release, mousedb.ClickUp)

	t.log.Debug().Stringer("pos", step.Pos).Int("release_points", len(release.Points)).Msg("button pressed")
	return MiningClickDown
}

// onClickDown plays the release path. The target is not checked here so the
// button is always released.
func (t *MiningTask) onClickDown(dt float64) MiningState {
	step, err := t.path.Step(dt)
	if err != nil {
		t.log.Warn().Err(err).Msg("input failed")
	}
	if !step.Finished && t.path.Active() {
		return MiningClickDown
	}

	t.clickHeld = false
	t.useWaitTimer = false
	t.waitTimer = 0
	t.log.Debug().Stringer("pos", step.Pos).Msg("button released")
	return MiningWaitingForYield
}

// onWaitingForYield watches the target. A class change means the rock was
// mined. A target that is not visible starts the grace timer. Meanwhile the
// cursor wanders without clicking.
func (t *MiningTask) onWaitingForYield(dt float64) MiningState {
	st, status := t.tracker.Lookup(t.target)
	switch {
	case status == tracking.StatusReclassified:
		mined := time.Duration(t.elapsed * float64(time.Second))
		t.stats.AddYield(mined)
		t.log.Info().Stringer("target", t.target).Dur("took", mined).Msg("ore mined")
		t.resetTarget()
		return MiningIdle
	case status == tracking.StatusLive:
		t.targetBox = st.Box
	}
	if status != tracking.StatusLive || !st.Visible() {
		if !t.useWaitTimer {
			t.log.Debug().Stringer("target", t.target).Stringer("status", status).Msg("target not visible, grace timer started")
			t.useWaitTimer = true
			t.waitTimer = 0
		}
	}

	if t.useWaitTimer {
		t.waitTimer += dt
		if t.waitTimer > t.cfg.GraceTimeout {
			t.log.Info().Stringer("target", t.target).Msg("gave up waiting for target")
			t.stats.AddTimeout()
			t.avoid.Add(t.targetBox, t.cfg.AvoidTimeout)
			t.resetTarget()
			return MiningIdle
		}
	}

	t.idleWander(dt)
	return MiningWaitingForYield
}

// idleWander plays filler movements while waiting. A movement is queried on
// one frame and played from the next; finished movements are discarded.
func (t *MiningTask) idleWander(dt float64) {
	if t.wander.Active() {
		if _, err := t.wander.Step(dt); err != nil {
			t.log.Warn().Err(err).Msg("input failed")
		}
		return
	}

	cursor := t.input.Cursor()
	var m mousedb.MouseMovement
	switch {
	case t.nearest.found && distance(cursor, t.nearest.pos) < t.nearest.radius:
		m = t.paths.Query(cursor, cursor, t.cfg.WanderRadius, t.cfg.DwellWindow)
	case t.nearest.found && t.nearest.handle != t.target:
		m = t.paths.Query(cursor, t.nearest.pos, t.nearest.radius, t.cfg.ApproachWindow)
	default:
		m = t.paths.Query(cursor, cursor, t.cfg.WanderRadius, t.cfg.WanderWindow)
	}
	t.wander.Play(m, mousedb.ClickMove)
}

func (t *MiningTask) resetTarget() {
	t.target = tracking.Handle{}
	t.targetBox = tracking.DetectionBox{}
	t.haveApproach = false
	t.path.Clear()
	t.wander.Clear()
	t.useWaitTimer = false
	t.waitTimer = 0
	t.elapsed = 0
}

// findNearest returns the visible ore of the configured class closest to the
// player, who stands in the middle of the frame.
func (t *MiningTask) findNearest() nearestOre {
	player := image.Pt(t.frame.Min.X+t.frame.Dx()/2, t.frame.Min.Y+t.frame.Dy()/2)

	best := nearestOre{}
	bestDist := math.Inf(1)
	for _, st := range t.tracker.Visible(int(t.cfg.Ore)) {
		if t.avoid.Avoided(st.Box) {
			continue
		}
		c := st.Box.Center()
		d := distance(player, c)
		if d >= bestDist {
			continue
		}
		bestDist = d
		best = nearestOre{
			found:  true,
			handle: st.Handle,
			box:    st.Box,
			pos:    t.mapper.FrameToSystem(c),
			radius: math.Min(st.Box.W/2, st.Box.H/2) * t.cfg.RadiusFactor,
		}
	}
	return best
}

// Draw implements Task. It outlines every tracked state and the movement
// being played. When the path finder can list candidates, the movements the
// current target's approach was chosen from are drawn underneath.
func (t *MiningTask) Draw(dst draw.Image) {
	if lister, ok := t.paths.(CandidateLister); ok && t.haveApproach {
		q := t.approach
		pool := lister.Candidates(q.from, q.to, q.radius, t.cfg.ApproachWindow)
		if len(pool) > maxDrawnCandidates {
			pool = pool[:maxDrawnCandidates]
		}
		for _, m := range pool {
			points := make([]image.Point, len(m.Points))
			for i, p := range m.Points {
				points[i] = p.Pos
			}
			t.drawPath(dst, points, candidateColor)
		}
	}

	for _, st := range t.tracker.States() {
		ore := Ore(st.Box.ClassID)
		col := ore.Color()
		r := st.Box.Rect()
		thickness := 2
		if st.Handle == t.target {
			thickness = 4
		}
		vision.DrawRect(dst, r, col, thickness)
		label := fmt.Sprintf("%s (%s:%.3fs)", ore, st.Handle, st.LastSeen)
		vision.DrawLabel(dst, r.Min.Sub(image.Pt(0, 15)), label, col)
	}

	t.drawPath(dst, t.path.Remaining(), color.RGBA{R: 255, G: 255, A: 255})
	t.drawPath(dst, t.wander.Remaining(), color.RGBA{R: 0, G: 255, B: 255, A: 255})

	vision.DrawLabel(dst, dst.Bounds().Min.Add(image.Pt(10, 10)), t.State().String(), color.White)
}

func (t *MiningTask) drawPath(dst draw.Image, points []image.Point, col color.Color) {
	if len(points) == 0 {
		return
	}
	framePts := make([]image.Point, len(points))
	for i, p := range points {
		framePts[i] = t.mapper.SystemToFrame(p)
	}
	vision.DrawPath(dst, framePts, col)
}

// approachQuery is a Query issued for an approach path.
type approachQuery struct {
	from, to image.Point
	radius   float64
}

const maxDrawnCandidates = 16

var candidateColor = color.RGBA{R: 90, G: 90, B: 110, A: 255}

func distance(a, b image.Point) float64 {
	d := a.Sub(b)
	return math.Hypot(float64(d.X), float64(d.Y))
}
