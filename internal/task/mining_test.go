package task

import (
	"image"
	"image/color"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orebot/internal/mousedb"
	"orebot/internal/tracking"
)

const frameDt = 0.016

var (
	copperRock   = tracking.DetectionBox{X: 90, Y: 90, W: 20, H: 20, ClassID: int(OreCopper)}
	depletedRock = tracking.DetectionBox{X: 90, Y: 90, W: 20, H: 20, ClassID: int(OreDepleted)}
	// copperRock's centre on the desktop.
	copperClick = image.Pt(1100, 100)
)

type miningHarness struct {
	task     *MiningTask
	input    *fakeInput
	detector *scriptedDetector
	paths    *fakePaths
	res      *Resources
	tracker  *tracking.Tracker
	stats    *Statistics
	cfg      MiningConfig
}

// newMiningHarness answers approach and release queries with single-point
// movements ending on the requested point; other queries match nothing.
func newMiningHarness(t *testing.T) *miningHarness {
	t.Helper()

	cfg := DefaultMiningConfig()
	h := &miningHarness{
		input:    &fakeInput{},
		detector: &scriptedDetector{boxes: []tracking.DetectionBox{copperRock}},
		res:      NewResources(),
		tracker:  tracking.NewTracker(tracking.DefaultConfig(), zerolog.Nop()),
		stats:    NewStatistics(),
		cfg:      cfg,
	}
	h.paths = &fakePaths{respond: func(q pathQuery) mousedb.MouseMovement {
		switch q.Window {
		case cfg.ApproachWindow:
			return movement(0, q.To)
		case cfg.ReleaseWindow:
			return movement(0, q.From)
		default:
			return mousedb.MouseMovement{}
		}
	}}
	h.res.Set(MainFrame, image.NewRGBA(image.Rect(0, 0, 200, 200)))

	h.task = NewMiningTask(cfg, MiningDeps{
		Input:     h.input,
		Detector:  h.detector,
		Paths:     h.paths,
		Mapper:    offsetMapper{off: image.Pt(1000, 0)},
		Tracker:   h.tracker,
		Resources: h.res,
		Stats:     h.stats,
	}, zerolog.Nop())
	require.NoError(t, h.task.Load())
	return h
}

func (h *miningHarness) run(t *testing.T, want MiningState) {
	t.Helper()
	h.task.Run(frameDt)
	require.Equal(t, want, h.task.State())
}

func TestMiningClickCycleWithSinglePointPath(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)

	h.run(t, MiningSeeking)
	require.Len(t, h.paths.queries, 1)
	q := h.paths.queries[0]
	assert.Equal(t, image.Pt(0, 0), q.From)
	assert.Equal(t, copperClick, q.To)
	assert.InDelta(t, 8.5, q.Radius, 1e-9)
	assert.Equal(t, h.cfg.ApproachWindow, q.Window)
	assert.Empty(t, h.input.events)

	// The only point of the path is consumed: one press, one release query.
	h.run(t, MiningClickDown)
	assert.Equal(t, []inputEvent{{Pos: copperClick, Phase: mousedb.ClickDown}}, h.input.clicks())
	releases := h.paths.withWindow(h.cfg.ReleaseWindow)
	require.Len(t, releases, 1)
	assert.Equal(t, pathQuery{From: copperClick, To: copperClick, Radius: 200, Window: h.cfg.ReleaseWindow}, releases[0])

	h.run(t, MiningWaitingForYield)
	assert.Equal(t, []inputEvent{
		{Pos: copperClick, Phase: mousedb.ClickDown},
		{Pos: copperClick, Phase: mousedb.ClickUp},
	}, h.input.clicks())
	assert.Len(t, h.paths.withWindow(h.cfg.ReleaseWindow), 1)

	// The rock keeps its class while it is being mined.
	h.run(t, MiningWaitingForYield)

	h.detector.boxes = []tracking.DetectionBox{depletedRock}
	h.run(t, MiningIdle)
	assert.True(t, h.task.Target().IsZero())
	assert.Equal(t, 1, h.stats.Snapshot().Yields)

	// Nothing left to mine.
	h.run(t, MiningIdle)
	assert.Len(t, h.input.clicks(), 2)
}

func TestMiningPicksNearestVisibleOre(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)

	far := tracking.DetectionBox{X: 0, Y: 0, W: 30, H: 30, ClassID: int(OreCopper)}
	iron := tracking.DetectionBox{X: 95, Y: 40, W: 10, H: 10, ClassID: int(OreIron)}
	near := tracking.DetectionBox{X: 120, Y: 120, W: 10, H: 16, ClassID: int(OreCopper)}
	h.detector.boxes = []tracking.DetectionBox{far, iron, near}

	h.run(t, MiningSeeking)
	require.Len(t, h.paths.queries, 1)
	assert.Equal(t, image.Pt(1125, 128), h.paths.queries[0].To)
	assert.InDelta(t, 4.25, h.paths.queries[0].Radius, 1e-9)

	st, status := h.tracker.Lookup(h.task.Target())
	require.Equal(t, tracking.StatusLive, status)
	assert.Equal(t, near, st.Box)
}

func TestMiningRetriesWhenNoPathMatches(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	h.paths.respond = nil

	h.run(t, MiningIdle)
	h.run(t, MiningIdle)

	assert.Len(t, h.paths.queries, 2)
	assert.True(t, h.task.Target().IsZero())
	assert.Empty(t, h.input.events)
}

func TestMiningReleaseFallsBackToSinglePoint(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	cfg := h.cfg
	h.paths.respond = func(q pathQuery) mousedb.MouseMovement {
		if q.Window == cfg.ApproachWindow {
			return movement(0, q.To)
		}
		return mousedb.MouseMovement{}
	}

	h.run(t, MiningSeeking)
	h.run(t, MiningClickDown)
	h.run(t, MiningWaitingForYield)

	assert.Equal(t, []inputEvent{
		{Pos: copperClick, Phase: mousedb.ClickDown},
		{Pos: copperClick, Phase: mousedb.ClickUp},
	}, h.input.clicks())
	assert.Len(t, h.paths.withWindow(cfg.ReleaseWindow), 1)
}

func TestMiningMultiPointPathMovesBeforeClicking(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	cfg := h.cfg
	h.paths.respond = func(q pathQuery) mousedb.MouseMovement {
		switch q.Window {
		case cfg.ApproachWindow:
			return movement(0.02, q.From.Add(image.Pt(10, 0)), q.From.Add(image.Pt(20, 0)), q.To)
		case cfg.ReleaseWindow:
			return movement(0, q.From)
		}
		return mousedb.MouseMovement{}
	}

	h.run(t, MiningSeeking)
	// First frame only counts down the head dwell.
	h.run(t, MiningApproaching)
	assert.Empty(t, h.input.events)

	h.run(t, MiningApproaching)
	h.run(t, MiningApproaching)
	h.run(t, MiningApproaching)
	h.run(t, MiningApproaching)
	h.run(t, MiningClickDown)

	assert.Equal(t, []inputEvent{
		{Pos: image.Pt(10, 0), Phase: mousedb.ClickMove},
		{Pos: image.Pt(20, 0), Phase: mousedb.ClickMove},
		{Pos: copperClick, Phase: mousedb.ClickDown},
	}, h.input.events)
}

func TestMiningCancelReleasesHeldButton(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	cfg := h.cfg
	h.paths.respond = func(q pathQuery) mousedb.MouseMovement {
		switch q.Window {
		case cfg.ApproachWindow:
			return movement(0, q.To)
		case cfg.ReleaseWindow:
			// Long enough to still be held when the cancel arrives.
			return movement(5, q.From, q.From.Add(image.Pt(3, 3)))
		}
		return mousedb.MouseMovement{}
	}

	h.run(t, MiningSeeking)
	h.run(t, MiningClickDown)

	h.task.RequestCancel()
	h.run(t, MiningIdle)

	assert.Equal(t, []inputEvent{
		{Pos: copperClick, Phase: mousedb.ClickDown},
		{Pos: copperClick, Phase: mousedb.ClickUp},
	}, h.input.clicks())
	assert.True(t, h.task.Target().IsZero())

	// Cancelling again has nothing to release.
	h.task.Cancel()
	assert.Len(t, h.input.clicks(), 2)
}

func TestMiningCancelWithoutClickSendsNothing(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	cfg := h.cfg
	h.paths.respond = func(q pathQuery) mousedb.MouseMovement {
		if q.Window == cfg.ApproachWindow {
			return movement(1, q.From, q.To)
		}
		return mousedb.MouseMovement{}
	}

	h.run(t, MiningSeeking)
	h.run(t, MiningApproaching)

	h.task.Cancel()
	assert.Equal(t, MiningIdle, h.task.State())
	assert.Empty(t, h.input.events)
}

func TestMiningTargetLostBeforeClick(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	cfg := h.cfg
	h.paths.respond = func(q pathQuery) mousedb.MouseMovement {
		if q.Window == cfg.ApproachWindow {
			return movement(1, q.From, q.To)
		}
		return mousedb.MouseMovement{}
	}

	h.run(t, MiningSeeking)
	target := h.task.Target()

	h.detector.boxes = nil
	h.task.Run(6)

	assert.Equal(t, MiningIdle, h.task.State())
	_, status := h.tracker.Lookup(target)
	assert.Equal(t, tracking.StatusEvicted, status)
	assert.Empty(t, h.input.clicks())
	assert.Equal(t, 1, h.stats.Snapshot().Lost)
}

func TestMiningGraceTimerExpires(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)

	h.run(t, MiningSeeking)
	h.run(t, MiningClickDown)
	h.run(t, MiningWaitingForYield)

	// The rock vanishes; after the tracker TTL it is evicted, and the grace
	// timer keeps counting until it passes ten seconds.
	h.detector.boxes = nil
	for i := 0; i < 10; i++ {
		h.task.Run(1)
		require.Equal(t, MiningWaitingForYield, h.task.State(), "second %d", i+1)
	}
	h.task.Run(1)
	assert.Equal(t, MiningIdle, h.task.State())
	assert.Equal(t, 1, h.stats.Snapshot().Timeouts)
	assert.Zero(t, h.stats.Snapshot().Yields)
}

func TestMiningAvoidsTimedOutArea(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	h.task.cfg.AvoidTimeout = 30

	h.run(t, MiningSeeking)
	h.run(t, MiningClickDown)
	h.run(t, MiningWaitingForYield)

	h.detector.boxes = nil
	for i := 0; i < 11; i++ {
		h.task.Run(1)
	}
	require.Equal(t, MiningIdle, h.task.State())
	require.Equal(t, 1, h.stats.Snapshot().Timeouts)
	assert.Equal(t, 1, h.task.avoid.Len())

	// The rock shows up again in the same place but is skipped.
	h.detector.boxes = []tracking.DetectionBox{copperRock}
	h.run(t, MiningIdle)
	h.run(t, MiningIdle)
	assert.Len(t, h.paths.withWindow(h.cfg.ApproachWindow), 1)

	h.task.Run(31)
	assert.Equal(t, MiningSeeking, h.task.State())
	assert.Zero(t, h.task.avoid.Len())
	assert.Len(t, h.paths.withWindow(h.cfg.ApproachWindow), 2)
}

func TestMiningSetOreRetargets(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	ironRock := tracking.DetectionBox{X: 150, Y: 150, W: 20, H: 20, ClassID: int(OreIron)}
	h.detector.boxes = []tracking.DetectionBox{copperRock, ironRock}

	h.run(t, MiningSeeking)
	copperTarget := h.task.Target()

	h.task.SetOre(OreIron)
	h.run(t, MiningSeeking)
	assert.NotEqual(t, copperTarget, h.task.Target())

	approaches := h.paths.withWindow(h.cfg.ApproachWindow)
	require.Len(t, approaches, 2)
	assert.Equal(t, image.Pt(1160, 160), approaches[1].To)
	assert.Empty(t, h.input.clicks())

	// Asking for the current ore again changes nothing.
	h.task.SetOre(OreIron)
	h.run(t, MiningClickDown)
}

func TestMiningIdleWanderWhileWaiting(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	cfg := h.cfg
	h.paths.respond = func(q pathQuery) mousedb.MouseMovement {
		switch q.Window {
		case cfg.ApproachWindow:
			return movement(0, q.To)
		case cfg.ReleaseWindow:
			return movement(0, q.From)
		case cfg.DwellWindow:
			return movement(0, q.From.Add(image.Pt(2, 1)))
		}
		return mousedb.MouseMovement{}
	}

	h.run(t, MiningSeeking)
	h.run(t, MiningClickDown)
	h.run(t, MiningWaitingForYield)

	// Cursor sits on the rock: a dwell is queried, then played without a click.
	h.run(t, MiningWaitingForYield)
	require.Len(t, h.paths.withWindow(cfg.DwellWindow), 1)
	h.run(t, MiningWaitingForYield)

	last := h.input.events[len(h.input.events)-1]
	assert.Equal(t, inputEvent{Pos: copperClick.Add(image.Pt(2, 1)), Phase: mousedb.ClickMove}, last)
	assert.Len(t, h.input.clicks(), 2)
}

func TestMiningWanderWithoutVisibleOre(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)

	h.run(t, MiningSeeking)
	h.run(t, MiningClickDown)
	h.run(t, MiningWaitingForYield)

	h.detector.boxes = nil
	h.run(t, MiningWaitingForYield)
	wanders := h.paths.withWindow(h.cfg.WanderWindow)
	require.Len(t, wanders, 1)
	assert.Equal(t, copperClick, wanders[0].From)
	assert.Equal(t, copperClick, wanders[0].To)
	assert.InDelta(t, 200.0, wanders[0].Radius, 1e-9)
}

func TestMiningSkipsFramesWithoutImage(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	h.paths.respond = nil

	h.run(t, MiningIdle)
	require.Equal(t, 1, h.detector.calls)

	h.res.Remove(MainFrame)
	h.task.Run(2)
	assert.Equal(t, 1, h.detector.calls)

	h.res.Set(MainFrame, image.NewRGBA(image.Rect(0, 0, 200, 200)))
	h.detector.boxes = nil
	h.task.Run(0.5)

	states := h.tracker.States()
	require.Len(t, states, 1)
	assert.InDelta(t, 2.5, states[0].LastSeen, 1e-9)
}

func TestMiningSurvivesInputErrors(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	h.input.err = errInput

	h.run(t, MiningSeeking)
	h.run(t, MiningClickDown)
	h.run(t, MiningWaitingForYield)
}

func TestMiningLoadRequiresCollaborators(t *testing.T) {
	t.Parallel()

	task := NewMiningTask(DefaultMiningConfig(), MiningDeps{}, zerolog.Nop())
	assert.Error(t, task.Load())
	assert.Equal(t, []string{MainFrame}, task.InputResources())
	assert.Empty(t, task.OutputResources())
}

func TestMiningStateNames(t *testing.T) {
	t.Parallel()

	names := map[MiningState]string{
		MiningIdle:            "Idle",
		MiningSeeking:         "Seeking",
		MiningApproaching:     "Approaching",
		MiningClickDown:       "ClickDown",
		MiningWaitingForYield: "WaitingForYield",
		MiningState(42):       "Unknown",
	}
	for s, want := range names {
		assert.Equal(t, want, s.String())
	}
}

func TestMiningPauseReleasesAndKeepsTracking(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)
	cfg := h.cfg
	h.paths.respond = func(q pathQuery) mousedb.MouseMovement {
		switch q.Window {
		case cfg.ApproachWindow:
			return movement(0, q.To)
		case cfg.ReleaseWindow:
			return movement(5, q.From, q.From.Add(image.Pt(3, 3)))
		}
		return mousedb.MouseMovement{}
	}

	h.run(t, MiningSeeking)
	h.run(t, MiningClickDown)

	h.task.SetPaused(true)
	assert.True(t, h.task.Paused())
	h.run(t, MiningIdle)
	assert.Equal(t, []inputEvent{
		{Pos: copperClick, Phase: mousedb.ClickDown},
		{Pos: copperClick, Phase: mousedb.ClickUp},
	}, h.input.clicks())

	// Paused frames still feed the tracker but never pick a target.
	queries := len(h.paths.queries)
	h.run(t, MiningIdle)
	assert.Len(t, h.paths.queries, queries)
	assert.Len(t, h.tracker.Visible(int(OreCopper)), 1)

	h.task.SetPaused(false)
	h.run(t, MiningSeeking)
}

func TestMiningDrawShowsApproachCandidates(t *testing.T) {
	t.Parallel()
	h := newMiningHarness(t)

	var listed []pathQuery
	h.paths.list = func(q pathQuery) []mousedb.MouseMovement {
		listed = append(listed, q)
		return []mousedb.MouseMovement{movement(0, image.Pt(1000, 150), image.Pt(1040, 150))}
	}

	// No target yet, nothing to list.
	h.task.Draw(image.NewRGBA(image.Rect(0, 0, 200, 200)))
	assert.Empty(t, listed)

	h.run(t, MiningSeeking)
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	h.task.Draw(img)
	require.Len(t, listed, 1)
	assert.Equal(t, h.paths.queries[0], listed[0])
	assert.Equal(t, candidateColor, img.RGBAAt(0, 150))
	assert.Equal(t, candidateColor, img.RGBAAt(20, 150))

	h.task.Cancel()
	img = image.NewRGBA(image.Rect(0, 0, 200, 200))
	h.task.Draw(img)
	assert.Len(t, listed, 1)
	assert.Equal(t, color.RGBA{}, img.RGBAAt(20, 150))
}
