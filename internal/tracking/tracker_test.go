package tracking

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	classCopper   = 2
	classDepleted = 7
)

func newTestTracker() *Tracker {
	return NewTracker(DefaultConfig(), zerolog.Nop())
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestTrackerCreatesAndMatches(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	ore := DetectionBox{X: 100, Y: 100, W: 40, H: 40, ClassID: classCopper}

	events := tr.Update([]DetectionBox{ore}, 0.016)
	require.Equal(t, []EventKind{EventCreated}, kinds(events))
	h := events[0].Handle

	moved := ore
	moved.X += 4
	events = tr.Update([]DetectionBox{moved}, 0.016)
	require.Equal(t, []EventKind{EventMatched}, kinds(events))
	assert.Equal(t, h, events[0].Handle)

	st, status := tr.Lookup(h)
	assert.Equal(t, StatusLive, status)
	assert.Equal(t, moved, st.Box)
	assert.True(t, st.Visible())
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerDedupsBeforeMatching(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	events := tr.Update([]DetectionBox{
		{X: 0, Y: 0, W: 10, H: 10, ClassID: classCopper},
		{X: 2, Y: 2, W: 10, H: 10, ClassID: classCopper},
	}, 0.016)

	assert.Equal(t, []EventKind{EventCreated}, kinds(events))
	require.Len(t, tr.States(), 1)
	assert.Equal(t, DetectionBox{X: 0, Y: 0, W: 12, H: 12, ClassID: classCopper}, tr.States()[0].Box)
}

func TestTrackerEvictsAfterTTL(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	events := tr.Update([]DetectionBox{{X: 0, Y: 0, W: 10, H: 10, ClassID: classCopper}}, 0)
	h := events[0].Handle

	assert.Empty(t, tr.Update(nil, 3))
	st, status := tr.Lookup(h)
	require.Equal(t, StatusLive, status)
	assert.InDelta(t, 3.0, st.LastSeen, 1e-9)
	assert.False(t, st.Visible())

	// Exactly at the TTL the state survives.
	assert.Empty(t, tr.Update(nil, 2))
	_, status = tr.Lookup(h)
	require.Equal(t, StatusLive, status)

	events = tr.Update(nil, 0.5)
	require.Equal(t, []EventKind{EventEvicted}, kinds(events))
	assert.Equal(t, h, events[0].Handle)

	_, status = tr.Lookup(h)
	assert.Equal(t, StatusEvicted, status)
	assert.Zero(t, tr.Len())
}

func TestTrackerReusedSlotKeepsOldHandleDead(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	old := tr.Update([]DetectionBox{{X: 0, Y: 0, W: 10, H: 10, ClassID: classCopper}}, 0)[0].Handle
	tr.Update(nil, 6)

	fresh := tr.Update([]DetectionBox{{X: 300, Y: 300, W: 10, H: 10, ClassID: classCopper}}, 0)[0].Handle
	assert.Equal(t, old.slot, fresh.slot)
	assert.NotEqual(t, old, fresh)

	_, status := tr.Lookup(old)
	assert.Equal(t, StatusEvicted, status)
	_, status = tr.Lookup(fresh)
	assert.Equal(t, StatusLive, status)
}

func TestTrackerReclassification(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	ore := DetectionBox{X: 50, Y: 50, W: 30, H: 30, ClassID: classCopper}
	h := tr.Update([]DetectionBox{ore}, 0.1)[0].Handle

	depleted := ore
	depleted.ClassID = classDepleted
	events := tr.Update([]DetectionBox{depleted}, 0.1)

	require.Equal(t, []EventKind{EventReclassified}, kinds(events))
	assert.Equal(t, h, events[0].Previous)
	assert.NotEqual(t, h, events[0].Handle)

	st, status := tr.Lookup(h)
	assert.Equal(t, StatusReclassified, status)
	assert.Equal(t, classDepleted, st.Box.ClassID)

	st, status = tr.Lookup(events[0].Handle)
	assert.Equal(t, StatusLive, status)
	assert.Equal(t, events[0].Handle, st.Handle)
}

func TestTrackerReclassifiedTwiceInOneFrame(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	h := tr.Update([]DetectionBox{{X: 0, Y: 0, W: 10, H: 10, ClassID: classCopper}}, 0.1)[0].Handle

	// Both detections match the same state; dedup keeps them apart because
	// their classes differ.
	events := tr.Update([]DetectionBox{
		{X: 0, Y: 0, W: 10, H: 10, ClassID: classDepleted},
		{X: 1, Y: 1, W: 10, H: 10, ClassID: classCopper},
	}, 0.1)
	require.Equal(t, []EventKind{EventReclassified, EventReclassified}, kinds(events))
	assert.Equal(t, h, events[0].Previous)
	assert.Equal(t, events[0].Handle, events[1].Previous)

	st, status := tr.Lookup(h)
	assert.Equal(t, StatusReclassified, status)
	assert.Equal(t, events[1].Handle, st.Handle)

	_, status = tr.Lookup(events[0].Handle)
	assert.Equal(t, StatusReclassified, status)
	_, status = tr.Lookup(events[1].Handle)
	assert.Equal(t, StatusLive, status)
}

func TestTrackerReclassifiedThenEvicted(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	ore := DetectionBox{X: 0, Y: 0, W: 10, H: 10, ClassID: classCopper}
	h := tr.Update([]DetectionBox{ore}, 0)[0].Handle

	ore.ClassID = classDepleted
	next := tr.Update([]DetectionBox{ore}, 0)[0].Handle
	tr.Update(nil, 6)

	st, status := tr.Lookup(h)
	assert.Equal(t, StatusReclassified, status)
	assert.Equal(t, TrackedState{}, st)
	_, status = tr.Lookup(next)
	assert.Equal(t, StatusEvicted, status)

	// A new object in the same slot starts a separate history.
	fresh := tr.Update([]DetectionBox{{X: 200, Y: 200, W: 10, H: 10, ClassID: classCopper}}, 0)[0].Handle
	require.Equal(t, h.slot, fresh.slot)
	_, status = tr.Lookup(h)
	assert.Equal(t, StatusReclassified, status)
	_, status = tr.Lookup(next)
	assert.Equal(t, StatusEvicted, status)
}

func TestTrackerFirstMatchWins(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	first := tr.Update([]DetectionBox{{X: 0, Y: 0, W: 10, H: 10, ClassID: classCopper}}, 0.1)[0].Handle
	second := tr.Update([]DetectionBox{{X: 30, Y: 0, W: 10, H: 10, ClassID: classCopper}}, 0.1)[0].Handle

	// Overlaps the second state far more, but the first is earlier in the list.
	det := DetectionBox{X: 7, Y: 0, W: 30, H: 10, ClassID: classCopper}
	events := tr.Update([]DetectionBox{det}, 0.1)

	require.Equal(t, []EventKind{EventMatched}, kinds(events))
	assert.Equal(t, first, events[0].Handle)

	st, _ := tr.Lookup(first)
	assert.Equal(t, det, st.Box)
	st, _ = tr.Lookup(second)
	assert.False(t, st.Visible())
}

func TestTrackerVisibleFiltersClassAndFreshness(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	tr.Update([]DetectionBox{
		{X: 0, Y: 0, W: 10, H: 10, ClassID: classCopper},
		{X: 100, Y: 0, W: 10, H: 10, ClassID: classDepleted},
	}, 0.1)
	tr.Update([]DetectionBox{{X: 200, Y: 0, W: 10, H: 10, ClassID: classCopper}}, 0.1)

	visible := tr.Visible(classCopper)
	require.Len(t, visible, 1)
	assert.InDelta(t, 200.0, visible[0].Box.X, 1e-9)
	assert.Len(t, tr.States(), 3)
}

func TestTrackerLookupInvalidHandles(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	_, status := tr.Lookup(Handle{})
	assert.Equal(t, StatusInvalid, status)
	_, status = tr.Lookup(Handle{slot: 12, gen: 1})
	assert.Equal(t, StatusInvalid, status)
}

func TestTrackerReset(t *testing.T) {
	t.Parallel()

	tr := newTestTracker()
	h := tr.Update([]DetectionBox{{X: 0, Y: 0, W: 10, H: 10, ClassID: classCopper}}, 0)[0].Handle
	tr.Reset()

	assert.Zero(t, tr.Len())
	_, status := tr.Lookup(h)
	assert.Equal(t, StatusEvicted, status)
}
