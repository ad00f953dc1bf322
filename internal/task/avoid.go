package task

import (
	"orebot/internal/tracking"
)

// avoidedArea is a frame area the mining task will not pick a target from
// until its time runs out.
type avoidedArea struct {
	box       tracking.DetectionBox
	remaining float64
}

// avoidList holds areas of targets the task gave up on. Time is counted in
// frame seconds, not wall clock, so a stalled loop does not expire entries.
type avoidList struct {
	areas []avoidedArea
}

// Add avoids box for the given number of seconds. Non-positive durations
// are ignored.
func (l *avoidList) Add(box tracking.DetectionBox, seconds float64) {
	if seconds <= 0 {
		return
	}
	l.areas = append(l.areas, avoidedArea{box: box, remaining: seconds})
}

// Tick ages every area by dt and drops the expired ones.
func (l *avoidList) Tick(dt float64) {
	active := l.areas[:0]
	for _, a := range l.areas {
		a.remaining -= dt
		if a.remaining > 0 {
			active = append(active, a)
		}
	}
	l.areas = active
}

// Avoided reports whether box overlaps any active area.
func (l *avoidList) Avoided(box tracking.DetectionBox) bool {
	for _, a := range l.areas {
		if a.box.Overlaps(box) {
			return true
		}
	}
	return false
}

// Len returns the number of active areas.
func (l *avoidList) Len() int {
	return len(l.areas)
}
