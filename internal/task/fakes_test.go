package task

import (
	"errors"
	"image"

	"orebot/internal/mousedb"
	"orebot/internal/tracking"
)

type inputEvent struct {
	Pos   image.Point
	Phase mousedb.ClickState
}

// fakeInput records every event. Moves are recorded with ClickMove.
type fakeInput struct {
	cursor image.Point
	events []inputEvent
	err    error
}

func (f *fakeInput) SetCursor(p image.Point) error {
	f.cursor = p
	f.events = append(f.events, inputEvent{Pos: p, Phase: mousedb.ClickMove})
	return f.err
}

func (f *fakeInput) Click(p image.Point, _ mousedb.Button, phase mousedb.ClickState) error {
	f.cursor = p
	f.events = append(f.events, inputEvent{Pos: p, Phase: phase})
	return f.err
}

func (f *fakeInput) Cursor() image.Point {
	return f.cursor
}

func (f *fakeInput) clicks() []inputEvent {
	var out []inputEvent
	for _, e := range f.events {
		if e.Phase != mousedb.ClickMove {
			out = append(out, e)
		}
	}
	return out
}

type scriptedDetector struct {
	boxes []tracking.DetectionBox
	err   error
	calls int
}

func (d *scriptedDetector) Infer(image.Image) ([]tracking.DetectionBox, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	out := make([]tracking.DetectionBox, len(d.boxes))
	copy(out, d.boxes)
	return out, nil
}

type pathQuery struct {
	From, To image.Point
	Radius   float64
	Window   mousedb.Window
}

// fakePaths answers queries with respond; a nil respond matches nothing.
// Candidates answers with list and does not record the query.
type fakePaths struct {
	queries []pathQuery
	respond func(q pathQuery) mousedb.MouseMovement
	list    func(q pathQuery) []mousedb.MouseMovement
}

func (f *fakePaths) Query(from, to image.Point, radius float64, window mousedb.Window) mousedb.MouseMovement {
	q := pathQuery{From: from, To: to, Radius: radius, Window: window}
	f.queries = append(f.queries, q)
	if f.respond == nil {
		return mousedb.MouseMovement{}
	}
	return f.respond(q)
}

func (f *fakePaths) Candidates(from, to image.Point, radius float64, window mousedb.Window) []mousedb.MouseMovement {
	if f.list == nil {
		return nil
	}
	return f.list(pathQuery{From: from, To: to, Radius: radius, Window: window})
}

func (f *fakePaths) withWindow(w mousedb.Window) []pathQuery {
	var out []pathQuery
	for _, q := range f.queries {
		if q.Window == w {
			out = append(out, q)
		}
	}
	return out
}

// offsetMapper places the frame at off on the desktop.
type offsetMapper struct {
	off image.Point
}

func (m offsetMapper) SystemToFrame(p image.Point) image.Point { return p.Sub(m.off) }
func (m offsetMapper) FrameToSystem(p image.Point) image.Point { return p.Add(m.off) }

func movement(dt float64, points ...image.Point) mousedb.MouseMovement {
	var m mousedb.MouseMovement
	for _, p := range points {
		m.AddPoint(p, dt)
	}
	return m
}

var errInput = errors.New("input unavailable")
