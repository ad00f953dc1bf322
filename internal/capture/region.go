// Package capture grabs frames of the screen area the bot watches and maps
// points between desktop and frame coordinates.
package capture

import (
	"image"
)

// Mapper converts points between the desktop ("system") coordinate space and
// the pixel space of a captured frame. Region is the desktop rectangle the
// frames are captured from; it may start at negative coordinates on
// multi-monitor setups.
type Mapper struct {
	Region image.Rectangle
}

// SystemToFrame clamps p to the capture region and returns it in frame
// coordinates. Coordinates that are still negative wrap around the frame.
func (m Mapper) SystemToFrame(p image.Point, frame image.Rectangle) image.Point {
	if m.Region.Empty() || frame.Empty() {
		return p
	}

	q := image.Point{
		X: clamp(p.X, m.Region.Min.X, m.Region.Max.X-1),
		Y: clamp(p.Y, m.Region.Min.Y, m.Region.Max.Y-1),
	}.Sub(m.Region.Min)

	for q.X < 0 {
		q.X += frame.Dx()
	}
	for q.Y < 0 {
		q.Y += frame.Dy()
	}
	return q.Add(frame.Min)
}

// FrameToSystem clamps p to the frame and offsets it by the region origin.
func (m Mapper) FrameToSystem(p image.Point, frame image.Rectangle) image.Point {
	if frame.Empty() {
		return p.Add(m.Region.Min)
	}

	q := image.Point{
		X: clamp(p.X, frame.Min.X, frame.Max.X-1),
		Y: clamp(p.Y, frame.Min.Y, frame.Max.Y-1),
	}.Sub(frame.Min)
	return q.Add(m.Region.Min)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
