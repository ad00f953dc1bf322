// Package tracking turns per-frame object detections into persistent tracked
// states.
//
// Detections flicker, split and change class from one frame to the next. The
// Tracker merges duplicate boxes, matches each detection to an existing state
// by overlap, ages out states that stop being seen and hands out generation
// checked Handles so a consumer can never hold on to a state that no longer
// exists.
package tracking

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// DefaultSimilarity is the overlap ratio above which two boxes are the same object.
const DefaultSimilarity = 0.25

// ErrClassMismatch is returned when merging boxes of different classes.
var ErrClassMismatch = errors.New("cannot merge boxes of different classes")

// DetectionBox is one detected object in frame pixel coordinates.
type DetectionBox struct {
	X       float64
	Y       float64
	W       float64
	H       float64
	ClassID int
}

// BoxFromRect converts an integer rectangle to a box.
func BoxFromRect(r image.Rectangle, classID int) DetectionBox {
	return DetectionBox{
		X:       float64(r.Min.X),
		Y:       float64(r.Min.Y),
		W:       float64(r.Dx()),
		H:       float64(r.Dy()),
		ClassID: classID,
	}
}

// Area returns W*H.
func (b DetectionBox) Area() float64 {
	return b.W * b.H
}

// Center returns the box centre rounded down to whole pixels.
func (b DetectionBox) Center() image.Point {
	return image.Pt(int(b.X+b.W/2), int(b.Y+b.H/2))
}

// Rect returns the box as an integer rectangle.
func (b DetectionBox) Rect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(math.Ceil(b.X+b.W)), int(math.Ceil(b.Y+b.H)))
}

// String implements fmt.Stringer.
func (b DetectionBox) String() string {
	return fmt.Sprintf("class %d (%.0f,%.0f %.0fx%.0f)", b.ClassID, b.X, b.Y, b.W, b.H)
}

// Overlaps reports whether the boxes touch or intersect.
func (b DetectionBox) Overlaps(o DetectionBox) bool {
	if b.X > o.X+o.W || b.X+b.W < o.X {
		return false
	}
	if b.Y > o.Y+o.H || b.Y+b.H < o.Y {
		return false
	}
	return true
}

// IsSimilar reports whether the overlap area, relative to the smaller of the
// two boxes, exceeds threshold. Class is not considered.
func (b DetectionBox) IsSimilar(o DetectionBox, threshold float64) bool {
	dx := math.Min(b.X+b.W, o.X+o.W) - math.Max(b.X, o.X)
	dy := math.Min(b.Y+b.H, o.Y+o.H) - math.Max(b.Y, o.Y)
	if dx <= 0 || dy <= 0 {
		return false
	}

	smaller := math.Min(b.Area(), o.Area())
	if smaller <= 0 {
		return false
	}
	return dx*dy/smaller > threshold
}

// Merge returns the union bounding box of two boxes of the same class.
func (b DetectionBox) Merge(o DetectionBox) (DetectionBox, error) {
	if b.ClassID != o.ClassID {
		return DetectionBox{}, fmt.Errorf("%w: %d and %d", ErrClassMismatch, b.ClassID, o.ClassID)
	}

	x1 := math.Min(b.X, o.X)
	y1 := math.Min(b.Y, o.Y)
	x2 := math.Max(b.X+b.W, o.X+o.W)
	y2 := math.Max(b.Y+b.H, o.Y+o.H)
	return DetectionBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1, ClassID: b.ClassID}, nil
}

// Dedup merges every pair of same-class boxes that are similar under
// threshold. Merging repeats until no pair qualifies, so running Dedup on its
// own output changes nothing. The input slice is not modified.
func Dedup(boxes []DetectionBox, threshold float64) []DetectionBox {
	out := make([]DetectionBox, len(boxes))
	copy(out, boxes)

	for merged := true; merged; {
		merged = false
		for i := 0; i < len(out); i++ {
			for j := i + 1; j < len(out); {
				if out[i].ClassID != out[j].ClassID || !out[i].IsSimilar(out[j], threshold) {
					j++
					continue
				}

				// Same class, so Merge cannot fail.
				out[i], _ = out[i].Merge(out[j])
				last := len(out) - 1
				out[j] = out[last]
				out = out[:last]
				merged = true

				// The grown box may now cover entries already passed.
				j = i + 1
			}
		}
	}
	return out
}
