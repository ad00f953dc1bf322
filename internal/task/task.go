// Package task holds the pluggable units of bot work and the collaborators
// they run against.
//
// A Task is loaded once and then run once per frame by a Registry. Tasks
// share data through a Resources blackboard: each task declares the
// resources it reads and the ones it publishes, and the Registry checks that
// every input is produced by something earlier in the list.
//
// Collaborators (mouse input, object detector, movement database, coordinate
// mapping) are interfaces so tasks can be driven by fakes in tests and by
// robotgo, chromedp or the colour detector at runtime.
package task

import (
	"image"
	"image/draw"

	"orebot/internal/mousedb"
	"orebot/internal/tracking"
)

// Task is one pluggable unit of bot work.
type Task interface {
	// Name is the display name, also used as the registry key.
	Name() string
	// Load prepares the task. It is called once before the first Run.
	Load() error
	// Run advances the task by dt seconds.
	Run(dt float64)
	// Draw renders the task's debug overlay onto dst.
	Draw(dst draw.Image)
	// InputResources lists the resources Run reads.
	InputResources() []string
	// OutputResources lists the resources Run publishes.
	OutputResources() []string
}

// Input injects simulated mouse events in desktop coordinates.
type Input interface {
	// SetCursor moves the cursor to p.
	SetCursor(p image.Point) error
	// Click moves the cursor to p and presses (ClickDown) or releases
	// (ClickUp) button.
	Click(p image.Point, button mousedb.Button, phase mousedb.ClickState) error
	// Cursor returns the current cursor position.
	Cursor() image.Point
}

// Detector finds objects in a frame.
type Detector interface {
	Infer(img image.Image) ([]tracking.DetectionBox, error)
}

// PathFinder returns recorded movements between two points. An invalid
// movement means nothing matched.
type PathFinder interface {
	Query(from, to image.Point, radius float64, window mousedb.Window) mousedb.MouseMovement
}

// CandidateLister is implemented by PathFinders that can list every movement
// a Query would choose from. The mining overlay draws them.
type CandidateLister interface {
	Candidates(from, to image.Point, radius float64, window mousedb.Window) []mousedb.MouseMovement
}

// CoordinateMapper converts between desktop and frame coordinates.
type CoordinateMapper interface {
	SystemToFrame(p image.Point) image.Point
	FrameToSystem(p image.Point) image.Point
}
