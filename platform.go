// Package main - platform.go
//
// This file implements the native desktop backend using robotgo.
//
// Key Responsibilities:
//   - NativeInput: OS-level cursor moves and button toggles (task.Input)
//   - ScreenGrabber: screen region capture (capture.Grabber)
//
// Coordinates:
// Both types work in desktop coordinates. The capture region may start at
// negative coordinates when a monitor sits left of or above the primary one;
// capture.Mapper converts between the region and frame pixels.
//
// Recording:
// robotgo cannot observe physical button state, so NativeInput reports only
// the cursor position and recording needs the browser backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/go-vgo/robotgo"

	"orebot/internal/mousedb"
)

var errRecordingUnsupported = errors.New("recording needs the browser backend")

// MouseInput is an input backend the bot can drive and record from.
type MouseInput interface {
	SetCursor(p image.Point) error
	Click(p image.Point, button mousedb.Button, phase mousedb.ClickState) error
	Cursor() image.Point
	// Poll returns the cursor samples observed since the previous call.
	Poll(ctx context.Context, button mousedb.Button) ([]mousedb.Sample, error)
}

// NativeInput drives the real mouse through robotgo.
type NativeInput struct {
	mu   sync.Mutex
	held map[mousedb.Button]bool
}

// NewNativeInput creates a native input backend
func NewNativeInput() *NativeInput {
	return &NativeInput{held: make(map[mousedb.Button]bool)}
}

// SetCursor moves the cursor to p.
func (n *NativeInput) SetCursor(p image.Point) error {
	robotgo.Move(p.X, p.Y)
	return nil
}

// Click moves to p and presses or releases button. ClickMove only moves.
func (n *NativeInput) Click(p image.Point, button mousedb.Button, phase mousedb.ClickState) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	robotgo.Move(p.X, p.Y)

	switch phase {
	case mousedb.ClickDown:
		if err := robotgo.Toggle(robotgoButton(button)); err != nil {
			return fmt.Errorf("press %s at %v: %w", button, p, err)
		}
		n.held[button] = true
		LogDebug("Native %s down at (%d, %d)", button, p.X, p.Y)
	case mousedb.ClickUp:
		if err := robotgo.Toggle(robotgoButton(button), "up"); err != nil {
			return fmt.Errorf("release %s at %v: %w", button, p, err)
		}
		delete(n.held, button)
		LogDebug("Native %s up at (%d, %d)", button, p.X, p.Y)
	}
	return nil
}

// Cursor returns the current cursor position.
func (n *NativeInput) Cursor() image.Point {
	x, y := robotgo.Location()
	return image.Pt(x, y)
}

// Poll reports the cursor position only.
func (n *NativeInput) Poll(ctx context.Context, button mousedb.Button) ([]mousedb.Sample, error) {
	return []mousedb.Sample{{Pos: n.Cursor()}}, errRecordingUnsupported
}

// ReleaseAll releases every button this backend pressed. Called on shutdown
// so an interrupted click never leaves a button held.
func (n *NativeInput) ReleaseAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for b := range n.held {
		if err := robotgo.Toggle(robotgoButton(b), "up"); err != nil {
			LogWarn("Failed to release %s: %v", b, err)
		}
		delete(n.held, b)
	}
}

// robotgoButton maps b to robotgo's button name.
func robotgoButton(b mousedb.Button) string {
	if b == mousedb.ButtonMiddle {
		return "center"
	}
	return b.String()
}

// ScreenGrabber captures a desktop region.
type ScreenGrabber struct {
	region image.Rectangle
}

// NewScreenGrabber captures region, or the whole primary screen when region
// is empty.
func NewScreenGrabber(region image.Rectangle) *ScreenGrabber {
	if region.Empty() {
		w, h := robotgo.GetScreenSize()
		region = image.Rect(0, 0, w, h)
	}
	LogInfo("Screen capture region: %v", region)
	return &ScreenGrabber{region: region}
}

// Region returns the captured desktop rectangle.
func (g *ScreenGrabber) Region() image.Rectangle {
	return g.region
}

// Grab captures one frame.
func (g *ScreenGrabber) Grab(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := g.region
	img, err := robotgo.CaptureImg(r.Min.X, r.Min.Y, r.Dx(), r.Dy())
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return toRGBA(img), nil
}

// toRGBA returns img as *image.RGBA with bounds starting at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
