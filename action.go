// Package main - action.go
//
// This file implements mouse input for the browser backend.
//
// Key Responsibilities:
//   - Cursor moves, presses and releases dispatched to the page (task.Input)
//   - Button state for drags, so moves while a button is held carry it
//   - Polling the recording hook (MouseInput)
//
// Architecture:
// Events are dispatched through the DevTools protocol with
// input.DispatchMouseEvent, which delivers them to the page exactly like
// real mouse events. Unlike the native backend this works while the browser
// window is in the background.
//
// Error Handling:
// All dispatches use 2-second timeouts to prevent blocking the frame loop.
package main

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"orebot/internal/mousedb"
)

// Action provides mouse input through the browser.
type Action struct {
	browser *Browser

	mu   sync.Mutex
	pos  image.Point
	held map[mousedb.Button]bool
}

// NewAction creates a new Action instance
func NewAction(browser *Browser) *Action {
	return &Action{
		browser: browser,
		held:    make(map[mousedb.Button]bool),
	}
}

// SetCursor moves the cursor to p.
func (a *Action) SetCursor(p image.Point) error {
	return a.Click(p, mousedb.ButtonLeft, mousedb.ClickMove)
}

// Click dispatches a move to p followed by a press or release of button.
//
// Examples:
//   Click(p, ButtonLeft, ClickMove) → mouseMoved at p (with held buttons)
//   Click(p, ButtonLeft, ClickDown) → mouseMoved, mousePressed(left)
//   Click(p, ButtonLeft, ClickUp)   → mouseMoved, mouseReleased(left)
func (a *Action) Click(p image.Point, button mousedb.Button, phase mousedb.ClickState) error {
	pageCtx, err := a.browser.pageContext()
	if err != nil {
		LogDebug("Click: browser context invalid")
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	x, y := float64(p.X), float64(p.Y)
	actions := []chromedp.Action{
		a.withHeld(input.DispatchMouseEvent(input.MouseMoved, x, y)),
	}
	switch phase {
	case mousedb.ClickDown:
		actions = append(actions, input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(cdpButton(button)).
			WithButtons(a.buttonMask()|buttonBit(button)).
			WithClickCount(1))
	case mousedb.ClickUp:
		actions = append(actions, input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(cdpButton(button)).
			WithButtons(a.buttonMask()&^buttonBit(button)).
			WithClickCount(1))
	}

	ctx, cancel := context.WithTimeout(pageCtx, 2*time.Second)
	defer cancel()

	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("mouse %s at (%d, %d): %w", phase, p.X, p.Y, err)
	}

	a.pos = p
	switch phase {
	case mousedb.ClickDown:
		a.held[button] = true
		a.browser.LogAction(fmt.Sprintf("Mouse %s down: (%d, %d)", button, p.X, p.Y))
	case mousedb.ClickUp:
		delete(a.held, button)
		a.browser.LogAction(fmt.Sprintf("Mouse %s up: (%d, %d)", button, p.X, p.Y))
	}
	return nil
}

// Cursor returns the last position the cursor was moved to.
func (a *Action) Cursor() image.Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos
}

// Poll drains the recording hook.
func (a *Action) Poll(ctx context.Context, button mousedb.Button) ([]mousedb.Sample, error) {
	return a.browser.PollMouse(ctx, button)
}

// ReleaseAll releases every button this backend pressed.
func (a *Action) ReleaseAll() {
	a.mu.Lock()
	held := make([]mousedb.Button, 0, len(a.held))
	for b := range a.held {
		held = append(held, b)
	}
	pos := a.pos
	a.mu.Unlock()

	for _, b := range held {
		if err := a.Click(pos, b, mousedb.ClickUp); err != nil {
			LogWarn("Failed to release %s: %v", b, err)
		}
	}
}

// withHeld marks a move as a drag while buttons are held.
func (a *Action) withHeld(p *input.DispatchMouseEventParams) *input.DispatchMouseEventParams {
	mask := a.buttonMask()
	if mask == 0 {
		return p
	}
	for b := range a.held {
		p = p.WithButton(cdpButton(b))
		break
	}
	return p.WithButtons(mask)
}

func (a *Action) buttonMask() int64 {
	var mask int64
	for b := range a.held {
		mask |= buttonBit(b)
	}
	return mask
}

func cdpButton(b mousedb.Button) input.MouseButton {
	switch b {
	case mousedb.ButtonRight:
		return input.Right
	case mousedb.ButtonMiddle:
		return input.Middle
	default:
		return input.Left
	}
}

// buttonBit is the DOM buttons bitmask value of b.
func buttonBit(b mousedb.Button) int64 {
	switch b {
	case mousedb.ButtonRight:
		return 2
	case mousedb.ButtonMiddle:
		return 4
	default:
		return 1
	}
}
