// Package mousedb stores recorded human mouse trajectories and answers
// "how would a person move from A to B" queries against them.
//
// A trajectory (MouseMovement) is an ordered list of points, each carrying the
// dwell time spent at that point before moving to the next one. Trajectories
// are persisted by Store, re-expressed relative to their first point by Index,
// and selected by QueryEngine with a harmonic, anti-repetition weighting.
//
// Database ties the three together and is the type the rest of the bot holds.
package mousedb

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"
)

// ClickState describes which button edge, if any, ended a recorded movement.
type ClickState int

const (
	ClickMove ClickState = iota // Plain movement, no button edge
	ClickDown                   // Movement ended with a button press
	ClickUp                     // Movement ended with a button release
)

// String returns the string representation of the click state
func (c ClickState) String() string {
	switch c {
	case ClickMove:
		return "move"
	case ClickDown:
		return "down"
	case ClickUp:
		return "up"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ClickState) MarshalText() ([]byte, error) {
	if c < ClickMove || c > ClickUp {
		return nil, fmt.Errorf("invalid click state %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClickState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "move", "":
		*c = ClickMove
	case "down":
		*c = ClickDown
	case "up":
		*c = ClickUp
	default:
		return fmt.Errorf("unknown click state %q", string(text))
	}
	return nil
}

// UnmarshalJSON accepts either the text form or the numeric enum value older
// recordings were written with.
func (c *ClickState) UnmarshalJSON(data []byte) error {
	n, ok, err := enumNumber(data, int(ClickUp))
	if err != nil {
		return fmt.Errorf("click state: %w", err)
	}
	if ok {
		*c = ClickState(n)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("click state: %w", err)
	}
	return c.UnmarshalText([]byte(text))
}

// Button identifies the mouse button a movement's click state applies to.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonMiddle
)

// String returns the lowercase button name
func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b Button) MarshalText() ([]byte, error) {
	if b < ButtonLeft || b > ButtonMiddle {
		return nil, fmt.Errorf("invalid button %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Button) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left", "":
		*b = ButtonLeft
	case "right":
		*b = ButtonRight
	case "middle":
		*b = ButtonMiddle
	default:
		return fmt.Errorf("unknown button %q", string(text))
	}
	return nil
}

// UnmarshalJSON accepts either the button name or its numeric enum value.
func (b *Button) UnmarshalJSON(data []byte) error {
	n, ok, err := enumNumber(data, int(ButtonMiddle))
	if err != nil {
		return fmt.Errorf("button: %w", err)
	}
	if ok {
		*b = Button(n)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("button: %w", err)
	}
	return b.UnmarshalText([]byte(text))
}

// enumNumber decodes data as an integer in [0, limit]. ok is false when data
// is not a JSON number.
func enumNumber(data []byte, limit int) (n int, ok bool, err error) {
	if len(data) == 0 || (data[0] != '-' && (data[0] < '0' || data[0] > '9')) {
		return 0, false, nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return 0, true, err
	}
	v, err := num.Int64()
	if err != nil {
		return 0, true, fmt.Errorf("%s is not an integer", num)
	}
	if v < 0 || v > int64(limit) {
		return 0, true, fmt.Errorf("value %d out of range", v)
	}
	return int(v), true, nil
}

// MousePoint is one sample of a trajectory. DeltaTime is the time in seconds
// the cursor stays at Pos before advancing to the next sample.
type MousePoint struct {
	Pos       image.Point
	DeltaTime float64
}

// MouseMovement is a recorded (or replayed) cursor trajectory.
//
// Min and Max bound every point and are maintained by AddPoint. A movement
// with a single point is a stationary dwell.
type MouseMovement struct {
	ID         uuid.UUID
	Points     []MousePoint
	Min        image.Point
	Max        image.Point
	Color      color.RGBA
	ClickState ClickState
	Button     Button
}

// NewMouseMovement creates an empty movement with a fresh identity.
func NewMouseMovement(c color.RGBA) MouseMovement {
	return MouseMovement{
		ID:    uuid.New(),
		Color: c,
	}
}

// AddPoint appends a sample and grows the bounding box.
func (m *MouseMovement) AddPoint(p image.Point, deltaTime float64) {
	if len(m.Points) == 0 {
		m.Min, m.Max = p, p
	} else {
		m.Min.X = min(m.Min.X, p.X)
		m.Min.Y = min(m.Min.Y, p.Y)
		m.Max.X = max(m.Max.X, p.X)
		m.Max.Y = max(m.Max.Y, p.Y)
	}
	m.Points = append(m.Points, MousePoint{Pos: p, DeltaTime: deltaTime})
}

// IsValid reports whether the movement has at least one point. An invalid
// movement is how queries say "no path right now".
func (m MouseMovement) IsValid() bool {
	return len(m.Points) > 0
}

// First returns the first point, or the zero point for an empty movement.
func (m MouseMovement) First() image.Point {
	if len(m.Points) == 0 {
		return image.Point{}
	}
	return m.Points[0].Pos
}

// Last returns the last point, or the zero point for an empty movement.
func (m MouseMovement) Last() image.Point {
	if len(m.Points) == 0 {
		return image.Point{}
	}
	return m.Points[len(m.Points)-1].Pos
}

// Displacement returns last - first.
func (m MouseMovement) Displacement() image.Point {
	return m.Last().Sub(m.First())
}

// IniEndDistance is the straight-line distance between the first and last point.
func (m MouseMovement) IniEndDistance() float64 {
	return r2.Norm(vec(m.Displacement()))
}

// Angle is atan2 of the first-to-last vector, in (-π, π].
func (m MouseMovement) Angle() float64 {
	d := m.Displacement()
	return math.Atan2(float64(d.Y), float64(d.X))
}

// TotalTime sums every point's dwell time.
func (m MouseMovement) TotalTime() float64 {
	var total float64
	for _, p := range m.Points {
		total += p.DeltaTime
	}
	return total
}

// Reset clears the movement in place, keeping its colour.
func (m *MouseMovement) Reset() {
	*m = MouseMovement{Color: m.Color}
}

// Clone returns a deep copy.
func (m MouseMovement) Clone() MouseMovement {
	out := m
	if m.Points != nil {
		out.Points = make([]MousePoint, len(m.Points))
		copy(out.Points, m.Points)
	}
	return out
}

// Translate returns a copy with every point shifted by offset.
func (m MouseMovement) Translate(offset image.Point) MouseMovement {
	out := m.Clone()
	for i := range out.Points {
		out.Points[i].Pos = out.Points[i].Pos.Add(offset)
	}
	if len(out.Points) > 0 {
		out.Min = out.Min.Add(offset)
		out.Max = out.Max.Add(offset)
	}
	return out
}

// Relative returns a copy whose first point sits at the origin.
func (m MouseMovement) Relative() MouseMovement {
	return m.Translate(image.Point{}.Sub(m.First()))
}

// vec promotes an integer point to a float vector.
func vec(p image.Point) r2.Vec {
	return r2.Vec{X: float64(p.X), Y: float64(p.Y)}
}
