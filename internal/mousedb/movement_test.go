package mousedb

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(x, y int, dt float64) MousePoint {
	return MousePoint{Pos: image.Pt(x, y), DeltaTime: dt}
}

func makeMovement(points ...MousePoint) MouseMovement {
	m := NewMouseMovement(color.RGBA{R: 10, G: 20, B: 30, A: 255})
	for _, p := range points {
		m.AddPoint(p.Pos, p.DeltaTime)
	}
	return m
}

func TestMouseMovementGeometry(t *testing.T) {
	t.Parallel()

	m := makeMovement(pt(10, 10, 0.1), pt(4, 18, 0.2), pt(13, 14, 0.3))

	assert.True(t, m.IsValid())
	assert.Equal(t, image.Pt(4, 10), m.Min)
	assert.Equal(t, image.Pt(13, 18), m.Max)
	assert.Equal(t, image.Pt(3, 4), m.Displacement())
	assert.InDelta(t, 5.0, m.IniEndDistance(), 1e-9)
	assert.InDelta(t, math.Atan2(4, 3), m.Angle(), 1e-9)
	assert.InDelta(t, 0.6, m.TotalTime(), 1e-9)
}

func TestMouseMovementSinglePointIsDwell(t *testing.T) {
	t.Parallel()

	m := makeMovement(pt(7, 7, 1.5))

	assert.True(t, m.IsValid())
	assert.Zero(t, m.IniEndDistance())
	assert.Zero(t, m.Angle())
	assert.InDelta(t, 1.5, m.TotalTime(), 1e-9)
}

func TestMouseMovementEmpty(t *testing.T) {
	t.Parallel()

	var m MouseMovement
	assert.False(t, m.IsValid())
	assert.Zero(t, m.IniEndDistance())
	assert.Zero(t, m.TotalTime())
	assert.Equal(t, image.Point{}, m.Last())
}

func TestMouseMovementTranslateAndRelative(t *testing.T) {
	t.Parallel()

	m := makeMovement(pt(10, 20, 0.1), pt(15, 25, 0.2))

	rel := m.Relative()
	require.Len(t, rel.Points, 2)
	assert.Equal(t, image.Pt(0, 0), rel.Points[0].Pos)
	assert.Equal(t, image.Pt(5, 5), rel.Points[1].Pos)
	assert.Equal(t, image.Pt(0, 0), rel.Min)
	assert.Equal(t, image.Pt(5, 5), rel.Max)

	moved := rel.Translate(image.Pt(100, 200))
	assert.Equal(t, image.Pt(100, 200), moved.First())
	assert.Equal(t, image.Pt(105, 205), moved.Last())

	// The source is untouched.
	assert.Equal(t, image.Pt(10, 20), m.First())
}

func TestMouseMovementResetAndClone(t *testing.T) {
	t.Parallel()

	m := makeMovement(pt(1, 1, 0.1), pt(2, 2, 0.1))
	m.ClickState = ClickDown

	c := m.Clone()
	c.Points[0].Pos = image.Pt(99, 99)
	assert.Equal(t, image.Pt(1, 1), m.Points[0].Pos)

	m.Reset()
	assert.False(t, m.IsValid())
	assert.Equal(t, ClickMove, m.ClickState)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, m.Color)
}

func TestClickStateText(t *testing.T) {
	t.Parallel()

	for _, c := range []ClickState{ClickMove, ClickDown, ClickUp} {
		text, err := c.MarshalText()
		require.NoError(t, err)

		var got ClickState
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, c, got)
	}

	var c ClickState
	assert.Error(t, c.UnmarshalText([]byte("sideways")))
}
