package vision

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DrawRect draws the outline of r with the given line thickness. Pixels
// outside dst are skipped.
func DrawRect(dst draw.Image, r image.Rectangle, col color.Color, thickness int) {
	r = r.Canon()
	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			set(dst, x, r.Min.Y+t, col)
			set(dst, x, r.Max.Y-t-1, col)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			set(dst, r.Min.X+t, y, col)
			set(dst, r.Max.X-t-1, y, col)
		}
	}
}

// DrawLabel writes text with its top-left corner at p over a darkened
// background.
func DrawLabel(dst draw.Image, p image.Point, text string, col color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(col), Face: face}
	width := d.MeasureString(text).Ceil()

	bg := image.Rect(p.X, p.Y, p.X+width+2, p.Y+face.Height+2).Intersect(dst.Bounds())
	for y := bg.Min.Y; y < bg.Max.Y; y++ {
		for x := bg.Min.X; x < bg.Max.X; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			dst.Set(x, y, color.RGBA{R: uint8(r >> 9), G: uint8(g >> 9), B: uint8(b >> 9), A: 255})
		}
	}

	d.Dot = fixed.P(p.X+1, p.Y+1+face.Ascent)
	d.DrawString(text)
}

// DrawPath connects consecutive points with straight lines.
func DrawPath(dst draw.Image, points []image.Point, col color.Color) {
	for i := 1; i < len(points); i++ {
		drawLine(dst, points[i-1], points[i], col)
	}
	if len(points) == 1 {
		set(dst, points[0].X, points[0].Y, col)
	}
}

// drawLine is Bresenham's algorithm.
func drawLine(dst draw.Image, a, b image.Point, col color.Color) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}

	err := dx + dy
	for {
		set(dst, a.X, a.Y, col)
		if a == b {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			a.X += sx
		}
		if e2 <= dx {
			err += dx
			a.Y += sy
		}
	}
}

func set(dst draw.Image, x, y int, col color.Color) {
	if image.Pt(x, y).In(dst.Bounds()) {
		dst.Set(x, y, col)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
