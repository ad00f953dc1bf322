package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func TestDrawRectOutline(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	DrawRect(img, image.Rect(2, 2, 8, 8), white, 1)

	assert.Equal(t, white, img.RGBAAt(2, 2))
	assert.Equal(t, white, img.RGBAAt(7, 7))
	assert.Equal(t, white, img.RGBAAt(5, 2))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(5, 5))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(8, 8))
}

func TestDrawRectClipsToImage(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.NotPanics(t, func() {
		DrawRect(img, image.Rect(-5, -5, 20, 20), white, 2)
	})
}

func TestDrawPath(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	DrawPath(img, []image.Point{{0, 0}, {4, 4}, {4, 8}}, white)
	for _, p := range []image.Point{{0, 0}, {2, 2}, {4, 4}, {4, 6}, {4, 8}} {
		assert.Equal(t, white, img.RGBAAt(p.X, p.Y), "point %v", p)
	}
	assert.Equal(t, color.RGBA{}, img.RGBAAt(0, 4))

	single := image.NewRGBA(image.Rect(0, 0, 3, 3))
	DrawPath(single, []image.Point{{1, 1}}, white)
	assert.Equal(t, white, single.RGBAAt(1, 1))
}

func TestDrawLabelDarkensBackground(t *testing.T) {
	t.Parallel()

	grey := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	fill(img, img.Bounds(), grey)

	DrawLabel(img, image.Pt(0, 0), "Cu", white)

	// Outside the label the image is untouched.
	assert.Equal(t, grey, img.RGBAAt(39, 19))

	var lit, dark int
	for y := 0; y < 15; y++ {
		for x := 0; x < 16; x++ {
			switch img.RGBAAt(x, y) {
			case white:
				lit++
			case color.RGBA{R: 100, G: 100, B: 100, A: 255}:
				dark++
			}
		}
	}
	assert.Positive(t, lit)
	assert.Positive(t, dark)
}
