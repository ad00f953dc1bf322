package capture

import (
	"errors"
	"image"
	"sync"
)

// ErrNoFrame is returned before the first frame has been captured.
var ErrNoFrame = errors.New("no frame captured yet")

// FrameBuffer is a single-slot double buffer. The capture goroutine publishes
// into the back slot and swaps; readers always get their own copy of the
// front slot.
type FrameBuffer struct {
	mu    sync.Mutex
	front *image.RGBA
	back  *image.RGBA
}

// Publish makes img the latest frame. The buffer takes ownership of img.
func (b *FrameBuffer) Publish(img *image.RGBA) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.back = img
	b.front, b.back = b.back, b.front
}

// Latest returns a copy of the most recent frame.
func (b *FrameBuffer) Latest() (*image.RGBA, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.front == nil {
		return nil, ErrNoFrame
	}
	return cloneRGBA(b.front), nil
}

// Bounds returns the bounds of the latest frame, or the empty rectangle.
func (b *FrameBuffer) Bounds() image.Rectangle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.front == nil {
		return image.Rectangle{}
	}
	return b.front.Bounds()
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := &image.RGBA{
		Pix:    make([]uint8, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}
