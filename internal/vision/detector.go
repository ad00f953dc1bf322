// Package vision finds ore in captured frames.
//
// ColorDetector is the built-in detector: it scans every pixel for the
// configured class colours, clusters the matches and reports one
// tracking.DetectionBox per cluster. It needs no model files and runs in pure
// Go, which also makes it the detector the offline check uses.
package vision

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"orebot/internal/tracking"
)

// ErrNoClasses is returned when a detector has no colours to look for.
var ErrNoClasses = errors.New("detector has no classes configured")

// ClassColor is one detectable class and the colour that identifies it.
type ClassColor struct {
	ClassID   int
	Name      string
	Color     color.RGBA
	Tolerance uint8
}

// Matches reports whether c is within Tolerance of the class colour on every
// channel. Mostly transparent pixels never match.
func (cc ClassColor) Matches(c color.RGBA) bool {
	if c.A < 250 {
		return false
	}
	t := int(cc.Tolerance)
	return absDiff(c.R, cc.Color.R) <= t &&
		absDiff(c.G, cc.Color.G) <= t &&
		absDiff(c.B, cc.Color.B) <= t
}

// Config tunes a ColorDetector.
type Config struct {
	Classes []ClassColor
	// ClusterX and ClusterY are the pixel gaps that still join two matches.
	ClusterX int
	ClusterY int
	// Clusters with fewer matching pixels, or smaller than MinSize on either
	// side, are dropped as noise.
	MinPixels int
	MinSize   int
	// Workers is the number of goroutines scanning row bands. Zero uses
	// GOMAXPROCS.
	Workers int
}

// DefaultConfig returns detector defaults for the given classes.
func DefaultConfig(classes []ClassColor) Config {
	return Config{
		Classes:   classes,
		ClusterX:  4,
		ClusterY:  4,
		MinPixels: 12,
		MinSize:   4,
	}
}

// ColorDetector implements colour-cluster detection.
type ColorDetector struct {
	cfg Config
	log zerolog.Logger
}

// NewColorDetector creates a detector.
func NewColorDetector(cfg Config, log zerolog.Logger) *ColorDetector {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &ColorDetector{
		cfg: cfg,
		log: log.With().Str("component", "detector").Logger(),
	}
}

// Classes returns the configured classes.
func (d *ColorDetector) Classes() []ClassColor {
	return d.cfg.Classes
}

// Infer returns every cluster of class-coloured pixels in img, in frame
// coordinates. Boxes are not deduplicated; the tracker does that.
func (d *ColorDetector) Infer(img image.Image) ([]tracking.DetectionBox, error) {
	if len(d.cfg.Classes) == 0 {
		return nil, ErrNoClasses
	}
	rgba := toRGBA(img)

	points := d.scan(rgba)

	var boxes []tracking.DetectionBox
	for ci, pts := range points {
		class := d.cfg.Classes[ci]
		for _, b := range cluster(pts, d.cfg.ClusterX, d.cfg.ClusterY) {
			if b.Pixels < d.cfg.MinPixels || b.Rect.Dx() < d.cfg.MinSize || b.Rect.Dy() < d.cfg.MinSize {
				continue
			}
			boxes = append(boxes, tracking.BoxFromRect(b.Rect, class.ClassID))
		}
	}

	d.log.Debug().Int("boxes", len(boxes)).Msg("inference done")
	return boxes, nil
}

// scan collects matching pixels per class, splitting the rows into bands
// scanned in parallel.
func (d *ColorDetector) scan(img *image.RGBA) [][]image.Point {
	bounds := img.Bounds()
	workers := d.cfg.Workers
	if rows := bounds.Dy(); rows < workers {
		workers = max(rows, 1)
	}

	results := make([][][]image.Point, workers)
	band := (bounds.Dy() + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		y0 := bounds.Min.Y + w*band
		y1 := min(y0+band, bounds.Max.Y)
		wg.Add(1)
		go func(w, y0, y1 int) {
			defer wg.Done()
			results[w] = d.scanRows(img, y0, y1)
		}(w, y0, y1)
	}
	wg.Wait()

	merged := make([][]image.Point, len(d.cfg.Classes))
	for _, r := range results {
		for ci := range merged {
			merged[ci] = append(merged[ci], r[ci]...)
		}
	}
	return merged
}

func (d *ColorDetector) scanRows(img *image.RGBA, y0, y1 int) [][]image.Point {
	out := make([][]image.Point, len(d.cfg.Classes))
	bounds := img.Bounds()
	for y := y0; y < y1; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			for ci, class := range d.cfg.Classes {
				if class.Matches(c) {
					out[ci] = append(out[ci], image.Pt(x, y))
					break
				}
			}
		}
	}
	return out
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
