package vision

import (
	"image"
	"sort"
)

// cluster groups nearby points into rectangles. Points are sorted by X and
// split wherever consecutive X values are more than distX apart; each X group
// is then sorted by Y and split the same way with distY. Each rectangle holds
// the pixels it covers (Max is exclusive) and the number of points in it.
func cluster(points []image.Point, distX, distY int) []blob {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]image.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].X < sorted[j].X
	})

	var xClusters [][]image.Point
	current := []image.Point{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].X-sorted[i-1].X <= distX {
			current = append(current, sorted[i])
		} else {
			xClusters = append(xClusters, current)
			current = []image.Point{sorted[i]}
		}
	}
	xClusters = append(xClusters, current)

	var out []blob
	for _, xc := range xClusters {
		sort.Slice(xc, func(i, j int) bool {
			return xc[i].Y < xc[j].Y
		})

		yc := []image.Point{xc[0]}
		for i := 1; i < len(xc); i++ {
			if xc[i].Y-xc[i-1].Y <= distY {
				yc = append(yc, xc[i])
			} else {
				out = append(out, toBlob(yc))
				yc = []image.Point{xc[i]}
			}
		}
		out = append(out, toBlob(yc))
	}
	return out
}

// blob is one cluster of matching pixels.
type blob struct {
	Rect   image.Rectangle
	Pixels int
}

func toBlob(points []image.Point) blob {
	r := image.Rectangle{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		if p.X < r.Min.X {
			r.Min.X = p.X
		}
		if p.X > r.Max.X {
			r.Max.X = p.X
		}
		if p.Y < r.Min.Y {
			r.Min.Y = p.Y
		}
		if p.Y > r.Max.Y {
			r.Max.Y = p.Y
		}
	}
	r.Max = r.Max.Add(image.Pt(1, 1))
	return blob{Rect: r, Pixels: len(points)}
}
