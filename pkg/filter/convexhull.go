package filter

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/golang/geo/r2"

	"microquant/pkg/image5d"
)

// ConvexHull returns the convex hull of pts in counter-clockwise order with
// collinear points dropped. Fewer than three distinct points are returned as
// they are.
func ConvexHull(pts []r2.Point) []r2.Point {
	p := slices.Clone(pts)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	p = slices.Compact(p)
	if len(p) < 3 {
		return p
	}
	turn := func(o, a, b r2.Point) float64 { return a.Sub(o).Cross(b.Sub(o)) }

	hull := make([]r2.Point, 0, 2*len(p))
	for _, q := range p {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], q) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, q)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		q := p[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], q) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, q)
	}
	return hull[:len(hull)-1]
}

// insideConvex reports whether q is inside or on a counter-clockwise hull.
func insideConvex(hull []r2.Point, q r2.Point) bool {
	const eps = 1e-9
	for i, a := range hull {
		b := hull[(i+1)%len(hull)]
		if b.Sub(a).Cross(q.Sub(a)) < -eps {
			return false
		}
	}
	return true
}

// ConvexHullByLabelFilter replaces each region of the reference label image
// with its filled convex hull in each XY plane and writes the result into
// the target. Pixels claimed by more than one hull keep the lower label;
// labeled reference pixels always keep their own label.
type ConvexHullByLabelFilter struct{}

func (ConvexHullByLabelFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	if ref == nil {
		return fmt.Errorf("convex hull: %w", ErrMissingReference)
	}
	if ref.Dimensions() != im.Dimensions() {
		return fmt.Errorf("convex hull reference %s vs image %s: %w", ref.Dimensions(), im.Dimensions(), image5d.ErrDimensionMismatch)
	}
	box, _ := im.BoxOfInterest()
	for _, p := range boxPlanes(box) {
		points := make(map[int][]r2.Point)
		for y := 0; y < p.h; y++ {
			for x := 0; x < p.w; x++ {
				v := ref.Value(p.coord(x, y))
				im.SetValue(p.coord(x, y), math.Max(v, 0))
				if l := ref.Label(p.coord(x, y)); l > 0 {
					points[l] = append(points[l], r2.Point{X: float64(x), Y: float64(y)})
				}
			}
		}
		labels := make([]int, 0, len(points))
		for l := range points {
			labels = append(labels, l)
		}
		sort.Ints(labels)
		for _, l := range labels {
			hull := ConvexHull(points[l])
			if len(hull) < 3 {
				continue
			}
			bounds := r2.RectFromPoints(hull...)
			for y := int(bounds.Y.Lo); y <= int(bounds.Y.Hi); y++ {
				for x := int(bounds.X.Lo); x <= int(bounds.X.Hi); x++ {
					c := p.coord(x, y)
					if im.Value(c) > 0 {
						continue
					}
					if insideConvex(hull, r2.Point{X: float64(x), Y: float64(y)}) {
						im.SetValue(c, float64(l))
					}
				}
			}
		}
	}
	return nil
}
