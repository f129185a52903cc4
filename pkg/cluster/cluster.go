// Package cluster regroups labeled regions by spatial proximity. Region
// centroids seed a Voronoi partition; the Gaussian-smoothed foreground is
// split among the cells and centroids are recomputed until the assignment
// settles.
package cluster

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"

	"microquant/pkg/filter"
	"microquant/pkg/image5d"
	"microquant/pkg/logging"
	"microquant/pkg/voronoi"
)

// Centroid is the mean position of one labeled region in an XY plane.
type Centroid struct {
	Label int
	Point r2.Point
	Size  int
}

// Centroids returns the centroid of every positive label in plane (z, c, t),
// sorted by label.
func Centroids(im *image5d.Image, z, c, t int) []Centroid {
	d := im.Dimensions()
	sums := make(map[int]*Centroid)
	for y := 0; y < d[image5d.Y]; y++ {
		for x := 0; x < d[image5d.X]; x++ {
			l := im.Label(image5d.NewCoordinate(x, y, z, c, t))
			if l == 0 {
				continue
			}
			s, ok := sums[l]
			if !ok {
				s = &Centroid{Label: l}
				sums[l] = s
			}
			s.Point = s.Point.Add(r2.Point{X: float64(x), Y: float64(y)})
			s.Size++
		}
	}
	out := make([]Centroid, 0, len(sums))
	for _, s := range sums {
		s.Point = s.Point.Mul(1 / float64(s.Size))
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// ObjectClustering reassigns the foreground of a label mask to clusters
// seeded at region centroids. Each XY plane is processed on its own:
//
//  1. the foreground is blurred with a Gaussian of Sigma and re-binarized at
//     half intensity;
//  2. every smoothed foreground pixel takes the label of its Voronoi cell;
//  3. centroids are recomputed from the new labels.
//
// Steps 2 and 3 repeat until no pixel changes or MaxIterations is reached.
// The result is relabeled to 1..K over the whole image.
type ObjectClustering struct {
	MaxIterations int
	Sigma         float64

	// Iterations records how many passes each plane used in the last Apply.
	Iterations []int
}

// NewObjectClustering returns a clustering filter with common defaults.
func NewObjectClustering() *ObjectClustering {
	return &ObjectClustering{MaxIterations: 10, Sigma: 1.0}
}

func (o *ObjectClustering) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	if o.MaxIterations <= 0 {
		return fmt.Errorf("clustering: max iterations %d must be positive", o.MaxIterations)
	}
	o.Iterations = o.Iterations[:0]
	d := im.Dimensions()
	for t := 0; t < d[image5d.T]; t++ {
		for c := 0; c < d[image5d.C]; c++ {
			for z := 0; z < d[image5d.Z]; z++ {
				n, err := o.clusterPlane(im, z, c, t)
				if err != nil {
					return fmt.Errorf("clustering plane z=%d c=%d t=%d: %w", z, c, t, err)
				}
				o.Iterations = append(o.Iterations, n)
			}
		}
	}
	return (&filter.RelabelFilter{}).Apply(im, nil)
}

func (o *ObjectClustering) clusterPlane(im *image5d.WritableImage, z, c, t int) (int, error) {
	centroids := Centroids(im.ReadOnly(), z, c, t)
	if len(centroids) == 0 {
		return 0, nil
	}
	d := im.Dimensions()
	w, h := d[image5d.X], d[image5d.Y]
	smoothed := o.smoothMask(im.ReadOnly(), z, c, t)
	bounds := r2.RectFromPoints(r2.Point{X: 0, Y: 0}, r2.Point{X: float64(w - 1), Y: float64(h - 1)})

	labels := make([]float64, w*h)
	iter := 0
	for iter < o.MaxIterations {
		iter++
		seeds := make([]r2.Point, len(centroids))
		for i, ct := range centroids {
			seeds[i] = ct.Point
		}
		diagram, err := voronoi.New(seeds, bounds)
		if err != nil {
			return iter, err
		}
		changed := 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				next := 0.0
				if smoothed[i] {
					next = float64(diagram.Label(r2.Point{X: float64(x), Y: float64(y)}))
				}
				if next != labels[i] {
					changed++
					labels[i] = next
				}
				im.SetValue(image5d.NewCoordinate(x, y, z, c, t), next)
			}
		}
		logging.Debugf("clustering z=%d c=%d t=%d pass %d: %d clusters, %d pixels changed", z, c, t, iter, len(centroids), changed)
		if changed == 0 {
			break
		}
		centroids = Centroids(im.ReadOnly(), z, c, t)
		if len(centroids) == 0 {
			break
		}
	}
	return iter, nil
}

// smoothMask blurs the plane's foreground and returns which pixels stay at
// or above half intensity.
func (o *ObjectClustering) smoothMask(im *image5d.Image, z, c, t int) []bool {
	d := im.Dimensions()
	w, h := d[image5d.X], d[image5d.Y]
	gray := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if im.Value(image5d.NewCoordinate(x, y, z, c, t)) > 0 {
				gray.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	blurred := imaging.Blur(gray, o.Sigma)
	out := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = blurred.NRGBAAt(x, y).R >= 128
		}
	}
	return out
}
