package voronoi

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// seedPoint is a seed position with its index, stored in the kd-tree.
type seedPoint struct {
	p   r2.Point
	idx int
}

// Compare implements kdtree.Comparable.
func (s seedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(seedPoint)
	switch d {
	case 0:
		return s.p.X - q.p.X
	case 1:
		return s.p.Y - q.p.Y
	default:
		panic("illegal dimension")
	}
}

// Dims implements kdtree.Comparable.
func (s seedPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance.
func (s seedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(seedPoint)
	v := s.p.Sub(q.p)
	return v.Dot(v)
}

// seedPoints satisfies kdtree.Interface.
type seedPoints []seedPoint

func newSeedPoints(seeds []r2.Point) seedPoints {
	out := make(seedPoints, len(seeds))
	for i, s := range seeds {
		out[i] = seedPoint{p: s, idx: i}
	}
	return out
}

func (p seedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p seedPoints) Len() int                              { return len(p) }
func (p seedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p seedPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(seedPlane{seedPoints: p, Dim: d}, kdtree.MedianOfRandoms(seedPlane{seedPoints: p, Dim: d}, 100))
}

// seedPlane sorts seeds along one dimension for kd-tree construction.
type seedPlane struct {
	seedPoints
	kdtree.Dim
}

func (p seedPlane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.seedPoints[i].p.X < p.seedPoints[j].p.X
	}
	return p.seedPoints[i].p.Y < p.seedPoints[j].p.Y
}

func (p seedPlane) Slice(start, end int) kdtree.SortSlicer {
	p.seedPoints = p.seedPoints[start:end]
	return p
}

func (p seedPlane) Swap(i, j int) {
	p.seedPoints[i], p.seedPoints[j] = p.seedPoints[j], p.seedPoints[i]
}
