// Package voronoi partitions the plane into nearest-seed cells using a binary
// space partition built from perpendicular bisectors.
//
// Cuts are inserted in order of increasing seed-pair distance. Each leaf of
// the tree keeps the seeds that can still own part of it and the convex
// polygon it covers, so a cut that cannot separate those seeds is skipped.
// When every pair has been processed each leaf holds exactly one seed.
package voronoi

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Epsilon is the step used to nudge a query point off a cell boundary.
const Epsilon = 1e-6

// ErrNoSeeds is returned when a diagram is requested for zero seeds.
var ErrNoSeeds = errors.New("voronoi: no seeds")

// line is the set {p : n.Dot(p) = d}. The positive side holds seed a.
type line struct {
	n    r2.Point
	d    float64
	a, b int
}

func (l line) side(p r2.Point) float64 { return l.n.Dot(p) - l.d }

// bisector returns the perpendicular bisector of seeds i and j oriented
// so that seed i is on the positive side.
func bisector(seeds []r2.Point, i, j int) line {
	p, q := seeds[i], seeds[j]
	n := p.Sub(q)
	mid := p.Add(q).Mul(0.5)
	return line{n: n, d: n.Dot(mid), a: i, b: j}
}

type node struct {
	cut         *line
	left, right *node // positive, non-positive side

	// leaf state
	candidates []int
	poly       []r2.Point
}

func (n *node) leaf() bool { return n.cut == nil }

// Diagram is an immutable Voronoi partition. Labels are 1-indexed seed
// positions.
type Diagram struct {
	seeds  []r2.Point
	bounds r2.Rect
	root   *node
	tree   *kdtree.Tree
	leaves int
}

// New builds the diagram of seeds over bounds. Bounds are expanded to cover
// every seed. Duplicate seeds are never separated; the lower index owns the
// shared cell.
func New(seeds []r2.Point, bounds r2.Rect) (*Diagram, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	if bounds.IsEmpty() {
		bounds = r2.EmptyRect()
	}
	for _, s := range seeds {
		bounds = bounds.AddPoint(s)
	}
	bounds = bounds.ExpandedByMargin(1)

	d := &Diagram{
		seeds:  append([]r2.Point(nil), seeds...),
		bounds: bounds,
	}
	v := bounds.Vertices()
	all := make([]int, len(seeds))
	for i := range all {
		all[i] = i
	}
	d.root = &node{candidates: all, poly: v[:]}
	d.leaves = 1

	for _, pr := range seedPairs(d.seeds) {
		if d.seeds[pr[0]] == d.seeds[pr[1]] {
			continue
		}
		cut := bisector(d.seeds, pr[0], pr[1])
		d.insert(d.root, &cut)
	}
	d.tree = kdtree.New(newSeedPoints(d.seeds), false)
	return d, nil
}

// seedPairs lists index pairs i<j sorted by distance, ties by (i, j).
func seedPairs(seeds []r2.Point) [][2]int {
	pairs := make([][2]int, 0, len(seeds)*(len(seeds)-1)/2)
	for i := range seeds {
		for j := i + 1; j < len(seeds); j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	dist := func(p [2]int) float64 {
		s := seeds[p[0]].Sub(seeds[p[1]])
		return s.Dot(s)
	}
	sort.SliceStable(pairs, func(x, y int) bool {
		return dist(pairs[x]) < dist(pairs[y])
	})
	return pairs
}

// insert applies cut to every leaf under n where both of its seeds are
// still candidates and the cut crosses the leaf's polygon.
func (d *Diagram) insert(n *node, cut *line) {
	if !n.leaf() {
		d.insert(n.left, cut)
		d.insert(n.right, cut)
		return
	}
	if !contains(n.candidates, cut.a) || !contains(n.candidates, cut.b) {
		return
	}
	pos, neg := clip(n.poly, cut)
	switch {
	case area(pos) <= minArea:
		n.candidates = remove(n.candidates, cut.a)
		return
	case area(neg) <= minArea:
		n.candidates = remove(n.candidates, cut.b)
		return
	}
	n.cut = cut
	n.left = &node{candidates: remove(n.candidates, cut.b), poly: pos}
	n.right = &node{candidates: remove(n.candidates, cut.a), poly: neg}
	n.candidates, n.poly = nil, nil
	d.leaves++
}

// clip splits a convex polygon by l into the parts with side > 0 and
// side <= 0.
func clip(poly []r2.Point, l *line) (pos, neg []r2.Point) {
	for i, p := range poly {
		q := poly[(i+1)%len(poly)]
		sp, sq := l.side(p), l.side(q)
		if sp > 0 {
			pos = append(pos, p)
		} else {
			neg = append(neg, p)
		}
		if (sp > 0) != (sq > 0) && sp != sq {
			t := sp / (sp - sq)
			x := p.Add(q.Sub(p).Mul(t))
			pos = append(pos, x)
			neg = append(neg, x)
		}
	}
	return pos, neg
}

// minArea is the smallest polygon area treated as a real cell.
const minArea = 1e-12

// area returns the unsigned area of a polygon.
func area(poly []r2.Point) float64 {
	if len(poly) < 3 {
		return 0
	}
	var a float64
	for i, p := range poly {
		a += p.Cross(poly[(i+1)%len(poly)])
	}
	return math.Abs(a) / 2
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func remove(s []int, v int) []int {
	out := make([]int, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Seeds returns a copy of the seed points.
func (d *Diagram) Seeds() []r2.Point { return append([]r2.Point(nil), d.seeds...) }

// Len returns the number of seeds.
func (d *Diagram) Len() int { return len(d.seeds) }

// Leaves returns the number of cells in the partition.
func (d *Diagram) Leaves() int { return d.leaves }

// Bounds returns the region covered by the partition.
func (d *Diagram) Bounds() r2.Rect { return d.bounds }

// Label returns the 1-indexed seed owning p. A point on a cell boundary is
// nudged by Epsilon along X, then Y; a point outside the bounds, or one that
// still lands on a boundary, is resolved by nearest-seed search with the
// lowest index winning ties.
func (d *Diagram) Label(p r2.Point) int {
	if d.bounds.ContainsPoint(p) {
		for _, q := range []r2.Point{p, {X: p.X + Epsilon, Y: p.Y}, {X: p.X, Y: p.Y + Epsilon}} {
			if l, ok := d.locate(q); ok {
				return l + 1
			}
		}
	}
	return d.NearestSeed(p) + 1
}

// locate walks the tree; ok is false when p lies on a cut or the leaf is
// not resolved to one seed.
func (d *Diagram) locate(p r2.Point) (int, bool) {
	n := d.root
	for !n.leaf() {
		s := n.cut.side(p)
		switch {
		case s > 0:
			n = n.left
		case s < 0:
			n = n.right
		default:
			return 0, false
		}
	}
	if len(n.candidates) == 0 {
		return 0, false
	}
	// Duplicated seeds leave several candidates; they share one location.
	return n.candidates[0], len(n.candidates) == 1 || d.allSame(n.candidates)
}

func (d *Diagram) allSame(idx []int) bool {
	for _, i := range idx[1:] {
		if d.seeds[i] != d.seeds[idx[0]] {
			return false
		}
	}
	return true
}

// NearestSeed returns the 0-indexed nearest seed to p, lowest index on ties.
func (d *Diagram) NearestSeed(p r2.Point) int {
	q := seedPoint{p: p, idx: -1}
	_, dist := d.tree.Nearest(q)
	keep := kdtree.NewDistKeeper(dist)
	d.tree.NearestSet(keep, q)
	best := -1
	for _, c := range keep.Heap {
		if s, ok := c.Comparable.(seedPoint); ok && (best < 0 || s.idx < best) {
			best = s.idx
		}
	}
	if best < 0 {
		return linearNearest(d.seeds, p)
	}
	return best
}

func linearNearest(seeds []r2.Point, p r2.Point) int {
	best, bestDist := 0, 0.0
	for i, s := range seeds {
		v := s.Sub(p)
		if dd := v.Dot(v); i == 0 || dd < bestDist {
			best, bestDist = i, dd
		}
	}
	return best
}

func (d *Diagram) String() string {
	return fmt.Sprintf("voronoi{%d seeds, %d cells, bounds %s}", len(d.seeds), d.leaves, d.bounds)
}
