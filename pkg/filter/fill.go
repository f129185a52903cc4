package filter

import (
	"microquant/pkg/image5d"
)

// planeRect is the XY extent of a box together with one (z, c, t) index.
type planeRect struct {
	x0, y0, w, h int
	z, c, t      int
}

func (p planeRect) coord(x, y int) image5d.Coordinate {
	return image5d.NewCoordinate(p.x0+x, p.y0+y, p.z, p.c, p.t)
}

// boxPlanes lists every XY plane of a box.
func boxPlanes(box image5d.Box) []planeRect {
	if box.Empty() {
		return nil
	}
	var out []planeRect
	for t := box.Lower[image5d.T]; t < box.Upper[image5d.T]; t++ {
		for c := box.Lower[image5d.C]; c < box.Upper[image5d.C]; c++ {
			for z := box.Lower[image5d.Z]; z < box.Upper[image5d.Z]; z++ {
				out = append(out, planeRect{
					x0: box.Lower[image5d.X],
					y0: box.Lower[image5d.Y],
					w:  box.Upper[image5d.X] - box.Lower[image5d.X],
					h:  box.Upper[image5d.Y] - box.Lower[image5d.Y],
					z:  z,
					c:  c,
					t:  t,
				})
			}
		}
	}
	return out
}

var faceOffsets2D = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// FillFilter fills background holes enclosed by foreground within each XY
// plane. A hole is background not 4-connected to the plane border; it takes
// the most common label among the pixels bordering it, lowest on ties.
type FillFilter struct{}

func (FillFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	box, _ := im.BoxOfInterest()
	for _, p := range boxPlanes(box) {
		fillPlane(im, p)
	}
	return nil
}

func fillPlane(im *image5d.WritableImage, p planeRect) {
	values := make([]float64, p.w*p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			values[y*p.w+x] = im.Value(p.coord(x, y))
		}
	}
	// 0 unvisited, 1 outside, 2 hole already filled
	state := make([]uint8, len(values))
	var queue []int
	push := func(i int) {
		if values[i] <= 0 && state[i] == 0 {
			state[i] = 1
			queue = append(queue, i)
		}
	}
	for x := 0; x < p.w; x++ {
		push(x)
		push((p.h-1)*p.w + x)
	}
	for y := 0; y < p.h; y++ {
		push(y * p.w)
		push(y*p.w + p.w - 1)
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x, y := i%p.w, i/p.w
		for _, o := range faceOffsets2D {
			nx, ny := x+o[0], y+o[1]
			if nx >= 0 && nx < p.w && ny >= 0 && ny < p.h {
				push(ny*p.w + nx)
			}
		}
	}

	for start := range values {
		if values[start] > 0 || state[start] != 0 {
			continue
		}
		hole := []int{start}
		state[start] = 2
		votes := make(map[float64]int)
		for k := 0; k < len(hole); k++ {
			i := hole[k]
			x, y := i%p.w, i/p.w
			for _, o := range faceOffsets2D {
				nx, ny := x+o[0], y+o[1]
				if nx < 0 || nx >= p.w || ny < 0 || ny >= p.h {
					continue
				}
				n := ny*p.w + nx
				if values[n] > 0 {
					votes[values[n]]++
				} else if state[n] == 0 {
					state[n] = 2
					hole = append(hole, n)
				}
			}
		}
		label, best := 0.0, 0
		for v, n := range votes {
			if n > best || (n == best && v < label) {
				label, best = v, n
			}
		}
		if best == 0 {
			continue
		}
		for _, i := range hole {
			im.SetValue(p.coord(i%p.w, i/p.w), label)
		}
	}
}
