package filter

import (
	"microquant/pkg/image5d"
	"microquant/pkg/logging"
)

// LabelFilter assigns a unique positive label to each connected group of
// foreground pixels. Connectivity spans X, Y and Z within one channel and
// timepoint: 8-connected for a single plane, 26-connected for a stack, or 4-
// and 6-connected when FaceConnected is set. Labels are numbered from 1 in
// the order regions are first met during an X-fastest scan and are unique
// across the whole active region. Pixels <= 0 become 0.
type LabelFilter struct {
	FaceConnected bool

	// Count is the number of regions found by the last Apply.
	Count int
}

// NewLabelFilter returns a full-connectivity labeler.
func NewLabelFilter() *LabelFilter {
	return &LabelFilter{}
}

func (l *LabelFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	box, _ := im.BoxOfInterest()
	l.Count = 0
	if box.Empty() {
		return nil
	}
	lo := box.Lower
	w := box.Upper[image5d.X] - lo[image5d.X]
	h := box.Upper[image5d.Y] - lo[image5d.Y]
	d := box.Upper[image5d.Z] - lo[image5d.Z]
	offsets := backwardOffsets(l.FaceConnected)
	ids := make([]int, w*h*d)
	next := 1

	for t := lo[image5d.T]; t < box.Upper[image5d.T]; t++ {
		for ch := lo[image5d.C]; ch < box.Upper[image5d.C]; ch++ {
			uf := newUnionFind(64)
			for z := 0; z < d; z++ {
				for y := 0; y < h; y++ {
					for x := 0; x < w; x++ {
						idx := (z*h+y)*w + x
						c := image5d.NewCoordinate(lo[image5d.X]+x, lo[image5d.Y]+y, lo[image5d.Z]+z, ch, t)
						if im.Value(c) <= 0 {
							ids[idx] = -1
							continue
						}
						id := -1
						for _, o := range offsets {
							nx, ny, nz := x+o[0], y+o[1], z+o[2]
							if nx < 0 || nx >= w || ny < 0 || ny >= h || nz < 0 {
								continue
							}
							n := ids[(nz*h+ny)*w+nx]
							if n < 0 {
								continue
							}
							if id < 0 {
								id = n
							} else {
								uf.union(id, n)
							}
						}
						if id < 0 {
							id = uf.add()
						}
						ids[idx] = id
					}
				}
			}

			final := make([]int, len(uf.parent))
			for z := 0; z < d; z++ {
				for y := 0; y < h; y++ {
					for x := 0; x < w; x++ {
						c := image5d.NewCoordinate(lo[image5d.X]+x, lo[image5d.Y]+y, lo[image5d.Z]+z, ch, t)
						id := ids[(z*h+y)*w+x]
						if id < 0 {
							im.SetValue(c, Background)
							continue
						}
						r := uf.find(id)
						if final[r] == 0 {
							final[r] = next
							next++
						}
						im.SetValue(c, float64(final[r]))
					}
				}
			}
		}
	}
	l.Count = next - 1
	logging.Debugf("labeled %d regions", l.Count)
	return nil
}

// backwardOffsets lists the neighbour offsets (dx, dy, dz) already visited by
// an X-fastest scan.
func backwardOffsets(faceOnly bool) [][3]int {
	var out [][3]int
	for dz := -1; dz <= 0; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dz == 0 && (dy > 0 || (dy == 0 && dx >= 0)) {
					continue
				}
				if faceOnly && abs(dx)+abs(dy)+abs(dz) != 1 {
					continue
				}
				out = append(out, [3]int{dx, dy, dz})
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// RelabelFilter renumbers the positive labels of a mask to 1..K in the order
// each label is first met during an X-fastest scan. Pixels sharing a label
// before share one after. Pixels below 1 become 0.
type RelabelFilter struct {
	// Count is K for the last Apply.
	Count int
}

func (r *RelabelFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	mapping := make(map[int]int)
	for c := range im.Coordinates() {
		old := im.Label(c)
		if old == 0 {
			im.SetValue(c, Background)
			continue
		}
		n, ok := mapping[old]
		if !ok {
			n = len(mapping) + 1
			mapping[old] = n
		}
		im.SetValue(c, float64(n))
	}
	r.Count = len(mapping)
	return nil
}

// regionSizes counts pixels per positive label over im's active region.
func regionSizes(im *image5d.Image) map[int]int {
	sizes := make(map[int]int)
	for c := range im.Coordinates() {
		if l := im.Label(c); l > 0 {
			sizes[l]++
		}
	}
	return sizes
}
