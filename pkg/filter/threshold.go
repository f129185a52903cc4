package filter

import (
	"fmt"

	"microquant/pkg/image5d"
	"microquant/pkg/logging"
)

// MaxSeparabilityLevel picks the split level L in 1..MaxValue that maximizes
// the between-class variance of {pixels < L} and {pixels >= L}. The lowest
// level wins ties. ok is false when no level separates two non-empty classes,
// which happens when at most one level is populated.
func MaxSeparabilityLevel(h *image5d.Histogram) (level int, ok bool) {
	total := float64(h.TotalCount())
	if total == 0 {
		return 0, false
	}
	var sumAll float64
	for l, n := range h.Counts() {
		sumAll += float64(l) * float64(n)
	}

	best := 0.0
	var below, sumBelow float64
	for l := 1; l <= h.MaxValue(); l++ {
		n := float64(h.CountAt(l - 1))
		below += n
		sumBelow += float64(l-1) * n
		above := total - below
		if below == 0 || above == 0 {
			continue
		}
		meanBelow := sumBelow / below
		meanAbove := (sumAll - sumBelow) / above
		d := meanBelow - meanAbove
		between := below * above * d * d
		if between > best {
			best = between
			level = l
			ok = true
		}
	}
	return level, ok
}

// binarize writes Foreground where src >= level and Background elsewhere.
func binarize(im *image5d.WritableImage, src *image5d.Image, level float64) {
	for c := range im.Coordinates() {
		if src.Value(c) >= level {
			im.SetValue(c, Foreground)
		} else {
			im.SetValue(c, Background)
		}
	}
}

// FixedThreshold marks pixels at or above Level as foreground.
type FixedThreshold struct {
	Level float64
}

func (f *FixedThreshold) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	binarize(im, im.ReadOnly(), f.Level)
	return nil
}

// MaxSeparabilityThreshold binarizes an image at the level that best
// separates its histogram into two classes. When ref is given the level is
// computed from ref and applied to im.
//
// An image with a single populated level has nothing to separate and becomes
// all background.
type MaxSeparabilityThreshold struct {
	// Level is the split level chosen by the last Apply, -1 when degenerate.
	Level int
}

func (m *MaxSeparabilityThreshold) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	src := im.ReadOnly()
	if ref != nil {
		if ref.Dimensions() != im.Dimensions() {
			return fmt.Errorf("threshold reference %s vs image %s: %w", ref.Dimensions(), im.Dimensions(), image5d.ErrDimensionMismatch)
		}
		src = ref
	}
	level, ok := MaxSeparabilityLevel(image5d.NewHistogram(src))
	if !ok {
		m.Level = -1
		logging.Debugf("max-separability threshold: degenerate histogram, image set to background")
		im.Fill(Background)
		return nil
	}
	m.Level = level
	logging.Debugf("max-separability threshold level %d", level)
	binarize(im, im.DeepCopy().ReadOnly(), float64(level))
	return nil
}

// LocalMaxSeparabilityThreshold computes a max-separability level for each
// square XY window and marks a pixel foreground when it reaches the mean
// level of the windows covering it. Windows step by WindowSize-Overlap.
// Pixels covered only by degenerate windows become background.
type LocalMaxSeparabilityThreshold struct {
	WindowSize int
	Overlap    int
}

func (l *LocalMaxSeparabilityThreshold) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	if l.WindowSize <= 0 {
		return fmt.Errorf("local threshold window size %d must be positive", l.WindowSize)
	}
	step := l.WindowSize - l.Overlap
	if l.Overlap < 0 || step <= 0 {
		return fmt.Errorf("local threshold overlap %d must be in [0, %d)", l.Overlap, l.WindowSize)
	}

	snapshot := im.DeepCopy().ReadOnly()
	src := snapshot
	if ref != nil {
		if ref.Dimensions() != im.Dimensions() {
			return fmt.Errorf("threshold reference %s vs image %s: %w", ref.Dimensions(), im.Dimensions(), image5d.ErrDimensionMismatch)
		}
		src = ref.ShallowCopy()
	}

	box, _ := im.BoxOfInterest()
	width := box.Upper[image5d.X] - box.Lower[image5d.X]
	height := box.Upper[image5d.Y] - box.Lower[image5d.Y]
	if width <= 0 || height <= 0 {
		return nil
	}
	sums := make([]float64, width*height)
	counts := make([]int, width*height)

	for t := box.Lower[image5d.T]; t < box.Upper[image5d.T]; t++ {
		for ch := box.Lower[image5d.C]; ch < box.Upper[image5d.C]; ch++ {
			for z := box.Lower[image5d.Z]; z < box.Upper[image5d.Z]; z++ {
				clear(sums)
				clear(counts)
				for _, y0 := range windowStarts(box.Lower[image5d.Y], box.Upper[image5d.Y], l.WindowSize, step) {
					for _, x0 := range windowStarts(box.Lower[image5d.X], box.Upper[image5d.X], l.WindowSize, step) {
						lower := image5d.NewCoordinate(x0, y0, z, ch, t)
						upper := image5d.NewCoordinate(
							min(x0+l.WindowSize, box.Upper[image5d.X]),
							min(y0+l.WindowSize, box.Upper[image5d.Y]),
							z+1, ch+1, t+1)
						if err := src.SetBoxOfInterest(lower, upper, true); err != nil {
							return err
						}
						level, ok := MaxSeparabilityLevel(image5d.NewHistogram(src))
						if !ok {
							continue
						}
						for c := range src.Coordinates() {
							i := (c[image5d.Y]-box.Lower[image5d.Y])*width + c[image5d.X] - box.Lower[image5d.X]
							sums[i] += float64(level)
							counts[i]++
						}
					}
				}
				for y := 0; y < height; y++ {
					for x := 0; x < width; x++ {
						c := image5d.NewCoordinate(box.Lower[image5d.X]+x, box.Lower[image5d.Y]+y, z, ch, t)
						i := y*width + x
						if counts[i] > 0 && snapshot.Value(c) >= sums[i]/float64(counts[i]) {
							im.SetValue(c, Foreground)
						} else {
							im.SetValue(c, Background)
						}
					}
				}
			}
		}
	}
	return nil
}

// windowStarts returns window origins from lo that step through [lo, hi),
// with the last window ending at or beyond hi.
func windowStarts(lo, hi, size, step int) []int {
	var starts []int
	for s := lo; ; s += step {
		starts = append(starts, s)
		if s+size >= hi {
			break
		}
	}
	return starts
}
