package filter

import (
	"fmt"

	"microquant/pkg/image5d"
	"microquant/pkg/logging"
)

// SizeAbsoluteFilter zeroes every labeled region whose pixel count lies
// outside [Min, Max]. Max <= 0 means no upper bound. Labels are left with
// gaps; run a RelabelFilter afterwards.
type SizeAbsoluteFilter struct {
	Min, Max int
}

func (s *SizeAbsoluteFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	if s.Max > 0 && s.Max < s.Min {
		return fmt.Errorf("size filter bounds [%d, %d] are inverted", s.Min, s.Max)
	}
	removed := removeRegions(im, func(size int) bool {
		return size < s.Min || (s.Max > 0 && size > s.Max)
	})
	logging.Debugf("size filter [%d, %d] removed %d regions", s.Min, s.Max, removed)
	return nil
}

// SizeRelativeFilter keeps regions whose size lies within
// [LowerFactor, UpperFactor] times the mean region size. UpperFactor <= 0
// means no upper bound.
type SizeRelativeFilter struct {
	LowerFactor, UpperFactor float64
}

func (s *SizeRelativeFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	sizes := regionSizes(im.ReadOnly())
	if len(sizes) == 0 {
		return nil
	}
	total := 0
	for _, n := range sizes {
		total += n
	}
	mean := float64(total) / float64(len(sizes))
	lo, hi := s.LowerFactor*mean, s.UpperFactor*mean
	removed := removeRegions(im, func(size int) bool {
		f := float64(size)
		return f < lo || (s.UpperFactor > 0 && f > hi)
	})
	logging.Debugf("relative size filter kept [%.1f, %.1f] px, removed %d regions", lo, hi, removed)
	return nil
}

// removeRegions zeroes each label for which drop(size) is true and returns
// how many labels were removed.
func removeRegions(im *image5d.WritableImage, drop func(size int) bool) int {
	sizes := regionSizes(im.ReadOnly())
	gone := make(map[int]bool)
	for label, n := range sizes {
		if drop(n) {
			gone[label] = true
		}
	}
	if len(gone) == 0 {
		return 0
	}
	for c := range im.Coordinates() {
		if l := im.Label(c); l > 0 && gone[l] {
			im.SetValue(c, Background)
		}
	}
	return len(gone)
}
