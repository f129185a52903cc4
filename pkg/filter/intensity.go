package filter

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"microquant/pkg/image5d"
	"microquant/pkg/logging"
)

// RenormalizeFilter linearly maps the active region's [min, max] onto
// [0, Max]. A constant image becomes all zero.
type RenormalizeFilter struct {
	Max float64
}

func (r *RenormalizeFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	lo, hi := math.Inf(1), math.Inf(-1)
	for c := range im.Coordinates() {
		v := im.Value(c)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return nil
	}
	if hi == lo {
		im.Fill(0)
		return nil
	}
	scale := r.Max / (hi - lo)
	for c := range im.Coordinates() {
		im.SetValue(c, (im.Value(c)-lo)*scale)
	}
	return nil
}

// MaskFilter zeroes every pixel whose reference pixel is background.
type MaskFilter struct{}

func (MaskFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	if ref == nil {
		return fmt.Errorf("mask: %w", ErrMissingReference)
	}
	if ref.Dimensions() != im.Dimensions() {
		return fmt.Errorf("mask %s vs image %s: %w", ref.Dimensions(), im.Dimensions(), image5d.ErrDimensionMismatch)
	}
	for c := range im.Coordinates() {
		if ref.Value(c) <= 0 {
			im.SetValue(c, Background)
		}
	}
	return nil
}

// BackgroundEstimate is the background level subtracted from one channel and
// timepoint.
type BackgroundEstimate struct {
	Channel, Timepoint int
	Value              float64
}

// BackgroundSubtractionFilter estimates background as the median of pixels
// outside the reference mask, separately for each channel and timepoint,
// and subtracts it. Results are clamped at 0. A channel with no background
// pixels is left untouched.
type BackgroundSubtractionFilter struct {
	// Estimates holds the levels used by the last Apply.
	Estimates []BackgroundEstimate
}

func (b *BackgroundSubtractionFilter) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	if ref == nil {
		return fmt.Errorf("background subtraction: %w", ErrMissingReference)
	}
	if ref.Dimensions() != im.Dimensions() {
		return fmt.Errorf("background mask %s vs image %s: %w", ref.Dimensions(), im.Dimensions(), image5d.ErrDimensionMismatch)
	}
	b.Estimates = b.Estimates[:0]
	box, _ := im.BoxOfInterest()
	if box.Empty() {
		return nil
	}
	view := im.WritableShallowCopy()
	for t := box.Lower[image5d.T]; t < box.Upper[image5d.T]; t++ {
		for ch := box.Lower[image5d.C]; ch < box.Upper[image5d.C]; ch++ {
			lower := box.Lower.With(image5d.C, ch).With(image5d.T, t)
			upper := box.Upper.With(image5d.C, ch+1).With(image5d.T, t+1)
			if err := view.SetBoxOfInterest(lower, upper, false); err != nil {
				return err
			}
			var samples stats.Float64Data
			for c := range view.Coordinates() {
				if ref.Value(c) <= 0 {
					samples = append(samples, view.Value(c))
				}
			}
			level, err := stats.Median(samples)
			if err != nil {
				logging.Warningf("background c=%d t=%d: no pixels outside mask, skipping", ch, t)
				continue
			}
			b.Estimates = append(b.Estimates, BackgroundEstimate{Channel: ch, Timepoint: t, Value: level})
			for c := range view.Coordinates() {
				view.SetValue(c, math.Max(view.Value(c)-level, 0))
			}
		}
	}
	return nil
}
