package image5d

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"microquant/pkg/logging"
)

// MaxHistogramLevel is the highest level NewHistogram stores. The number of
// bins follows the brightest pixel, so larger values are counted at this
// level.
const MaxHistogramLevel = 1 << 20

// Histogram is an immutable snapshot of pixel statistics over the active
// region of one image. Pixel values are binned by their floor; negative and
// non-finite values are skipped and reported once.
type Histogram struct {
	counts     []int
	cumulative []int
	total      int
	negative   int

	mean, variance               float64
	meanNonzero, varianceNonzero float64
	mode                         int
}

// NewHistogram computes the histogram of im's active region.
func NewHistogram(im *Image) *Histogram {
	h := &Histogram{}
	maxLevel := 0
	var warn, clamp logging.Once
	for c := range im.Coordinates() {
		v := im.buf.At(c)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			h.negative++
			warn.Warningf("histogram skipping pixel value %g at %s", v, c)
			continue
		}
		if v > MaxHistogramLevel {
			clamp.Warningf("histogram clamping pixel value %g at %s to %d", v, c, MaxHistogramLevel)
			v = MaxHistogramLevel
		}
		level := int(math.Floor(v))
		if level >= len(h.counts) {
			grown := make([]int, max(level+1, 2*len(h.counts)))
			copy(grown, h.counts)
			h.counts = grown
		}
		if level > maxLevel {
			maxLevel = level
		}
		h.counts[level]++
		h.total++
	}
	if h.negative > 0 {
		logging.Debugf("histogram skipped %d negative pixels", h.negative)
	}
	if len(h.counts) == 0 {
		h.counts = []int{0}
	} else {
		h.counts = h.counts[:maxLevel+1]
	}
	h.finish()
	return h
}

// HistogramFromCounts builds a histogram from per-level counts. Mostly useful
// to thresholding code that assembles counts itself.
func HistogramFromCounts(counts []int) *Histogram {
	h := &Histogram{counts: make([]int, len(counts))}
	copy(h.counts, counts)
	if len(h.counts) == 0 {
		h.counts = []int{0}
	}
	for _, n := range h.counts {
		h.total += n
	}
	h.finish()
	return h
}

func (h *Histogram) finish() {
	h.cumulative = make([]int, len(h.counts))
	running := 0
	best := 0
	for level, n := range h.counts {
		running += n
		h.cumulative[level] = running
		if level > 0 && n > best {
			best = n
			h.mode = level
		}
	}

	levels := make([]float64, len(h.counts))
	weights := make([]float64, len(h.counts))
	for level, n := range h.counts {
		levels[level] = float64(level)
		weights[level] = float64(n)
	}
	if h.total > 0 {
		h.mean, h.variance = stat.PopMeanVariance(levels, weights)
	}
	if nonzero := h.total - h.counts[0]; nonzero > 0 {
		h.meanNonzero, h.varianceNonzero = stat.PopMeanVariance(levels[1:], weights[1:])
	}
}

// Counts returns the per-level counts for levels 0..MaxValue.
func (h *Histogram) Counts() []int {
	out := make([]int, len(h.counts))
	copy(out, h.counts)
	return out
}

// CountAt returns the count at level, or 0 outside the histogram.
func (h *Histogram) CountAt(level int) int {
	if level < 0 || level >= len(h.counts) {
		return 0
	}
	return h.counts[level]
}

// CumulativeCount returns the number of pixels at or below level.
func (h *Histogram) CumulativeCount(level int) int {
	if level < 0 {
		return 0
	}
	if level >= len(h.cumulative) {
		return h.total
	}
	return h.cumulative[level]
}

// MaxValue is the highest level with storage.
func (h *Histogram) MaxValue() int { return len(h.counts) - 1 }

// TotalCount is the number of non-negative pixels visited.
func (h *Histogram) TotalCount() int { return h.total }

// NegativeCount is the number of skipped pixels, negative or non-finite.
func (h *Histogram) NegativeCount() int { return h.negative }

func (h *Histogram) Mean() float64            { return h.mean }
func (h *Histogram) Variance() float64        { return h.variance }
func (h *Histogram) MeanNonzero() float64     { return h.meanNonzero }
func (h *Histogram) VarianceNonzero() float64 { return h.varianceNonzero }

// Mode is the most frequent positive level, lowest on ties, 0 when no pixel
// is positive.
func (h *Histogram) Mode() int { return h.mode }

// PopulatedLevels returns the number of levels with a non-zero count.
func (h *Histogram) PopulatedLevels() int {
	n := 0
	for _, c := range h.counts {
		if c > 0 {
			n++
		}
	}
	return n
}
