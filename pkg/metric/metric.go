package metric

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"microquant/pkg/image5d"
)

// Measurement names written by the metrics in this package.
const (
	IntensityPerPixelName = "intensity_per_pixel"
	SizeName              = "size"
	BackgroundName        = "background"
	GroupName             = "group"
)

// NoImage is the ImageID of measurements that do not depend on an input
// image, such as region size.
const NoImage = -1

// Metric turns a labeled mask and intensity images into measurements.
type Metric interface {
	Quantify(mask *image5d.Image, images []*image5d.Image) (*Quantification, error)
}

// IntensityPerPixelMetric records the mean intensity of every region in
// every image plus the region size. With Background set it also records,
// per image, the mean intensity outside the mask as a global measurement.
type IntensityPerPixelMetric struct {
	Background bool
}

func (m IntensityPerPixelMetric) Quantify(mask *image5d.Image, images []*image5d.Image) (*Quantification, error) {
	table, err := Quantify(mask, images)
	if err != nil {
		return nil, err
	}
	q := NewQuantification()
	for row, region := range table.Regions {
		for i := range images {
			q.Add(Measurement{
				HasFeature: true,
				FeatureID:  region,
				Value:      table.Intensity(row, i),
				Name:       IntensityPerPixelName,
				Type:       Intensity,
				ImageID:    i,
			})
		}
		q.Add(Measurement{
			HasFeature: true,
			FeatureID:  region,
			Value:      table.Size(row),
			Name:       SizeName,
			Type:       Size,
			ImageID:    NoImage,
		})
	}
	if m.Background {
		for i, im := range images {
			var outside []float64
			for c := range mask.Coordinates() {
				if mask.Label(c) == 0 {
					outside = append(outside, im.Value(c))
				}
			}
			if len(outside) == 0 {
				continue
			}
			q.Add(Measurement{Value: stat.Mean(outside, nil), Name: BackgroundName, Type: Background, ImageID: i})
		}
	}
	return q, nil
}

// ZeroMetric is the fallback for masks without regions: one global zero
// intensity per image and a zero size.
type ZeroMetric struct{}

func (ZeroMetric) Quantify(mask *image5d.Image, images []*image5d.Image) (*Quantification, error) {
	q := NewQuantification()
	for i := range images {
		q.Add(Measurement{Name: IntensityPerPixelName, Type: Intensity, ImageID: i})
	}
	q.Add(Measurement{Name: SizeName, Type: Size, ImageID: NoImage})
	return q, nil
}

// WithZeroFallback runs m and substitutes ZeroMetric output when the mask
// has no regions.
func WithZeroFallback(m Metric, mask *image5d.Image, images []*image5d.Image) (*Quantification, error) {
	q, err := m.Quantify(mask, images)
	if errors.Is(err, ErrNoROIs) {
		return ZeroMetric{}.Quantify(mask, images)
	}
	return q, err
}

// GroupMetric assigns each region to the cluster label covering most of
// its pixels in Groups, lowest label on ties. A region with no clustered
// pixel is in group 0.
type GroupMetric struct {
	Groups *image5d.Image
}

func (g GroupMetric) Quantify(mask *image5d.Image, images []*image5d.Image) (*Quantification, error) {
	if g.Groups == nil {
		return nil, errors.New("group metric: no cluster image")
	}
	if g.Groups.Dimensions() != mask.Dimensions() {
		return nil, fmt.Errorf("cluster image %s vs mask %s: %w", g.Groups.Dimensions(), mask.Dimensions(), image5d.ErrDimensionMismatch)
	}
	votes := make(map[int]map[int]int)
	for c := range mask.Coordinates() {
		region := mask.Label(c)
		if region == 0 {
			continue
		}
		if votes[region] == nil {
			votes[region] = make(map[int]int)
		}
		if grp := g.Groups.Label(c); grp > 0 {
			votes[region][grp]++
		}
	}
	if len(votes) == 0 {
		return nil, ErrNoROIs
	}

	q := NewQuantification()
	for _, region := range sortedKeys(votes) {
		group, best := 0, 0
		for grp, n := range votes[region] {
			if n > best || (n == best && grp < group) {
				group, best = grp, n
			}
		}
		q.Add(Measurement{
			HasFeature: true,
			FeatureID:  region,
			Value:      float64(group),
			Name:       GroupName,
			Type:       Group,
			ImageID:    NoImage,
		})
	}
	return q, nil
}

// Combined runs several metrics and merges their results in order.
type Combined []Metric

func (c Combined) Quantify(mask *image5d.Image, images []*image5d.Image) (*Quantification, error) {
	q := NewQuantification()
	for _, m := range c {
		part, err := m.Quantify(mask, images)
		if err != nil {
			return nil, err
		}
		q.Merge(part)
	}
	return q, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
