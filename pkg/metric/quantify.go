package metric

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"microquant/pkg/image5d"
)

// ErrNoROIs is returned when a mask has no labeled regions. Callers usually
// fall back to ZeroMetric.
var ErrNoROIs = errors.New("mask has no regions of interest")

// Table holds one row per region: the mean intensity in each image followed
// by the region's pixel count.
type Table struct {
	Regions []int
	Data    *mat.Dense
}

// Images returns the number of intensity columns.
func (t *Table) Images() int {
	_, c := t.Data.Dims()
	return c - 1
}

// Intensity returns the mean intensity of row's region in image i.
func (t *Table) Intensity(row, i int) float64 { return t.Data.At(row, i) }

// Size returns the pixel count of row's region.
func (t *Table) Size(row int) float64 { return t.Data.At(row, t.Images()) }

// Row returns the row index of a region label.
func (t *Table) Row(label int) (int, bool) {
	i := sort.SearchInts(t.Regions, label)
	return i, i < len(t.Regions) && t.Regions[i] == label
}

// Quantify computes per-region mean intensity for each image over the
// mask's labels. Every image must have the mask's dimensions.
func Quantify(mask *image5d.Image, images []*image5d.Image) (*Table, error) {
	for i, im := range images {
		if im.Dimensions() != mask.Dimensions() {
			return nil, fmt.Errorf("image %d %s vs mask %s: %w", i, im.Dimensions(), mask.Dimensions(), image5d.ErrDimensionMismatch)
		}
	}

	rows := make(map[int]int)
	var regions []int
	for c := range mask.Coordinates() {
		if l := mask.Label(c); l > 0 {
			if _, ok := rows[l]; !ok {
				rows[l] = 0
				regions = append(regions, l)
			}
		}
	}
	if len(regions) == 0 {
		return nil, ErrNoROIs
	}
	sort.Ints(regions)
	for i, r := range regions {
		rows[r] = i
	}

	counts := make([]float64, len(regions))
	sums := make([][]float64, len(images))
	for i := range sums {
		sums[i] = make([]float64, len(regions))
	}
	for c := range mask.Coordinates() {
		l := mask.Label(c)
		if l == 0 {
			continue
		}
		row := rows[l]
		counts[row]++
		for i, im := range images {
			sums[i][row] += im.Value(c)
		}
	}

	data := mat.NewDense(len(regions), len(images)+1, nil)
	for i := range images {
		floats.Div(sums[i], counts)
		data.SetCol(i, sums[i])
	}
	data.SetCol(len(images), counts)
	return &Table{Regions: regions, Data: data}, nil
}
