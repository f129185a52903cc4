package filter

import (
	"errors"
	"fmt"

	"microquant/pkg/image5d"
)

// ErrInvalidElement reports a structuring element with an even extent or a
// weight count that does not match its dimensions.
var ErrInvalidElement = errors.New("invalid structuring element")

// StructuringElement is a small dense kernel centred on its middle pixel.
// Axes with extent 1 are inactive.
type StructuringElement struct {
	dims    image5d.Dimensions
	weights []float64
}

// NewStructuringElement builds an element from weights stored X fastest.
// Every extent must be odd.
func NewStructuringElement(dims image5d.Dimensions, weights []float64) (*StructuringElement, error) {
	if err := dims.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}
	for i, s := range dims {
		if s%2 == 0 {
			return nil, fmt.Errorf("%w: extent %d along %s is even", ErrInvalidElement, s, image5d.Axis(i))
		}
	}
	if len(weights) != dims.Count() {
		return nil, fmt.Errorf("%w: %d weights for %s", ErrInvalidElement, len(weights), dims)
	}
	w := make([]float64, len(weights))
	copy(w, weights)
	return &StructuringElement{dims: dims, weights: w}, nil
}

// DefaultStructuringElement returns a hypercube of the given odd side with
// weight 1 over axes; every other axis has extent 1.
func DefaultStructuringElement(side int, axes ...image5d.Axis) (*StructuringElement, error) {
	if side <= 0 || side%2 == 0 {
		return nil, fmt.Errorf("%w: side %d must be odd and positive", ErrInvalidElement, side)
	}
	dims := image5d.NewDimensions(1, 1, 1, 1, 1)
	for _, a := range axes {
		dims[a] = side
	}
	w := make([]float64, dims.Count())
	for i := range w {
		w[i] = 1
	}
	return &StructuringElement{dims: dims, weights: w}, nil
}

// Dimensions returns the element extents.
func (s *StructuringElement) Dimensions() image5d.Dimensions { return s.dims }

// Radius returns the half-extent along each axis.
func (s *StructuringElement) Radius() image5d.Coordinate {
	var r image5d.Coordinate
	for i, e := range s.dims {
		r[i] = e / 2
	}
	return r
}

func (s *StructuringElement) index(offset image5d.Coordinate) (int, bool) {
	idx, stride := 0, 1
	for i, e := range s.dims {
		p := offset[i] + e/2
		if p < 0 || p >= e {
			return 0, false
		}
		idx += p * stride
		stride *= e
	}
	return idx, true
}

// Weight returns the weight at an offset from the centre; offsets beyond the
// element have weight 0.
func (s *StructuringElement) Weight(offset image5d.Coordinate) float64 {
	idx, ok := s.index(offset)
	if !ok {
		return 0
	}
	return s.weights[idx]
}

// SetWeight changes the weight at an offset from the centre.
func (s *StructuringElement) SetWeight(offset image5d.Coordinate, w float64) error {
	idx, ok := s.index(offset)
	if !ok {
		return fmt.Errorf("%w: offset %s outside %s", ErrInvalidElement, offset, s.dims)
	}
	s.weights[idx] = w
	return nil
}
