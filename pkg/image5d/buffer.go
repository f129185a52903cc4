package image5d

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"microquant/pkg/logging"
)

// ErrDimensionMismatch is returned when two buffers or images disagree on size.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// PixelBuffer is the storage capability shared by all pixel backends.
// Core algorithms only use this interface, never a concrete backend.
type PixelBuffer interface {
	Dimensions() Dimensions
	// DimensionOrder is the storage order, fastest axis first (e.g. "XYZCT").
	DimensionOrder() string
	// PixelType names the stored numeric type ("float32", "uint16").
	PixelType() string
	ByteOrder() binary.ByteOrder
	At(c Coordinate) float64
	Set(c Coordinate, v float64)
	// PlaneBytes returns a copy of the XY plane at (z,c,t) encoded in the
	// buffer's pixel type and byte order, rows top to bottom.
	PlaneBytes(z, c, t int) []byte
	SetPlaneBytes(z, c, t int, data []byte) error
	Clone() PixelBuffer
}

// DenseBuffer stores one float32 per pixel in a flat strided slice.
type DenseBuffer struct {
	data      []float32
	dims      Dimensions
	order     string
	strides   [NumAxes]int
	byteOrder binary.ByteOrder
}

// NewDenseBuffer allocates a zeroed buffer. An empty order means
// DefaultDimensionOrder.
func NewDenseBuffer(dims Dimensions, order string) (*DenseBuffer, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if order == "" {
		order = DefaultDimensionOrder
	}
	strides, err := computeStrides(dims, order)
	if err != nil {
		return nil, err
	}
	n := dims.Count()
	logging.Debugf("allocating %s dense pixel buffer %s (%s)", humanize.Bytes(uint64(n)*4), dims, order)
	return &DenseBuffer{
		data:      make([]float32, n),
		dims:      dims,
		order:     strings.ToUpper(order),
		strides:   strides,
		byteOrder: binary.BigEndian,
	}, nil
}

func computeStrides(dims Dimensions, order string) ([NumAxes]int, error) {
	var strides [NumAxes]int
	if len(order) != NumAxes {
		return strides, fmt.Errorf("dimension order %q must name all %d axes", order, NumAxes)
	}
	seen := [NumAxes]bool{}
	step := 1
	for _, r := range order {
		a, err := ParseAxis(string(r))
		if err != nil {
			return strides, fmt.Errorf("dimension order %q: %w", order, err)
		}
		if seen[a] {
			return strides, fmt.Errorf("dimension order %q repeats axis %s", order, a)
		}
		seen[a] = true
		strides[a] = step
		step *= dims[a]
	}
	return strides, nil
}

// SetByteOrder changes the order used by PlaneBytes and SetPlaneBytes.
func (b *DenseBuffer) SetByteOrder(order binary.ByteOrder) { b.byteOrder = order }

func (b *DenseBuffer) Dimensions() Dimensions      { return b.dims }
func (b *DenseBuffer) DimensionOrder() string      { return b.order }
func (b *DenseBuffer) PixelType() string           { return "float32" }
func (b *DenseBuffer) ByteOrder() binary.ByteOrder { return b.byteOrder }
func (b *DenseBuffer) At(c Coordinate) float64     { return float64(b.data[b.index(c)]) }
func (b *DenseBuffer) Set(c Coordinate, v float64) { b.data[b.index(c)] = float32(v) }

func (b *DenseBuffer) index(c Coordinate) int {
	if !b.dims.Contains(c) {
		panic(fmt.Sprintf("image5d: coordinate %s out of range for %s", c, b.dims))
	}
	idx := 0
	for i, v := range c {
		idx += v * b.strides[i]
	}
	return idx
}

func (b *DenseBuffer) PlaneBytes(z, c, t int) []byte {
	out := make([]byte, 4*b.dims[X]*b.dims[Y])
	i := 0
	for y := 0; y < b.dims[Y]; y++ {
		for x := 0; x < b.dims[X]; x++ {
			v := b.data[b.index(Coordinate{x, y, z, c, t})]
			b.byteOrder.PutUint32(out[i:], math.Float32bits(v))
			i += 4
		}
	}
	return out
}

func (b *DenseBuffer) SetPlaneBytes(z, c, t int, data []byte) error {
	want := 4 * b.dims[X] * b.dims[Y]
	if len(data) != want {
		return fmt.Errorf("plane (z=%d, c=%d, t=%d): got %d bytes, want %d: %w", z, c, t, len(data), want, ErrDimensionMismatch)
	}
	i := 0
	for y := 0; y < b.dims[Y]; y++ {
		for x := 0; x < b.dims[X]; x++ {
			b.data[b.index(Coordinate{x, y, z, c, t})] = math.Float32frombits(b.byteOrder.Uint32(data[i:]))
			i += 4
		}
	}
	return nil
}

func (b *DenseBuffer) Clone() PixelBuffer {
	out := *b
	out.data = make([]float32, len(b.data))
	copy(out.data, b.data)
	return &out
}
