package image5d

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
)

// GrayPlaneBuffer keeps one 16-bit grayscale image per (z,c,t) plane. It is
// the backend produced by the image file readers, so decoded planes are used
// without conversion.
type GrayPlaneBuffer struct {
	planes []*image.Gray16
	dims   Dimensions
}

// NewGrayPlaneBuffer allocates zeroed planes.
func NewGrayPlaneBuffer(dims Dimensions) (*GrayPlaneBuffer, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	n := dims[Z] * dims[C] * dims[T]
	planes := make([]*image.Gray16, n)
	for i := range planes {
		planes[i] = image.NewGray16(image.Rect(0, 0, dims[X], dims[Y]))
	}
	return &GrayPlaneBuffer{planes: planes, dims: dims}, nil
}

// GrayPlaneBufferFromPlanes wraps existing planes ordered z fastest, then c,
// then t. All planes must share the same bounds.
func GrayPlaneBufferFromPlanes(planes []*image.Gray16, sz, sc, st int) (*GrayPlaneBuffer, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("no planes given")
	}
	if len(planes) != sz*sc*st {
		return nil, fmt.Errorf("got %d planes for %dx%dx%d (z,c,t): %w", len(planes), sz, sc, st, ErrDimensionMismatch)
	}
	r := planes[0].Bounds()
	for i, p := range planes {
		if p.Bounds().Dx() != r.Dx() || p.Bounds().Dy() != r.Dy() {
			return nil, fmt.Errorf("plane %d is %dx%d, want %dx%d: %w", i, p.Bounds().Dx(), p.Bounds().Dy(), r.Dx(), r.Dy(), ErrDimensionMismatch)
		}
	}
	return &GrayPlaneBuffer{
		planes: planes,
		dims:   NewDimensions(r.Dx(), r.Dy(), sz, sc, st),
	}, nil
}

func (b *GrayPlaneBuffer) plane(z, c, t int) *image.Gray16 {
	return b.planes[z+b.dims[Z]*(c+b.dims[C]*t)]
}

// Plane returns the stored plane at (z,c,t) without copying.
func (b *GrayPlaneBuffer) Plane(z, c, t int) *image.Gray16 {
	if !b.dims.Contains(Coordinate{0, 0, z, c, t}) {
		panic(fmt.Sprintf("image5d: plane (z=%d, c=%d, t=%d) out of range for %s", z, c, t, b.dims))
	}
	return b.plane(z, c, t)
}

func (b *GrayPlaneBuffer) Dimensions() Dimensions      { return b.dims }
func (b *GrayPlaneBuffer) DimensionOrder() string      { return DefaultDimensionOrder }
func (b *GrayPlaneBuffer) PixelType() string           { return "uint16" }
func (b *GrayPlaneBuffer) ByteOrder() binary.ByteOrder { return binary.BigEndian }

func (b *GrayPlaneBuffer) At(c Coordinate) float64 {
	if !b.dims.Contains(c) {
		panic(fmt.Sprintf("image5d: coordinate %s out of range for %s", c, b.dims))
	}
	p := b.plane(c[Z], c[C], c[T])
	r := p.Bounds()
	return float64(p.Gray16At(r.Min.X+c[X], r.Min.Y+c[Y]).Y)
}

// Set rounds v and clamps it to the uint16 range.
func (b *GrayPlaneBuffer) Set(c Coordinate, v float64) {
	if !b.dims.Contains(c) {
		panic(fmt.Sprintf("image5d: coordinate %s out of range for %s", c, b.dims))
	}
	p := b.plane(c[Z], c[C], c[T])
	r := p.Bounds()
	v = math.Round(v)
	if v < 0 {
		v = 0
	} else if v > math.MaxUint16 {
		v = math.MaxUint16
	}
	i := p.PixOffset(r.Min.X+c[X], r.Min.Y+c[Y])
	p.Pix[i] = uint8(uint16(v) >> 8)
	p.Pix[i+1] = uint8(uint16(v))
}

func (b *GrayPlaneBuffer) PlaneBytes(z, c, t int) []byte {
	p := b.Plane(z, c, t)
	r := p.Bounds()
	row := 2 * r.Dx()
	out := make([]byte, 0, row*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := p.PixOffset(r.Min.X, y)
		out = append(out, p.Pix[i:i+row]...)
	}
	return out
}

func (b *GrayPlaneBuffer) SetPlaneBytes(z, c, t int, data []byte) error {
	p := b.Plane(z, c, t)
	r := p.Bounds()
	row := 2 * r.Dx()
	if len(data) != row*r.Dy() {
		return fmt.Errorf("plane (z=%d, c=%d, t=%d): got %d bytes, want %d: %w", z, c, t, len(data), row*r.Dy(), ErrDimensionMismatch)
	}
	for y := 0; y < r.Dy(); y++ {
		i := p.PixOffset(r.Min.X, r.Min.Y+y)
		copy(p.Pix[i:i+row], data[y*row:(y+1)*row])
	}
	return nil
}

func (b *GrayPlaneBuffer) Clone() PixelBuffer {
	planes := make([]*image.Gray16, len(b.planes))
	for i, p := range b.planes {
		cp := image.NewGray16(image.Rect(0, 0, p.Bounds().Dx(), p.Bounds().Dy()))
		for y := 0; y < p.Bounds().Dy(); y++ {
			src := p.PixOffset(p.Bounds().Min.X, p.Bounds().Min.Y+y)
			copy(cp.Pix[y*cp.Stride:(y+1)*cp.Stride], p.Pix[src:src+cp.Stride])
		}
		planes[i] = cp
	}
	return &GrayPlaneBuffer{planes: planes, dims: b.dims}
}
