package image5d

import (
	"fmt"
	"iter"
	"math"
)

// Box is an axis-aligned region with an inclusive lower and exclusive upper
// corner.
type Box struct {
	Lower Coordinate
	Upper Coordinate
}

// Empty reports whether the box holds no coordinates.
func (b Box) Empty() bool {
	for i := range b.Lower {
		if b.Upper[i] <= b.Lower[i] {
			return true
		}
	}
	return false
}

// Contains reports whether c lies inside the box.
func (b Box) Contains(c Coordinate) bool {
	for i := range c {
		if c[i] < b.Lower[i] || c[i] >= b.Upper[i] {
			return false
		}
	}
	return true
}

// Image is a read-only view of a pixel buffer. Several images may share one
// buffer; each has its own box of interest and dimension view.
type Image struct {
	buf    PixelBuffer
	dims   Dimensions
	box    Box
	hasBox bool
}

// WritableImage is an Image that also permits SetValue.
type WritableImage struct {
	Image
}

// New creates a writable image backed by a dense float buffer filled with fill.
func New(dims Dimensions, fill float64) (*WritableImage, error) {
	buf, err := NewDenseBuffer(dims, DefaultDimensionOrder)
	if err != nil {
		return nil, err
	}
	if fill != 0 {
		for i := range buf.data {
			buf.data[i] = float32(fill)
		}
	}
	return FromBuffer(buf), nil
}

// MustNew is New for callers with known-good dimensions.
func MustNew(dims Dimensions, fill float64) *WritableImage {
	im, err := New(dims, fill)
	if err != nil {
		panic(err)
	}
	return im
}

// FromBuffer wraps an existing buffer without copying.
func FromBuffer(buf PixelBuffer) *WritableImage {
	return &WritableImage{Image{buf: buf, dims: buf.Dimensions()}}
}

// Buffer returns the underlying storage.
func (im *Image) Buffer() PixelBuffer { return im.buf }

// Dimensions returns the dimension sizes of this view.
func (im *Image) Dimensions() Dimensions { return im.dims }

// Value returns the pixel at c. Coordinates outside the view panic.
func (im *Image) Value(c Coordinate) float64 {
	if !im.dims.Contains(c) {
		panic(fmt.Sprintf("image5d: coordinate %s out of range for %s", c, im.dims))
	}
	return im.buf.At(c)
}

// Label returns the region label at c: the integer part of the pixel value,
// or 0 when the value is below 1 or not finite.
func (im *Image) Label(c Coordinate) int {
	v := im.Value(c)
	if !(v >= 1) || math.IsInf(v, 1) {
		return 0
	}
	return int(v)
}

// InBounds reports whether c addresses a pixel of this view.
func (im *Image) InBounds(c Coordinate) bool { return im.dims.Contains(c) }

// SetBoxOfInterest restricts iteration to [lower, upper). With clip set,
// bounds beyond the image are clamped silently; otherwise they are an error.
func (im *Image) SetBoxOfInterest(lower, upper Coordinate, clip bool) error {
	var b Box
	for i := 0; i < NumAxes; i++ {
		lo, hi := lower[i], upper[i]
		if clip {
			lo = clampInt(lo, 0, im.dims[i])
			hi = clampInt(hi, 0, im.dims[i])
		} else if lo < 0 || hi > im.dims[i] || lo > hi {
			return fmt.Errorf("box %s-%s outside image %s", lower, upper, im.dims)
		}
		b.Lower[i], b.Upper[i] = lo, hi
	}
	im.box = b
	im.hasBox = true
	return nil
}

// ClearBoxOfInterest restores whole-image iteration.
func (im *Image) ClearBoxOfInterest() {
	im.box = Box{}
	im.hasBox = false
}

// BoxOfInterest returns the active iteration region and whether one is set.
// With no box set the full extent is returned.
func (im *Image) BoxOfInterest() (Box, bool) {
	if !im.hasBox {
		return Box{Upper: im.dims.Upper()}, false
	}
	return im.box, true
}

// Coordinates yields every coordinate in the active region, X fastest.
func (im *Image) Coordinates() iter.Seq[Coordinate] {
	b, _ := im.BoxOfInterest()
	return func(yield func(Coordinate) bool) {
		if b.Empty() {
			return
		}
		c := b.Lower
		for {
			if !yield(c) {
				return
			}
			i := 0
			for ; i < NumAxes; i++ {
				c[i]++
				if c[i] < b.Upper[i] {
					break
				}
				c[i] = b.Lower[i]
			}
			if i == NumAxes {
				return
			}
		}
	}
}

// Count returns the number of coordinates in the active region.
func (im *Image) Count() int {
	b, _ := im.BoxOfInterest()
	if b.Empty() {
		return 0
	}
	n := 1
	for i := range b.Lower {
		n *= b.Upper[i] - b.Lower[i]
	}
	return n
}

// ShallowCopy shares the pixel buffer but has an independent box of interest
// and dimension view.
func (im *Image) ShallowCopy() *Image {
	cp := *im
	return &cp
}

// DeepCopy duplicates the pixel buffer. The copy keeps the dimension view
// and box of interest.
func (im *Image) DeepCopy() *WritableImage {
	cp := *im
	cp.buf = im.buf.Clone()
	return &WritableImage{cp}
}

// SetDimensionSizes narrows the view. Sizes may not exceed the buffer's.
// Any box of interest is cleared.
func (im *Image) SetDimensionSizes(d Dimensions) error {
	if err := d.Validate(); err != nil {
		return err
	}
	full := im.buf.Dimensions()
	for i := range d {
		if d[i] > full[i] {
			return fmt.Errorf("view %s exceeds buffer %s: %w", d, full, ErrDimensionMismatch)
		}
	}
	im.dims = d
	im.ClearBoxOfInterest()
	return nil
}

// MaxValue returns the largest pixel value in the active region, or 0 for an
// empty region.
func (im *Image) MaxValue() float64 {
	first := true
	var m float64
	for c := range im.Coordinates() {
		v := im.buf.At(c)
		if first || v > m {
			m = v
			first = false
		}
	}
	return m
}

// SetValue writes the pixel at c. Coordinates outside the view panic.
func (w *WritableImage) SetValue(c Coordinate, v float64) {
	if !w.dims.Contains(c) {
		panic(fmt.Sprintf("image5d: coordinate %s out of range for %s", c, w.dims))
	}
	w.buf.Set(c, v)
}

// ReadOnly returns a read-only view sharing the buffer.
func (w *WritableImage) ReadOnly() *Image {
	return w.Image.ShallowCopy()
}

// WritableShallowCopy shares the buffer with an independent box and view.
func (w *WritableImage) WritableShallowCopy() *WritableImage {
	return &WritableImage{*w.Image.ShallowCopy()}
}

// CopyFrom overwrites every pixel of w's active region with src's value at the
// same coordinate.
func (w *WritableImage) CopyFrom(src *Image) error {
	if src.dims != w.dims {
		return fmt.Errorf("copy %s into %s: %w", src.dims, w.dims, ErrDimensionMismatch)
	}
	for c := range w.Coordinates() {
		w.buf.Set(c, src.buf.At(c))
	}
	return nil
}

// Fill sets every pixel of the active region to v.
func (w *WritableImage) Fill(v float64) {
	for c := range w.Coordinates() {
		w.buf.Set(c, v)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
