package image5d

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

// newTestImage creates a 2D image whose pixel values come from pattern.
func newTestImage(t *testing.T, width, height int, pattern func(x, y int) float64) *WritableImage {
	t.Helper()
	im, err := New(NewDimensions(width, height, 1, 1, 1), 0)
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	for c := range im.Coordinates() {
		im.SetValue(c, pattern(c[X], c[Y]))
	}
	return im
}

func TestCoordinateAxes(t *testing.T) {
	c := NewCoordinate(1, 2, 3, 4, 5)
	for a, want := range []int{1, 2, 3, 4, 5} {
		if got := c.Get(Axis(a)); got != want {
			t.Errorf("Get(%s) = %d, want %d", Axis(a), got, want)
		}
	}
	c.Set(Z, 9)
	if c[Z] != 9 {
		t.Errorf("Expected z=9 after Set, got %d", c[Z])
	}
	if d := c.With(X, 7); d[X] != 7 || c[X] != 1 {
		t.Errorf("With should copy: got %v from %v", d, c)
	}
	if got := c.Add(NewCoordinate(1, 1, 1, 1, 1)).Sub(NewCoordinate(1, 1, 1, 1, 1)); got != c {
		t.Errorf("Add then Sub = %v, want %v", got, c)
	}
}

func TestParseAxes(t *testing.T) {
	axes, err := ParseAxes("x,Y z")
	if err != nil {
		t.Fatalf("ParseAxes failed: %v", err)
	}
	want := []Axis{X, Y, Z}
	if len(axes) != len(want) {
		t.Fatalf("Expected %d axes, got %d", len(want), len(axes))
	}
	for i := range want {
		if axes[i] != want[i] {
			t.Errorf("axis %d: got %s, want %s", i, axes[i], want[i])
		}
	}
	if _, err := ParseAxes("xq"); err == nil {
		t.Error("Expected error for unknown axis")
	}
}

func TestIterationExhaustive(t *testing.T) {
	dims := NewDimensions(3, 4, 2, 2, 1)
	im := MustNew(dims, 0)

	seen := make(map[Coordinate]int)
	for c := range im.Coordinates() {
		seen[c]++
	}
	if len(seen) != dims.Count() {
		t.Fatalf("Expected %d distinct coordinates, got %d", dims.Count(), len(seen))
	}
	for c, n := range seen {
		if n != 1 {
			t.Errorf("Coordinate %s visited %d times", c, n)
		}
		if !dims.Contains(c) {
			t.Errorf("Coordinate %s out of bounds", c)
		}
	}
}

func TestBoxOfInterest(t *testing.T) {
	im := MustNew(NewDimensions(10, 10, 1, 1, 1), 0)

	if err := im.SetBoxOfInterest(NewCoordinate(2, 3, 0, 0, 0), NewCoordinate(5, 6, 1, 1, 1), false); err != nil {
		t.Fatalf("SetBoxOfInterest failed: %v", err)
	}
	if im.Count() != 9 {
		t.Errorf("Expected 9 coordinates in box, got %d", im.Count())
	}
	for c := range im.Coordinates() {
		if c[X] < 2 || c[X] >= 5 || c[Y] < 3 || c[Y] >= 6 {
			t.Errorf("Coordinate %s outside box", c)
		}
	}

	im.ClearBoxOfInterest()
	im.ClearBoxOfInterest()
	if im.Count() != 100 {
		t.Errorf("Expected 100 coordinates after clear, got %d", im.Count())
	}
}

func TestBoxOfInterestClipping(t *testing.T) {
	im := MustNew(NewDimensions(5, 5, 1, 1, 1), 0)

	lower := NewCoordinate(-1, -1, 0, 0, 0)
	upper := NewCoordinate(2, 2, 1, 1, 1)
	if err := im.SetBoxOfInterest(lower, upper, false); err == nil {
		t.Error("Expected error for unclipped out-of-range box")
	}
	if err := im.SetBoxOfInterest(lower, upper, true); err != nil {
		t.Fatalf("Clipped box should succeed: %v", err)
	}
	if im.Count() != 4 {
		t.Errorf("Expected clipped box of 4 pixels, got %d", im.Count())
	}

	// A box entirely off the image clips to nothing.
	if err := im.SetBoxOfInterest(NewCoordinate(7, 7, 0, 0, 0), NewCoordinate(9, 9, 1, 1, 1), true); err != nil {
		t.Fatalf("Clipped box should succeed: %v", err)
	}
	n := 0
	for range im.Coordinates() {
		n++
	}
	if n != 0 {
		t.Errorf("Expected empty iteration, got %d", n)
	}
}

func TestShallowAndDeepCopy(t *testing.T) {
	im := newTestImage(t, 4, 4, func(x, y int) float64 { return float64(x + y) })

	shallow := im.WritableShallowCopy()
	deep := im.DeepCopy()

	c := NewCoordinate(1, 1, 0, 0, 0)
	im.SetValue(c, 42)

	if shallow.Value(c) != 42 {
		t.Errorf("Shallow copy should see writes, got %f", shallow.Value(c))
	}
	if deep.Value(c) != 2 {
		t.Errorf("Deep copy should be independent, got %f", deep.Value(c))
	}

	if err := shallow.SetBoxOfInterest(NewCoordinate(0, 0, 0, 0, 0), NewCoordinate(1, 1, 1, 1, 1), false); err != nil {
		t.Fatalf("SetBoxOfInterest failed: %v", err)
	}
	if im.Count() != 16 {
		t.Errorf("Box on shallow copy leaked into original: count %d", im.Count())
	}
}

func TestSetDimensionSizes(t *testing.T) {
	im := MustNew(NewDimensions(6, 6, 1, 1, 1), 1)
	view := im.ShallowCopy()

	if err := view.SetDimensionSizes(NewDimensions(3, 2, 1, 1, 1)); err != nil {
		t.Fatalf("SetDimensionSizes failed: %v", err)
	}
	if view.Count() != 6 {
		t.Errorf("Expected 6 pixels in narrowed view, got %d", view.Count())
	}
	if im.Dimensions() != NewDimensions(6, 6, 1, 1, 1) {
		t.Errorf("Original dimensions changed to %s", im.Dimensions())
	}
	err := view.SetDimensionSizes(NewDimensions(7, 6, 1, 1, 1))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}

func TestLabel(t *testing.T) {
	values := []float64{0, 0.99, 1, 2.7, -3, math.Inf(1), math.NaN()}
	want := []int{0, 0, 1, 2, 0, 0, 0}
	im := newTestImage(t, len(values), 1, func(x, y int) float64 { return values[x] })
	for x, w := range want {
		if got := im.Label(NewCoordinate(x, 0, 0, 0, 0)); got != w {
			t.Errorf("Label(%g) = %d, want %d", values[x], got, w)
		}
	}
}

func TestOutOfRangePanics(t *testing.T) {
	im := MustNew(NewDimensions(2, 2, 1, 1, 1), 0)
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for out-of-range access")
		}
	}()
	im.Value(NewCoordinate(2, 0, 0, 0, 0))
}

func TestDenseBufferDimensionOrder(t *testing.T) {
	dims := NewDimensions(3, 2, 2, 1, 1)
	xyz, err := NewDenseBuffer(dims, "XYZCT")
	if err != nil {
		t.Fatalf("NewDenseBuffer failed: %v", err)
	}
	zyx, err := NewDenseBuffer(dims, "ZYXCT")
	if err != nil {
		t.Fatalf("NewDenseBuffer failed: %v", err)
	}
	for _, b := range []*DenseBuffer{xyz, zyx} {
		im := FromBuffer(b)
		for c := range im.Coordinates() {
			im.SetValue(c, float64(c[X]*100+c[Y]*10+c[Z]))
		}
		for c := range im.Coordinates() {
			if got := im.Value(c); got != float64(c[X]*100+c[Y]*10+c[Z]) {
				t.Errorf("%s: value at %s = %f", b.DimensionOrder(), c, got)
			}
		}
	}
	if xyz.data[1] != 100 || zyx.data[1] != 1 {
		t.Errorf("Unexpected storage layout: xyz[1]=%f zyx[1]=%f", xyz.data[1], zyx.data[1])
	}

	if _, err := NewDenseBuffer(dims, "XXZCT"); err == nil {
		t.Error("Expected error for repeated axis")
	}
	if _, err := NewDenseBuffer(dims, "XYZ"); err == nil {
		t.Error("Expected error for short order")
	}
}

func TestDenseBufferPlaneBytes(t *testing.T) {
	dims := NewDimensions(2, 2, 2, 1, 1)
	buf, _ := NewDenseBuffer(dims, "")
	buf.SetByteOrder(binary.LittleEndian)
	im := FromBuffer(buf)
	im.SetValue(NewCoordinate(1, 0, 1, 0, 0), 3.5)

	plane := buf.PlaneBytes(1, 0, 0)
	if len(plane) != 16 {
		t.Fatalf("Expected 16 bytes, got %d", len(plane))
	}

	other, _ := NewDenseBuffer(dims, "")
	other.SetByteOrder(binary.LittleEndian)
	if err := other.SetPlaneBytes(0, 0, 0, plane); err != nil {
		t.Fatalf("SetPlaneBytes failed: %v", err)
	}
	if got := other.At(NewCoordinate(1, 0, 0, 0, 0)); got != 3.5 {
		t.Errorf("Expected 3.5 after plane copy, got %f", got)
	}
	if err := other.SetPlaneBytes(0, 0, 0, plane[:4]); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Expected ErrDimensionMismatch, got %v", err)
	}
}

func TestGrayPlaneBuffer(t *testing.T) {
	p0 := image.NewGray16(image.Rect(0, 0, 3, 2))
	p1 := image.NewGray16(image.Rect(0, 0, 3, 2))
	p1.SetGray16(2, 1, color.Gray16{Y: 1000})

	buf, err := GrayPlaneBufferFromPlanes([]*image.Gray16{p0, p1}, 2, 1, 1)
	if err != nil {
		t.Fatalf("GrayPlaneBufferFromPlanes failed: %v", err)
	}
	im := FromBuffer(buf)
	if got := im.Value(NewCoordinate(2, 1, 1, 0, 0)); got != 1000 {
		t.Errorf("Expected 1000, got %f", got)
	}

	im.SetValue(NewCoordinate(0, 0, 0, 0, 0), 70000)
	if got := im.Value(NewCoordinate(0, 0, 0, 0, 0)); got != 65535 {
		t.Errorf("Expected clamped 65535, got %f", got)
	}
	im.SetValue(NewCoordinate(1, 0, 0, 0, 0), -5)
	if got := im.Value(NewCoordinate(1, 0, 0, 0, 0)); got != 0 {
		t.Errorf("Expected clamped 0, got %f", got)
	}

	clone := im.DeepCopy()
	im.SetValue(NewCoordinate(2, 1, 1, 0, 0), 1)
	if got := clone.Value(NewCoordinate(2, 1, 1, 0, 0)); got != 1000 {
		t.Errorf("Clone should be independent, got %f", got)
	}

	bytes := buf.PlaneBytes(1, 0, 0)
	if len(bytes) != 12 {
		t.Errorf("Expected 12 plane bytes, got %d", len(bytes))
	}

	if _, err := GrayPlaneBufferFromPlanes([]*image.Gray16{p0}, 2, 1, 1); err == nil {
		t.Error("Expected error for wrong plane count")
	}
}
