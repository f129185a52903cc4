package filter

import (
	"errors"
	"strings"
	"testing"

	"microquant/pkg/image5d"
)

// newPlane creates a w*h single-plane image with values from pattern.
func newPlane(t *testing.T, w, h int, pattern func(x, y int) float64) *image5d.WritableImage {
	t.Helper()
	im, err := image5d.New(image5d.NewDimensions(w, h, 1, 1, 1), 0)
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	for c := range im.Coordinates() {
		im.SetValue(c, pattern(c[image5d.X], c[image5d.Y]))
	}
	return im
}

// newMask builds a plane from rows of digits, one character per pixel.
func newMask(t *testing.T, rows ...string) *image5d.WritableImage {
	t.Helper()
	return newPlane(t, len(rows[0]), len(rows), func(x, y int) float64 {
		return float64(rows[y][x] - '0')
	})
}

func maskRows(im *image5d.Image) []string {
	d := im.Dimensions()
	rows := make([]string, d[image5d.Y])
	for y := range rows {
		var b strings.Builder
		for x := 0; x < d[image5d.X]; x++ {
			b.WriteByte(byte('0' + int(im.Value(image5d.NewCoordinate(x, y, 0, 0, 0)))))
		}
		rows[y] = b.String()
	}
	return rows
}

func countForeground(im *image5d.Image) int {
	n := 0
	for c := range im.Coordinates() {
		if im.Value(c) > 0 {
			n++
		}
	}
	return n
}

func xyElement(t *testing.T) *StructuringElement {
	t.Helper()
	se, err := DefaultStructuringElement(3, image5d.X, image5d.Y)
	if err != nil {
		t.Fatalf("DefaultStructuringElement failed: %v", err)
	}
	return se
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	im := newPlane(t, 2, 2, func(x, y int) float64 { return 1 })
	var order []string
	record := func(name string) Filter {
		return FilterFunc(func(im *image5d.WritableImage, ref *image5d.Image) error {
			order = append(order, name)
			return nil
		})
	}
	p := NewPipeline().Add("first", record("first")).Add("second", record("second"))
	if p.Len() != 2 {
		t.Fatalf("Expected 2 stages, got %d", p.Len())
	}
	if err := p.Apply(im, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if strings.Join(order, ",") != "first,second" || strings.Join(p.Stages(), ",") != "first,second" {
		t.Errorf("Unexpected stage order %v / %v", order, p.Stages())
	}
}

func TestPipelineWrapsStageError(t *testing.T) {
	im := newPlane(t, 2, 2, func(x, y int) float64 { return 1 })
	p := NewPipeline().Add("mask", MaskFilter{})
	err := p.Apply(im, nil)
	if !errors.Is(err, ErrMissingReference) {
		t.Fatalf("Expected ErrMissingReference, got %v", err)
	}
	if !strings.Contains(err.Error(), "stage 1 (mask)") {
		t.Errorf("Error should name the stage: %v", err)
	}
}

func TestPipelineStageReference(t *testing.T) {
	im := newPlane(t, 2, 1, func(x, y int) float64 { return 5 })
	ref := newMask(t, "10")
	p := NewPipeline().AddWithReference("mask", MaskFilter{}, ref.ReadOnly())
	if err := p.Apply(im, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if im.Value(image5d.NewCoordinate(0, 0, 0, 0, 0)) != 5 || im.Value(image5d.NewCoordinate(1, 0, 0, 0, 0)) != 0 {
		t.Errorf("Stage reference not applied: %v", maskRows(im.ReadOnly()))
	}
}

func TestPipelineStageHook(t *testing.T) {
	im := newPlane(t, 2, 1, func(x, y int) float64 { return 5 })
	var seen []float64
	p := NewPipeline().
		Add("fixed", &FixedThreshold{Level: 3}).
		Add("renormalize", &RenormalizeFilter{Max: 10}).
		OnStage(func(i int, name string, im *image5d.WritableImage) error {
			seen = append(seen, im.Value(image5d.NewCoordinate(0, 0, 0, 0, 0)))
			return nil
		})
	if err := p.Apply(im, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(seen) != 2 || seen[0] != Foreground || seen[1] != 0 {
		t.Errorf("Hook saw %v, want [1 0]", seen)
	}

	stop := errors.New("stop")
	p.OnStage(func(int, string, *image5d.WritableImage) error { return stop })
	if err := p.Apply(im, nil); !errors.Is(err, stop) {
		t.Errorf("Expected hook error, got %v", err)
	}
}

func TestStructuringElement(t *testing.T) {
	se := xyElement(t)
	if se.Dimensions() != image5d.NewDimensions(3, 3, 1, 1, 1) {
		t.Errorf("Unexpected dimensions %s", se.Dimensions())
	}
	if se.Radius() != image5d.NewCoordinate(1, 1, 0, 0, 0) {
		t.Errorf("Unexpected radius %s", se.Radius())
	}
	if se.Weight(image5d.NewCoordinate(-1, 1, 0, 0, 0)) != 1 {
		t.Error("Corner weight should be 1")
	}
	if se.Weight(image5d.NewCoordinate(0, 0, 1, 0, 0)) != 0 {
		t.Error("Weight along an inactive axis should be 0")
	}
	if err := se.SetWeight(image5d.NewCoordinate(1, 1, 0, 0, 0), 0); err != nil {
		t.Fatalf("SetWeight failed: %v", err)
	}
	if se.Weight(image5d.NewCoordinate(1, 1, 0, 0, 0)) != 0 {
		t.Error("SetWeight had no effect")
	}

	if _, err := DefaultStructuringElement(4, image5d.X); !errors.Is(err, ErrInvalidElement) {
		t.Errorf("Expected ErrInvalidElement for even side, got %v", err)
	}
	if _, err := NewStructuringElement(image5d.NewDimensions(3, 2, 1, 1, 1), make([]float64, 6)); !errors.Is(err, ErrInvalidElement) {
		t.Errorf("Expected ErrInvalidElement for even extent, got %v", err)
	}
	if _, err := NewStructuringElement(image5d.NewDimensions(3, 3, 1, 1, 1), make([]float64, 8)); !errors.Is(err, ErrInvalidElement) {
		t.Errorf("Expected ErrInvalidElement for weight count, got %v", err)
	}
}
