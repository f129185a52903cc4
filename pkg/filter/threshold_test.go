package filter

import (
	"testing"

	"microquant/pkg/image5d"
)

func TestMaxSeparabilityTwoClusters(t *testing.T) {
	// 100 pixels at 10 and 100 at 200.
	im := newPlane(t, 20, 10, func(x, y int) float64 {
		if x < 10 {
			return 10
		}
		return 200
	})
	th := &MaxSeparabilityThreshold{}
	if err := th.Apply(im, nil); err != nil {
		t.Fatalf("Threshold failed: %v", err)
	}
	if th.Level <= 10 || th.Level >= 200 {
		t.Fatalf("Expected level strictly between 10 and 200, got %d", th.Level)
	}
	// Every split in (10, 200] separates equally well; the lowest wins.
	if th.Level != 11 {
		t.Errorf("Expected lowest tied level 11, got %d", th.Level)
	}
	for c := range im.Coordinates() {
		want := Background
		if c[image5d.X] >= 10 {
			want = Foreground
		}
		if im.Value(c) != want {
			t.Fatalf("Pixel %s = %v, want %v", c, im.Value(c), want)
		}
	}
}

func TestMaxSeparabilityLevelFromCounts(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		level  int
		ok     bool
	}{
		{"empty", nil, 0, false},
		{"single level", []int{0, 0, 0, 5}, 0, false},
		{"two levels", []int{0, 4, 0, 0, 4}, 2, true},
		{"skewed", []int{10, 10, 0, 0, 0, 0, 0, 0, 1, 1}, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, ok := MaxSeparabilityLevel(image5d.HistogramFromCounts(tt.counts))
			if ok != tt.ok || (ok && level != tt.level) {
				t.Errorf("MaxSeparabilityLevel = (%d, %v), want (%d, %v)", level, ok, tt.level, tt.ok)
			}
		})
	}
}

func TestMaxSeparabilityDegenerate(t *testing.T) {
	im := newPlane(t, 4, 4, func(x, y int) float64 { return 7 })
	th := &MaxSeparabilityThreshold{}
	if err := th.Apply(im, nil); err != nil {
		t.Fatalf("Threshold failed: %v", err)
	}
	if th.Level != -1 {
		t.Errorf("Expected level -1 for a constant image, got %d", th.Level)
	}
	if n := countForeground(im.ReadOnly()); n != 0 {
		t.Errorf("Constant image should become all background, got %d foreground", n)
	}

	zero := newPlane(t, 4, 4, func(x, y int) float64 { return 0 })
	if err := th.Apply(zero, nil); err != nil {
		t.Fatalf("Threshold failed: %v", err)
	}
	if n := countForeground(zero.ReadOnly()); n != 0 {
		t.Errorf("All-zero image should stay background, got %d foreground", n)
	}
}

func TestMaxSeparabilityUsesReference(t *testing.T) {
	ref := newPlane(t, 4, 1, func(x, y int) float64 { return []float64{0, 0, 50, 50}[x] })
	im := newPlane(t, 4, 1, func(x, y int) float64 { return []float64{0, 30, 40, 60}[x] })
	th := &MaxSeparabilityThreshold{}
	if err := th.Apply(im, ref.ReadOnly()); err != nil {
		t.Fatalf("Threshold failed: %v", err)
	}
	if th.Level != 1 {
		t.Fatalf("Expected level 1 from reference, got %d", th.Level)
	}
	if got := maskRows(im.ReadOnly())[0]; got != "0111" {
		t.Errorf("Expected 0111, got %s", got)
	}

	wrong := newPlane(t, 3, 1, func(x, y int) float64 { return 0 })
	if err := th.Apply(im, wrong.ReadOnly()); err == nil {
		t.Error("Expected dimension mismatch error")
	}
}

func TestFixedThreshold(t *testing.T) {
	im := newPlane(t, 4, 1, func(x, y int) float64 { return float64(x) })
	if err := (&FixedThreshold{Level: 2}).Apply(im, nil); err != nil {
		t.Fatal(err)
	}
	if got := maskRows(im.ReadOnly())[0]; got != "0011" {
		t.Errorf("Expected 0011, got %s", got)
	}
}

func TestLocalMaxSeparabilityThreshold(t *testing.T) {
	// Left half alternates 10/50, right half 100/200. A global split would
	// mark every right-half pixel foreground.
	im := newPlane(t, 20, 10, func(x, y int) float64 {
		dark := (x+y)%2 == 0
		switch {
		case x < 10 && dark:
			return 10
		case x < 10:
			return 50
		case dark:
			return 100
		default:
			return 200
		}
	})
	orig := im.DeepCopy()
	th := &LocalMaxSeparabilityThreshold{WindowSize: 10}
	if err := th.Apply(im, nil); err != nil {
		t.Fatalf("Local threshold failed: %v", err)
	}
	for c := range im.Coordinates() {
		v := orig.Value(c)
		want := Background
		if v == 50 || v == 200 {
			want = Foreground
		}
		if im.Value(c) != want {
			t.Fatalf("Pixel %s (value %v) = %v, want %v", c, v, im.Value(c), want)
		}
	}
}

func TestLocalThresholdOverlapAverages(t *testing.T) {
	im := newPlane(t, 12, 4, func(x, y int) float64 { return float64((x % 2) * 100) })
	th := &LocalMaxSeparabilityThreshold{WindowSize: 6, Overlap: 3}
	if err := th.Apply(im, nil); err != nil {
		t.Fatalf("Local threshold failed: %v", err)
	}
	for c := range im.Coordinates() {
		want := Background
		if c[image5d.X]%2 == 1 {
			want = Foreground
		}
		if im.Value(c) != want {
			t.Fatalf("Pixel %s = %v, want %v", c, im.Value(c), want)
		}
	}
}

func TestLocalThresholdParameters(t *testing.T) {
	im := newPlane(t, 4, 4, func(x, y int) float64 { return 1 })
	for _, th := range []*LocalMaxSeparabilityThreshold{
		{WindowSize: 0},
		{WindowSize: 4, Overlap: 4},
		{WindowSize: 4, Overlap: -1},
	} {
		if err := th.Apply(im, nil); err == nil {
			t.Errorf("Expected error for %+v", *th)
		}
	}
}

func TestWindowStarts(t *testing.T) {
	got := windowStarts(0, 12, 6, 3)
	want := []int{0, 3, 6}
	if len(got) != len(want) {
		t.Fatalf("windowStarts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("windowStarts = %v, want %v", got, want)
		}
	}
}
