package cluster

import (
	"testing"

	"microquant/pkg/image5d"
)

// newLabels builds a single-plane label image from rows of digits.
func newLabels(t *testing.T, rows ...string) *image5d.WritableImage {
	t.Helper()
	im, err := image5d.New(image5d.NewDimensions(len(rows[0]), len(rows), 1, 1, 1), 0)
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}
	for c := range im.Coordinates() {
		im.SetValue(c, float64(rows[c[image5d.Y]][c[image5d.X]]-'0'))
	}
	return im
}

func at(im *image5d.WritableImage, x, y int) float64 {
	return im.Value(image5d.NewCoordinate(x, y, 0, 0, 0))
}

func TestCentroids(t *testing.T) {
	im := newLabels(t,
		"1100",
		"1100",
		"0003",
	)
	cs := Centroids(im.ReadOnly(), 0, 0, 0)
	if len(cs) != 2 {
		t.Fatalf("Expected 2 centroids, got %d", len(cs))
	}
	if cs[0].Label != 1 || cs[0].Size != 4 || cs[0].Point.X != 0.5 || cs[0].Point.Y != 0.5 {
		t.Errorf("Unexpected centroid %+v", cs[0])
	}
	if cs[1].Label != 3 || cs[1].Size != 1 || cs[1].Point.X != 3 || cs[1].Point.Y != 2 {
		t.Errorf("Unexpected centroid %+v", cs[1])
	}
}

func TestClusteringSeparatesDistantBlocks(t *testing.T) {
	im := newLabels(t,
		"000000000000000000",
		"011111000000000000",
		"011111000000444440",
		"011111000000444440",
		"011111000000444440",
		"011111000000444440",
		"000000000000444440",
		"000000000000000000",
	)
	o := NewObjectClustering()
	if err := o.Apply(im, nil); err != nil {
		t.Fatalf("Clustering failed: %v", err)
	}
	if at(im, 3, 3) != 1 || at(im, 14, 4) != 2 {
		t.Fatalf("Expected block centres labeled 1 and 2, got %v and %v", at(im, 3, 3), at(im, 14, 4))
	}
	for c := range im.Coordinates() {
		v := im.Value(c)
		if v == 0 {
			continue
		}
		want := 1.0
		if c[image5d.X] >= 9 {
			want = 2
		}
		if v != want {
			t.Errorf("Pixel %s labeled %v, want %v", c, v, want)
		}
	}
	if len(o.Iterations) != 1 || o.Iterations[0] != 2 {
		t.Errorf("Expected convergence on the second pass, got %v", o.Iterations)
	}
}

func TestClusteringSplitsTouchingRegions(t *testing.T) {
	// One connected bar made of two labeled halves.
	im := newLabels(t,
		"000000000000",
		"011111222220",
		"011111222220",
		"011111222220",
		"000000000000",
	)
	o := &ObjectClustering{MaxIterations: 5, Sigma: 0.5}
	if err := o.Apply(im, nil); err != nil {
		t.Fatal(err)
	}
	if at(im, 2, 2) != 1 || at(im, 9, 2) != 2 {
		t.Errorf("Halves should keep separate clusters, got %v and %v", at(im, 2, 2), at(im, 9, 2))
	}
}

func TestClusteringEmptyMask(t *testing.T) {
	im := newLabels(t, "0000", "0000")
	o := NewObjectClustering()
	if err := o.Apply(im, nil); err != nil {
		t.Fatal(err)
	}
	for c := range im.Coordinates() {
		if im.Value(c) != 0 {
			t.Fatalf("Empty mask gained foreground at %s", c)
		}
	}
	if len(o.Iterations) != 1 || o.Iterations[0] != 0 {
		t.Errorf("Expected no passes, got %v", o.Iterations)
	}
}

func TestClusteringParameters(t *testing.T) {
	im := newLabels(t, "1")
	if err := (&ObjectClustering{}).Apply(im, nil); err == nil {
		t.Error("Expected error for zero MaxIterations")
	}
}

func TestSmoothMaskRemovesSpeck(t *testing.T) {
	im := newLabels(t,
		"00000000",
		"00000000",
		"00010000",
		"00000000",
		"00000000",
	)
	mask := NewObjectClustering().smoothMask(im.ReadOnly(), 0, 0, 0)
	for i, on := range mask {
		if on {
			t.Errorf("Isolated pixel survived smoothing at index %d", i)
		}
	}
}
