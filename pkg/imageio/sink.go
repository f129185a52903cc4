package imageio

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	"microquant/pkg/image5d"
	"microquant/pkg/logging"
)

// Metadata is written next to an image as a YAML sidecar.
type Metadata map[string]string

// Sink writes images as one 16-bit grayscale file per XY plane. The format
// follows the path's extension; PNG and TIFF keep all 16 bits.
type Sink struct {
	locks *FileLockManager
}

// NewSink writes under locks; nil gets a private manager.
func NewSink(locks *FileLockManager) *Sink {
	if locks == nil {
		locks = NewFileLockManager()
	}
	return &Sink{locks: locks}
}

// ExtractPlane copies the XY plane at (z,c,t) of im, rounding values and
// clamping them to the uint16 range.
func ExtractPlane(im *image5d.Image, z, c, t int) (*image.Gray16, error) {
	d := im.Dimensions()
	if !d.Contains(image5d.NewCoordinate(0, 0, z, c, t)) {
		return nil, fmt.Errorf("plane (z=%d, c=%d, t=%d) exceeds %s", z, c, t, d)
	}
	img := image.NewGray16(image.Rect(0, 0, d[image5d.X], d[image5d.Y]))
	for y := 0; y < d[image5d.Y]; y++ {
		for x := 0; x < d[image5d.X]; x++ {
			v := math.Round(im.Value(image5d.NewCoordinate(x, y, z, c, t)))
			v = math.Max(0, math.Min(math.MaxUint16, v))
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img, nil
}

// PlanePath names the file of plane (z,c,t) of a multi-plane image written
// to path.
func PlanePath(path string, z, c, t int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_z%03d_c%d_t%d%s", strings.TrimSuffix(path, ext), z, c, t, ext)
}

// WriteImage saves im to path. A single-plane image goes to path itself;
// otherwise every plane goes to PlanePath and a manifest listing them is
// written to path with a .yaml extension. Non-empty meta is written to
// path + ".meta.yaml".
func (s *Sink) WriteImage(path string, im *image5d.Image, meta Metadata) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	d := im.Dimensions()
	if d[image5d.Z]*d[image5d.C]*d[image5d.T] == 1 {
		if err := s.writePlane(path, im, 0, 0, 0); err != nil {
			return err
		}
	} else {
		ms := ManifestSeries{
			Name:  filepath.Base(path),
			SizeZ: d[image5d.Z],
			SizeC: d[image5d.C],
			SizeT: d[image5d.T],
		}
		for t := 0; t < d[image5d.T]; t++ {
			for c := 0; c < d[image5d.C]; c++ {
				for z := 0; z < d[image5d.Z]; z++ {
					p := PlanePath(path, z, c, t)
					if err := s.writePlane(p, im, z, c, t); err != nil {
						return err
					}
					ms.Planes = append(ms.Planes, filepath.Base(p))
				}
			}
		}
		manifest := strings.TrimSuffix(path, filepath.Ext(path)) + ".yaml"
		if err := WriteManifest(manifest, &Manifest{Series: []ManifestSeries{ms}}); err != nil {
			return fmt.Errorf("writing manifest %s: %w", manifest, err)
		}
	}
	if len(meta) > 0 {
		data, err := yaml.Marshal(meta)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path+".meta.yaml", data, 0644); err != nil {
			return fmt.Errorf("writing metadata: %w", err)
		}
	}
	logging.Debugf("Wrote %s image to %s", d, path)
	return nil
}

func (s *Sink) writePlane(path string, im *image5d.Image, z, c, t int) error {
	img, err := ExtractPlane(im, z, c, t)
	if err != nil {
		return err
	}
	return s.locks.With(path, func() error {
		if err := imaging.Save(img, path); err != nil {
			return fmt.Errorf("saving %s: %w", path, err)
		}
		return nil
	})
}
