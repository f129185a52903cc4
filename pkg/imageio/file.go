package imageio

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"

	"microquant/pkg/image5d"
	"microquant/pkg/logging"
)

var planeExtensions = map[string]bool{
	".png":  true,
	".tif":  true,
	".tiff": true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
}

// IsImageFile reports whether path has an extension the readers decode.
func IsImageFile(path string) bool {
	return planeExtensions[strings.ToLower(filepath.Ext(path))]
}

// FileSource reads images from the local filesystem. An identifier is a
// single image file, a directory of numbered plane files forming a Z stack,
// or a YAML manifest (.yaml, .yml) describing one or more series.
type FileSource struct {
	locks  *FileLockManager
	cursor *cursor
}

// NewFileSource reads files under locks; nil gets a private manager.
func NewFileSource(locks *FileLockManager) *FileSource {
	if locks == nil {
		locks = NewFileLockManager()
	}
	return &FileSource{locks: locks, cursor: newCursor()}
}

// ReadImage decodes the next series of identifier.
func (f *FileSource) ReadImage(ctx context.Context, identifier string) (*image5d.WritableImage, error) {
	s, idx, err := f.cursor.next(identifier, resolveFile)
	if err != nil {
		return nil, err
	}
	planes := make([]*image.Gray16, len(s.Planes))
	for i, p := range s.Planes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if planes[i], err = f.readPlane(p); err != nil {
			return nil, err
		}
	}
	im, err := assemble(s, planes)
	if err != nil {
		return nil, err
	}
	logging.Debugf("Read series %d (%s) of %s: %s", idx, s.Name, identifier, im.Dimensions())
	return im, nil
}

func (f *FileSource) readPlane(path string) (*image.Gray16, error) {
	var img image.Image
	err := f.locks.With(path, func() error {
		var err error
		img, err = imaging.Open(path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	return toGray16(img), nil
}

func (f *FileSource) HasMoreSeries(identifier string) bool {
	count, current, ok := f.cursor.peek(identifier, resolveFile)
	return ok && current+1 < count
}

func (f *FileSource) SeriesCount(identifier string) int {
	count, _, _ := f.cursor.peek(identifier, resolveFile)
	return count
}

func (f *FileSource) CurrentSeriesIndex(identifier string) int {
	_, current, _ := f.cursor.peek(identifier, resolveFile)
	return current
}

// Rewind makes the next ReadImage of identifier start from its first series.
func (f *FileSource) Rewind(identifier string) { f.cursor.rewind(identifier) }

func resolveFile(path string) ([]series, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	switch {
	case info.IsDir():
		planes, err := listPlanes(path)
		if err != nil {
			return nil, err
		}
		return []series{{
			Name:   filepath.Base(path),
			Planes: planes,
			SizeZ:  len(planes),
			SizeC:  1,
			SizeT:  1,
		}}, nil
	case isManifest(path):
		return readManifest(path)
	case IsImageFile(path):
		return []series{{
			Name:   filepath.Base(path),
			Planes: []string{path},
			SizeZ:  1,
			SizeC:  1,
			SizeT:  1,
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported image file %s", path)
	}
}

// listPlanes returns the image files of dir sorted by the number in their
// names, ties broken by name.
func listPlanes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no image files found in %s", dir)
	}
	sort.Slice(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
	for i, n := range names {
		names[i] = filepath.Join(dir, n)
	}
	return names, nil
}

// extractNumber concatenates the digits of a file's base name; names without
// digits give 0.
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func isManifest(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Manifest lists the series of a multi-series identifier. Plane paths are
// relative to the manifest's directory unless absolute.
type Manifest struct {
	Series []ManifestSeries `yaml:"series"`
}

// ManifestSeries is one 5D image. Planes are ordered z fastest, then c,
// then t; missing sizes default to 1, except SizeZ which defaults to the
// number of planes divided by SizeC*SizeT.
type ManifestSeries struct {
	Name   string   `yaml:"name"`
	SizeZ  int      `yaml:"sizeZ"`
	SizeC  int      `yaml:"sizeC"`
	SizeT  int      `yaml:"sizeT"`
	Planes []string `yaml:"planes"`
}

func readManifest(path string) ([]series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing manifest %s: %w", path, err)
	}
	if len(m.Series) == 0 {
		return nil, fmt.Errorf("manifest %s lists no series", path)
	}
	dir := filepath.Dir(path)
	out := make([]series, 0, len(m.Series))
	for i, ms := range m.Series {
		s := series{
			Name:  ms.Name,
			SizeC: max(ms.SizeC, 1),
			SizeT: max(ms.SizeT, 1),
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("series%d", i)
		}
		s.SizeZ = ms.SizeZ
		if s.SizeZ <= 0 {
			s.SizeZ = len(ms.Planes) / (s.SizeC * s.SizeT)
		}
		if len(ms.Planes) == 0 || len(ms.Planes) != s.SizeZ*s.SizeC*s.SizeT {
			return nil, fmt.Errorf("manifest %s series %q: %d planes for %dx%dx%d (z,c,t)",
				path, s.Name, len(ms.Planes), s.SizeZ, s.SizeC, s.SizeT)
		}
		for _, p := range ms.Planes {
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			s.Planes = append(s.Planes, p)
		}
		out = append(out, s)
	}
	return out, nil
}

// WriteManifest saves m as YAML.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshaling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
