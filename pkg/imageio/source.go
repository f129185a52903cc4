// Package imageio reads and writes 5D images as stacks of 2D image files.
//
// An identifier names one or more series. A plain image file or a directory
// of numbered planes holds a single series; a YAML manifest may list several.
// Every ReadImage call returns the next unread series of its identifier, and
// SeriesReader reports the progress. File access goes through a
// FileLockManager so one file is never decoded twice at the same time, and
// remote fetches share a ConnectionLimiter.
package imageio

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"microquant/pkg/image5d"
)

// ErrNoMoreSeries is returned by ReadImage once every series of an
// identifier has been read.
var ErrNoMoreSeries = errors.New("no more series")

// Source produces images from identifiers such as paths or URLs.
type Source interface {
	ReadImage(ctx context.Context, identifier string) (*image5d.WritableImage, error)
}

// SeriesReader tracks multi-series identifiers. CurrentSeriesIndex is the
// index of the series returned by the last ReadImage, or -1 before the first.
type SeriesReader interface {
	HasMoreSeries(identifier string) bool
	SeriesCount(identifier string) int
	CurrentSeriesIndex(identifier string) int
}

// SeriesSource is a Source that reads multi-series identifiers.
type SeriesSource interface {
	Source
	SeriesReader
}

// series is the layout of one 5D image: plane files ordered z fastest, then
// c, then t.
type series struct {
	Name   string
	Planes []string
	SizeZ  int
	SizeC  int
	SizeT  int
}

// cursor remembers how far each identifier has been read.
type cursor struct {
	mu    sync.Mutex
	state map[string]*seriesState
}

type seriesState struct {
	series  []series
	current int
}

func newCursor() *cursor {
	return &cursor{state: make(map[string]*seriesState)}
}

// get returns the state of id, resolving it on first use.
func (c *cursor) get(id string, resolve func(string) ([]series, error)) (*seriesState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.state[id]; ok {
		return s, nil
	}
	list, err := resolve(id)
	if err != nil {
		return nil, err
	}
	s := &seriesState{series: list, current: -1}
	c.state[id] = s
	return s, nil
}

// next advances id and returns the series to read.
func (c *cursor) next(id string, resolve func(string) ([]series, error)) (series, int, error) {
	s, err := c.get(id, resolve)
	if err != nil {
		return series{}, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.current+1 >= len(s.series) {
		return series{}, 0, fmt.Errorf("%s: %w", id, ErrNoMoreSeries)
	}
	s.current++
	return s.series[s.current], s.current, nil
}

func (c *cursor) peek(id string, resolve func(string) ([]series, error)) (count, current int, ok bool) {
	s, err := c.get(id, resolve)
	if err != nil {
		return 0, -1, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(s.series), s.current, true
}

// rewind forgets the progress of id.
func (c *cursor) rewind(id string) {
	c.mu.Lock()
	delete(c.state, id)
	c.mu.Unlock()
}

// toGray16 converts a decoded plane to 16-bit gray, reusing it when it
// already is one.
func toGray16(img image.Image) *image.Gray16 {
	if g, ok := img.(*image.Gray16); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.SetGray16(x, y, color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16))
		}
	}
	return out
}

// assemble stacks decoded planes into an image of the series' shape.
func assemble(s series, planes []*image.Gray16) (*image5d.WritableImage, error) {
	buf, err := image5d.GrayPlaneBufferFromPlanes(planes, s.SizeZ, s.SizeC, s.SizeT)
	if err != nil {
		return nil, fmt.Errorf("series %q: %w", s.Name, err)
	}
	return image5d.FromBuffer(buf), nil
}
