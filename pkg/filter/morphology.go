package filter

import (
	"fmt"

	"microquant/pkg/image5d"
)

// Foreground and Background are the values written by binary filters.
const (
	Foreground = 1.0
	Background = 0.0
)

// Erosion sets a pixel to foreground only when every neighbour under a
// positive structuring-element weight is foreground.
//
// Neighbours that fall outside the image are skipped rather than counted as
// background, so a foreground border pixel can survive erosion even though
// part of its footprint is off the image. This matches the segmentation
// results produced so far; treat it as pending review before relying on
// border pixels.
type Erosion struct {
	Element *StructuringElement
	// ProcessAsBinary is always true: grayscale morphology is not implemented.
	ProcessAsBinary bool
}

// NewErosion creates an erosion filter for se.
func NewErosion(se *StructuringElement) *Erosion {
	return &Erosion{Element: se, ProcessAsBinary: true}
}

func (e *Erosion) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	return morph(im, e.Element, true)
}

// Dilation sets a pixel to foreground when at least one neighbour under a
// positive structuring-element weight is foreground.
type Dilation struct {
	Element         *StructuringElement
	ProcessAsBinary bool
}

// NewDilation creates a dilation filter for se.
func NewDilation(se *StructuringElement) *Dilation {
	return &Dilation{Element: se, ProcessAsBinary: true}
}

func (d *Dilation) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	return morph(im, d.Element, false)
}

// Opening is an erosion followed by a dilation with the same element. It
// removes foreground structures smaller than the element and restores the
// shape of the ones that survive.
type Opening struct {
	Element         *StructuringElement
	ProcessAsBinary bool
}

// NewOpening creates an opening filter for se.
func NewOpening(se *StructuringElement) *Opening {
	return &Opening{Element: se, ProcessAsBinary: true}
}

func (o *Opening) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	if err := morph(im, o.Element, true); err != nil {
		return fmt.Errorf("opening erosion: %w", err)
	}
	if err := morph(im, o.Element, false); err != nil {
		return fmt.Errorf("opening dilation: %w", err)
	}
	return nil
}

// Closing is a dilation followed by an erosion; it bridges gaps narrower
// than the element.
type Closing struct {
	Element         *StructuringElement
	ProcessAsBinary bool
}

// NewClosing creates a closing filter for se.
func NewClosing(se *StructuringElement) *Closing {
	return &Closing{Element: se, ProcessAsBinary: true}
}

func (c *Closing) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	if err := morph(im, c.Element, false); err != nil {
		return fmt.Errorf("closing dilation: %w", err)
	}
	if err := morph(im, c.Element, true); err != nil {
		return fmt.Errorf("closing erosion: %w", err)
	}
	return nil
}

// morph runs one binary erosion or dilation over im's active region. All
// neighbour reads come from a snapshot taken before any pixel is written.
func morph(im *image5d.WritableImage, se *StructuringElement, erode bool) error {
	if se == nil {
		return fmt.Errorf("%w: nil structuring element", ErrInvalidElement)
	}
	snapshot := im.DeepCopy()
	snapshot.ClearBoxOfInterest()
	radius := se.Radius()
	one := image5d.NewCoordinate(1, 1, 1, 1, 1)

	for c := range im.Coordinates() {
		// Clip the footprint to the image; off-image neighbours are never visited.
		if err := snapshot.SetBoxOfInterest(c.Sub(radius), c.Add(radius).Add(one), true); err != nil {
			return err
		}
		result := erode
		for n := range snapshot.Coordinates() {
			if se.Weight(n.Sub(c)) <= 0 {
				continue
			}
			on := snapshot.Value(n) > 0
			if erode && !on {
				result = false
				break
			}
			if !erode && on {
				result = true
				break
			}
		}
		if result {
			im.SetValue(c, Foreground)
		} else {
			im.SetValue(c, Background)
		}
	}
	return nil
}
