// Package image5d holds dense five-dimensional (X,Y,Z,Channel,Time) pixel data,
// the views used to iterate over it, and the histogram statistics computed
// from those views.
//
// Coordinates are small value types. Filters create millions of them while
// iterating, so nothing here allocates per coordinate.
package image5d

import (
	"fmt"
	"strings"
)

// Axis names one of the five image dimensions.
type Axis int

const (
	X Axis = iota
	Y
	Z
	C
	T
)

// NumAxes is the number of image dimensions.
const NumAxes = 5

// DefaultDimensionOrder is the storage order used when none is given.
const DefaultDimensionOrder = "XYZCT"

var axisNames = [NumAxes]string{"x", "y", "z", "c", "t"}

func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return fmt.Sprintf("Axis(%d)", int(a))
	}
	return axisNames[a]
}

// ParseAxis converts a symbolic axis name ("x", "Y", "c", ...) to an Axis.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return X, nil
	case "y":
		return Y, nil
	case "z":
		return Z, nil
	case "c":
		return C, nil
	case "t":
		return T, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// ParseAxes parses a list of axis names such as "xy" or "x,y,z".
func ParseAxes(s string) ([]Axis, error) {
	s = strings.ReplaceAll(s, ",", "")
	axes := make([]Axis, 0, len(s))
	for _, r := range s {
		if r == ' ' {
			continue
		}
		a, err := ParseAxis(string(r))
		if err != nil {
			return nil, err
		}
		axes = append(axes, a)
	}
	return axes, nil
}

// Coordinate is a (x,y,z,c,t) index. It is also used for signed offsets.
type Coordinate [NumAxes]int

// NewCoordinate builds a coordinate from its five components.
func NewCoordinate(x, y, z, c, t int) Coordinate {
	return Coordinate{x, y, z, c, t}
}

// Get returns the component along a.
func (c Coordinate) Get(a Axis) int { return c[a] }

// Set changes the component along a.
func (c *Coordinate) Set(a Axis, v int) { c[a] = v }

// With returns a copy of c with the component along a replaced.
func (c Coordinate) With(a Axis, v int) Coordinate {
	c[a] = v
	return c
}

// Add returns the component-wise sum.
func (c Coordinate) Add(o Coordinate) Coordinate {
	for i := range c {
		c[i] += o[i]
	}
	return c
}

// Sub returns the component-wise difference.
func (c Coordinate) Sub(o Coordinate) Coordinate {
	for i := range c {
		c[i] -= o[i]
	}
	return c
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(x=%d, y=%d, z=%d, c=%d, t=%d)", c[X], c[Y], c[Z], c[C], c[T])
}

// Dimensions holds the size along each axis.
type Dimensions [NumAxes]int

// NewDimensions builds dimension sizes; zero sizes are promoted to 1.
func NewDimensions(sx, sy, sz, sc, st int) Dimensions {
	d := Dimensions{sx, sy, sz, sc, st}
	for i := range d {
		if d[i] == 0 {
			d[i] = 1
		}
	}
	return d
}

// Get returns the size along a.
func (d Dimensions) Get(a Axis) int { return d[a] }

// Count returns the number of pixels.
func (d Dimensions) Count() int {
	n := 1
	for _, s := range d {
		n *= s
	}
	return n
}

// Validate reports an error if any size is not positive.
func (d Dimensions) Validate() error {
	for i, s := range d {
		if s <= 0 {
			return fmt.Errorf("dimension %s has non-positive size %d", Axis(i), s)
		}
	}
	return nil
}

// Contains reports whether every component of c lies in [0, size).
func (d Dimensions) Contains(c Coordinate) bool {
	for i, s := range d {
		if c[i] < 0 || c[i] >= s {
			return false
		}
	}
	return true
}

// Upper returns the exclusive upper corner of the full extent.
func (d Dimensions) Upper() Coordinate {
	return Coordinate(d)
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%dx%dx%dx%d", d[X], d[Y], d[Z], d[C], d[T])
}
