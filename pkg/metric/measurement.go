// Package metric turns a labeled mask and its intensity images into
// per-region measurements.
package metric

import (
	"fmt"
	"sort"
	"strings"
)

// MeasurementType classifies a measurement.
type MeasurementType int

const (
	Intensity MeasurementType = iota
	Size
	Group
	Background
)

var typeNames = [...]string{"intensity", "size", "group", "background"}

func (t MeasurementType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("MeasurementType(%d)", int(t))
	}
	return typeNames[t]
}

// ParseMeasurementType is the inverse of MeasurementType.String.
func ParseMeasurementType(s string) (MeasurementType, error) {
	for i, n := range typeNames {
		if strings.EqualFold(s, n) {
			return MeasurementType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown measurement type %q", s)
}

// Measurement is one scalar result. FeatureID is a region label and is only
// meaningful when HasFeature is set; otherwise the measurement is global.
type Measurement struct {
	HasFeature bool            `yaml:"has_feature"`
	FeatureID  int             `yaml:"feature_id"`
	Value      float64         `yaml:"value"`
	Name       string          `yaml:"name"`
	Type       MeasurementType `yaml:"type"`
	ImageID    int             `yaml:"image_id"`
}

// Quantification is an append-only collection of measurements indexed by
// name, type and region. Measurements without a region go to the global
// bucket.
type Quantification struct {
	all       []Measurement
	byName    map[string][]int
	byType    map[MeasurementType][]int
	byFeature map[int][]int
	global    []int
}

// NewQuantification returns an empty quantification.
func NewQuantification() *Quantification {
	return &Quantification{
		byName:    make(map[string][]int),
		byType:    make(map[MeasurementType][]int),
		byFeature: make(map[int][]int),
	}
}

// Add appends m.
func (q *Quantification) Add(m Measurement) {
	i := len(q.all)
	q.all = append(q.all, m)
	q.byName[m.Name] = append(q.byName[m.Name], i)
	q.byType[m.Type] = append(q.byType[m.Type], i)
	if m.HasFeature {
		q.byFeature[m.FeatureID] = append(q.byFeature[m.FeatureID], i)
	} else {
		q.global = append(q.global, i)
	}
}

// AddAll appends every measurement in order.
func (q *Quantification) AddAll(ms ...Measurement) {
	for _, m := range ms {
		q.Add(m)
	}
}

// Merge appends all of o's measurements.
func (q *Quantification) Merge(o *Quantification) {
	q.AddAll(o.all...)
}

func (q *Quantification) pick(idx []int) []Measurement {
	out := make([]Measurement, len(idx))
	for i, j := range idx {
		out[i] = q.all[j]
	}
	return out
}

// All returns every measurement in insertion order.
func (q *Quantification) All() []Measurement {
	return append([]Measurement(nil), q.all...)
}

func (q *Quantification) ByName(name string) []Measurement       { return q.pick(q.byName[name]) }
func (q *Quantification) ByType(t MeasurementType) []Measurement { return q.pick(q.byType[t]) }
func (q *Quantification) ByFeature(id int) []Measurement         { return q.pick(q.byFeature[id]) }
func (q *Quantification) Global() []Measurement                  { return q.pick(q.global) }

// Features returns the region IDs that have measurements, ascending.
func (q *Quantification) Features() []int {
	ids := make([]int, 0, len(q.byFeature))
	for id := range q.byFeature {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of measurements.
func (q *Quantification) Len() int { return len(q.all) }

// Lookup returns the first measurement matching name and image for a region.
func (q *Quantification) Lookup(feature int, name string, imageID int) (Measurement, bool) {
	for _, i := range q.byFeature[feature] {
		if m := q.all[i]; m.Name == name && m.ImageID == imageID {
			return m, true
		}
	}
	return Measurement{}, false
}
