// Package filter implements the in-place image transformations of the
// segmentation pipeline: normalization, thresholding, binary morphology,
// connected-component labeling and region cleanup.
//
// Every filter satisfies the Filter interface and mutates the image it is
// given. Some filters consult a second, reference image (a label mask, a
// background mask); for the rest the reference may be nil.
package filter

import (
	"errors"
	"fmt"
	"time"

	"microquant/pkg/image5d"
	"microquant/pkg/logging"
)

// ErrMissingReference is returned by filters that need a reference image.
var ErrMissingReference = errors.New("filter requires a reference image")

// Filter transforms im in place. ref is optional for most filters.
type Filter interface {
	Apply(im *image5d.WritableImage, ref *image5d.Image) error
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(im *image5d.WritableImage, ref *image5d.Image) error

// Apply calls f.
func (f FilterFunc) Apply(im *image5d.WritableImage, ref *image5d.Image) error { return f(im, ref) }

// Stage is one named step of a Pipeline. Ref, when set, is passed to the
// filter instead of the pipeline-level reference.
type Stage struct {
	Name   string
	Filter Filter
	Ref    *image5d.Image
}

// Pipeline applies its stages in order. Each stage completes before the next
// starts.
type Pipeline struct {
	stages []Stage
	hook   StageHook
}

// StageHook observes the image after each stage. An error aborts the run.
type StageHook func(index int, name string, im *image5d.WritableImage) error

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Add appends a stage and returns the pipeline for chaining.
func (p *Pipeline) Add(name string, f Filter) *Pipeline {
	p.stages = append(p.stages, Stage{Name: name, Filter: f})
	return p
}

// AddWithReference appends a stage with its own reference image.
func (p *Pipeline) AddWithReference(name string, f Filter, ref *image5d.Image) *Pipeline {
	p.stages = append(p.stages, Stage{Name: name, Filter: f, Ref: ref})
	return p
}

// OnStage sets a hook called after every stage.
func (p *Pipeline) OnStage(h StageHook) *Pipeline {
	p.hook = h
	return p
}

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// Apply runs every stage on im. The first failing stage aborts the run.
func (p *Pipeline) Apply(im *image5d.WritableImage, ref *image5d.Image) error {
	for i, s := range p.stages {
		r := ref
		if s.Ref != nil {
			r = s.Ref
		}
		start := time.Now()
		if err := s.Filter.Apply(im, r); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i+1, s.Name, err)
		}
		logging.Debugf("filter stage %d (%s) finished in %s", i+1, s.Name, time.Since(start))
		if p.hook != nil {
			if err := p.hook(i+1, s.Name, im); err != nil {
				return fmt.Errorf("after stage %d (%s): %w", i+1, s.Name, err)
			}
		}
	}
	return nil
}
