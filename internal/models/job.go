package models

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Job is one series of one input to segment and quantify.
type Job struct {
	// Identifier is the file path, directory, manifest or URL the image
	// was read from
	Identifier string

	// Series is the index of the series within Identifier
	Series int

	// Count is the number of series in Identifier
	Count int

	// Base replaces the name derived from Identifier when set
	Base string
}

// Name returns a filesystem-safe base name for the job's outputs. Inputs
// with several series get a _sN suffix.
func (j Job) Name() string {
	base := j.Base
	if base == "" {
		base = BaseName(j.Identifier)
	}
	if j.Count > 1 {
		base = fmt.Sprintf("%s_s%d", base, j.Series)
	}
	return base
}

// BaseName derives an output name from an identifier: the last path element
// of a file path or URL without its extension.
func BaseName(identifier string) string {
	var base string
	if u, err := url.Parse(identifier); err == nil && u.Scheme != "" && u.Host != "" {
		base = path.Base(u.Path)
	} else {
		base = filepath.Base(filepath.Clean(identifier))
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return base
}

// UniqueBaseNames returns one output name per identifier. The first
// identifier with a given BaseName keeps it; later ones get _2, _3 and so
// on, skipping names already taken.
func UniqueBaseNames(identifiers []string) []string {
	taken := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		taken[BaseName(id)] = true
	}
	seen := make(map[string]bool, len(identifiers))
	out := make([]string, len(identifiers))
	for i, id := range identifiers {
		base := BaseName(id)
		if !seen[base] {
			seen[base] = true
			out[i] = base
			continue
		}
		name := base
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[name] = true
		seen[name] = true
		out[i] = name
	}
	return out
}

func (j Job) String() string {
	if j.Count > 1 {
		return fmt.Sprintf("%s [series %d/%d]", j.Identifier, j.Series+1, j.Count)
	}
	return j.Identifier
}

// Outcome records how a job ended.
type Outcome struct {
	Job Job

	// Regions is the number of labeled regions found
	Regions int

	// Measurements is the number of measurements written
	Measurements int

	// Output is the quantification file, empty on failure
	Output string

	Duration time.Duration
	Err      error
}

// Summary collects the outcomes of a batch.
type Summary struct {
	Outcomes  []Outcome
	Succeeded int
	Failed    int
}

// Add records o.
func (s *Summary) Add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.Err != nil {
		s.Failed++
	} else {
		s.Succeeded++
	}
}

// Regions returns the total number of regions over successful jobs.
func (s *Summary) Regions() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Err == nil {
			n += o.Regions
		}
	}
	return n
}
