// Package segmentation runs the complete mask-building and quantification
// pipeline on one image.
package segmentation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"microquant/internal/models"
	"microquant/pkg/cluster"
	"microquant/pkg/config"
	"microquant/pkg/filter"
	"microquant/pkg/image5d"
	"microquant/pkg/imageio"
	"microquant/pkg/logging"
	"microquant/pkg/metric"
)

// Params configures a Segmenter.
type Params struct {
	Config *config.Config

	// IntermediateDir receives the mask after every stage when
	// Config.Output.SaveIntermediate is set, one subdirectory per job.
	IntermediateDir string

	// Sink writes intermediate masks. Nil gets a private sink.
	Sink *imageio.Sink
}

// Result is everything Process produces for one image.
type Result struct {
	Job            models.Job
	Mask           *image5d.Image
	Groups         *image5d.Image
	Quantification *metric.Quantification
	Background     []filter.BackgroundEstimate
	Regions        int
	Stages         []string
	Duration       time.Duration
}

// Segmenter builds a labeled mask from an intensity image and quantifies
// the image over it. The stages are:
//
//  1. renormalize intensities to [0, RenormalizeMax]
//  2. optional bandpass filtering
//  3. threshold (global, local or fixed)
//  4. opening with a square XY element
//  5. connected-component labeling
//  6. hole filling
//  7. size filtering
//  8. relabeling to 1..K
//
// With clustering enabled the mask is then grouped by ObjectClustering. The
// intensity image, background-subtracted against the mask when enabled, is
// quantified with per-region intensity and size, plus group membership when
// clustered. A mask without regions yields the zero quantification.
type Segmenter struct {
	params *Params
}

func NewSegmenter(params *Params) *Segmenter {
	if params.Config == nil {
		params.Config = config.DefaultConfig()
	}
	if params.Sink == nil {
		params.Sink = imageio.NewSink(nil)
	}
	return &Segmenter{params: params}
}

// MaskPipeline assembles stages 1-8. The returned relabel filter reports the
// final region count after Apply.
func (s *Segmenter) MaskPipeline() (*filter.Pipeline, *filter.RelabelFilter, error) {
	cfg := s.params.Config
	p := filter.NewPipeline()
	p.Add("renormalize", &filter.RenormalizeFilter{Max: cfg.RenormalizeMax})
	if cfg.Bandpass.Enabled {
		p.Add("bandpass", &filter.BandpassFilter{SmallSize: cfg.Bandpass.SmallSize, LargeSize: cfg.Bandpass.LargeSize})
	}

	switch cfg.Threshold.Method {
	case config.MethodLocal:
		p.Add("threshold", &filter.LocalMaxSeparabilityThreshold{
			WindowSize: cfg.Threshold.WindowSize,
			Overlap:    cfg.Threshold.Overlap,
		})
	case config.MethodFixed:
		p.Add("threshold", &filter.FixedThreshold{Level: cfg.Threshold.Level})
	default:
		p.Add("threshold", &filter.MaxSeparabilityThreshold{})
	}

	if cfg.Morphology.OpeningSize > 1 {
		se, err := filter.DefaultStructuringElement(cfg.Morphology.OpeningSize, image5d.X, image5d.Y)
		if err != nil {
			return nil, nil, fmt.Errorf("opening element: %w", err)
		}
		p.Add("opening", filter.NewOpening(se))
	}

	p.Add("label", &filter.LabelFilter{FaceConnected: cfg.FaceConnected})
	if cfg.FillHoles {
		p.Add("fill", filter.FillFilter{})
	}
	p.Add("size", &filter.SizeAbsoluteFilter{Min: cfg.Size.Min, Max: cfg.Size.Max})
	relabel := &filter.RelabelFilter{}
	p.Add("relabel", relabel)
	return p, relabel, nil
}

// denseCopy copies im into a float buffer so intermediate values are not
// rounded by a 16-bit backend.
func denseCopy(im *image5d.Image) (*image5d.WritableImage, error) {
	out, err := image5d.New(im.Dimensions(), 0)
	if err != nil {
		return nil, err
	}
	full := im.ShallowCopy()
	full.ClearBoxOfInterest()
	if err := out.CopyFrom(full); err != nil {
		return nil, err
	}
	return out, nil
}

// Process segments and quantifies im.
func (s *Segmenter) Process(ctx context.Context, job models.Job, im *image5d.Image) (*Result, error) {
	start := time.Now()
	cfg := s.params.Config
	res := &Result{Job: job}

	mask, err := denseCopy(im)
	if err != nil {
		return nil, err
	}
	pipe, relabel, err := s.MaskPipeline()
	if err != nil {
		return nil, err
	}
	res.Stages = pipe.Stages()
	pipe.OnStage(func(i int, stage string, m *image5d.WritableImage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cfg.Output.SaveIntermediate {
			s.saveStage(job, i, stage, m.ReadOnly())
		}
		return nil
	})
	if err := pipe.Apply(mask, nil); err != nil {
		return nil, fmt.Errorf("building mask for %s: %w", job, err)
	}
	res.Mask = mask.ReadOnly()
	res.Regions = relabel.Count
	logging.Infof("%s: %d regions after %d stages", job, res.Regions, pipe.Len())

	metrics := metric.Combined{metric.IntensityPerPixelMetric{Background: true}}
	if cfg.Clustering.Enabled && res.Regions > 0 {
		groups, err := denseCopy(res.Mask)
		if err != nil {
			return nil, err
		}
		oc := &cluster.ObjectClustering{MaxIterations: cfg.Clustering.MaxIterations, Sigma: cfg.Clustering.Sigma}
		if err := oc.Apply(groups, nil); err != nil {
			return nil, fmt.Errorf("clustering %s: %w", job, err)
		}
		res.Groups = groups.ReadOnly()
		metrics = append(metrics, metric.GroupMetric{Groups: res.Groups})
		if cfg.Output.SaveIntermediate {
			s.saveStage(job, pipe.Len()+1, "clustering", res.Groups)
		}
	}

	intensity, err := denseCopy(im)
	if err != nil {
		return nil, err
	}
	if cfg.Background.Enabled {
		bg := &filter.BackgroundSubtractionFilter{}
		if err := bg.Apply(intensity, res.Mask); err != nil {
			return nil, fmt.Errorf("background subtraction for %s: %w", job, err)
		}
		res.Background = bg.Estimates
	}

	q, err := metric.WithZeroFallback(metrics, res.Mask, []*image5d.Image{intensity.ReadOnly()})
	if err != nil {
		return nil, fmt.Errorf("quantifying %s: %w", job, err)
	}
	for _, e := range res.Background {
		q.Add(metric.Measurement{
			Value:   e.Value,
			Name:    fmt.Sprintf("%s_c%d_t%d", metric.BackgroundName, e.Channel, e.Timepoint),
			Type:    metric.Background,
			ImageID: 0,
		})
	}
	res.Quantification = q
	res.Duration = time.Since(start)
	return res, nil
}

// saveStage writes an intermediate mask. Failures are logged, not returned.
func (s *Segmenter) saveStage(job models.Job, index int, stage string, im *image5d.Image) {
	path := filepath.Join(s.params.IntermediateDir, job.Name(), fmt.Sprintf("%02d_%s.png", index, stage))
	meta := imageio.Metadata{"source": job.Identifier, "stage": stage}
	if err := s.params.Sink.WriteImage(path, im, meta); err != nil {
		logging.Warningf("Failed to save %s stage of %s: %v", stage, job, err)
	}
}
