// Package config provides configuration loading for microquant. Parameters
// live in a flat ParameterSet that can be filled from YAML or TOML files and
// from key=value command line entries; Resolve turns it into a typed Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"microquant/pkg/logging"
)

// Parameter keys understood by Resolve.
const (
	KeyThresholdMethod     = "threshold.method"
	KeyThresholdLevel      = "threshold.level"
	KeyThresholdWindow     = "threshold.windowSize"
	KeyThresholdOverlap    = "threshold.overlap"
	KeyBandpassEnabled     = "bandpass.enabled"
	KeyBandpassSmall       = "bandpass.smallSize"
	KeyBandpassLarge       = "bandpass.largeSize"
	KeyOpeningSize         = "morphology.openingSize"
	KeyFaceConnected       = "label.faceConnected"
	KeyFillHoles           = "fill.enabled"
	KeySizeMin             = "size.min"
	KeySizeMax             = "size.max"
	KeyClusteringEnabled   = "clustering.enabled"
	KeyClusteringMaxIter   = "clustering.maxIterations"
	KeyClusteringSigma     = "clustering.sigma"
	KeyBackgroundEnabled   = "background.enabled"
	KeyOutputDir           = "output.dir"
	KeyOutputFormat        = "output.format"
	KeySaveIntermediate    = "output.saveIntermediate"
	KeyMaxConnections      = "io.maxConnections"
	KeyWorkers             = "io.workers"
	KeyLogfile             = "log.logfile"
	KeyLogMaxSize          = "log.maxLogSize"
	KeyLogMaxAge           = "log.maxLogAge"
	KeyLogMaxBackups       = "log.maxBackups"
	KeyRenormalizeMaxValue = "renormalize.max"
)

// Threshold methods.
const (
	MethodGlobal = "global"
	MethodLocal  = "local"
	MethodFixed  = "fixed"
)

// Config is the typed view of a ParameterSet.
type Config struct {
	Threshold struct {
		// Method is global, local or fixed
		Method     string
		Level      float64
		WindowSize int
		Overlap    int
	}

	Bandpass struct {
		Enabled   bool
		SmallSize float64
		LargeSize float64
	}

	// RenormalizeMax is the top of the intensity range after renormalization.
	RenormalizeMax float64

	Morphology struct {
		// OpeningSize is the side of the XY opening element; 0 disables it
		OpeningSize int
	}

	FaceConnected bool
	FillHoles     bool

	Size struct {
		Min int
		// Max of 0 means unbounded
		Max int
	}

	Clustering struct {
		Enabled       bool
		MaxIterations int
		Sigma         float64
	}

	Background struct {
		Enabled bool
	}

	Output struct {
		Dir              string
		Format           string
		SaveIntermediate bool
	}

	IO struct {
		MaxConnections int
		Workers        int
	}

	Log logging.LogConfig
}

var defaults = [][2]string{
	{KeyThresholdMethod, MethodGlobal},
	{KeyThresholdLevel, "128"},
	{KeyThresholdWindow, "64"},
	{KeyThresholdOverlap, "16"},
	{KeyBandpassEnabled, "false"},
	{KeyBandpassSmall, "2"},
	{KeyBandpassLarge, "40"},
	{KeyRenormalizeMaxValue, "255"},
	{KeyOpeningSize, "3"},
	{KeyFaceConnected, "false"},
	{KeyFillHoles, "true"},
	{KeySizeMin, "10"},
	{KeySizeMax, "0"},
	{KeyClusteringEnabled, "false"},
	{KeyClusteringMaxIter, "10"},
	{KeyClusteringSigma, "1"},
	{KeyBackgroundEnabled, "true"},
	{KeyOutputDir, "output"},
	{KeyOutputFormat, "csv"},
	{KeySaveIntermediate, "false"},
	{KeyMaxConnections, "4"},
	{KeyWorkers, strconv.Itoa(runtime.NumCPU())},
}

// ApplyDefaults fills every key that p does not set.
func ApplyDefaults(p *ParameterSet) {
	for _, kv := range defaults {
		p.SetIfAbsent(kv[0], kv[1])
	}
}

// DefaultConfig returns the configuration of an empty parameter set.
func DefaultConfig() *Config {
	return Resolve(NewParameterSet())
}

// Resolve reads a Config from p, falling back to defaults for missing or
// malformed values. p itself is not modified.
func Resolve(p *ParameterSet) *Config {
	q := NewParameterSet()
	q.Merge(p)
	ApplyDefaults(q)

	cfg := &Config{}
	cfg.Threshold.Method = strings.ToLower(q.StringOr(KeyThresholdMethod, MethodGlobal))
	switch cfg.Threshold.Method {
	case MethodGlobal, MethodLocal, MethodFixed:
	default:
		logging.Errorf("Unknown threshold method %q, using %s", cfg.Threshold.Method, MethodGlobal)
		cfg.Threshold.Method = MethodGlobal
	}
	cfg.Threshold.Level = q.FloatOr(KeyThresholdLevel, 128)
	cfg.Threshold.WindowSize = q.IntOr(KeyThresholdWindow, 64)
	cfg.Threshold.Overlap = q.IntOr(KeyThresholdOverlap, 16)

	cfg.Bandpass.Enabled = q.BoolOr(KeyBandpassEnabled, false)
	cfg.Bandpass.SmallSize = q.FloatOr(KeyBandpassSmall, 2)
	cfg.Bandpass.LargeSize = q.FloatOr(KeyBandpassLarge, 40)
	cfg.RenormalizeMax = q.FloatOr(KeyRenormalizeMaxValue, 255)

	cfg.Morphology.OpeningSize = q.IntOr(KeyOpeningSize, 3)
	cfg.FaceConnected = q.BoolOr(KeyFaceConnected, false)
	cfg.FillHoles = q.BoolOr(KeyFillHoles, true)
	cfg.Size.Min = q.IntOr(KeySizeMin, 10)
	cfg.Size.Max = q.IntOr(KeySizeMax, 0)

	cfg.Clustering.Enabled = q.BoolOr(KeyClusteringEnabled, false)
	cfg.Clustering.MaxIterations = q.IntOr(KeyClusteringMaxIter, 10)
	cfg.Clustering.Sigma = q.FloatOr(KeyClusteringSigma, 1)
	cfg.Background.Enabled = q.BoolOr(KeyBackgroundEnabled, true)

	cfg.Output.Dir = q.StringOr(KeyOutputDir, "output")
	cfg.Output.Format = strings.ToLower(q.StringOr(KeyOutputFormat, "csv"))
	cfg.Output.SaveIntermediate = q.BoolOr(KeySaveIntermediate, false)

	cfg.IO.MaxConnections = q.IntOr(KeyMaxConnections, 4)
	cfg.IO.Workers = q.IntOr(KeyWorkers, runtime.NumCPU())
	if cfg.IO.Workers < 1 {
		cfg.IO.Workers = 1
	}

	cfg.Log.Logfile = q.StringOr(KeyLogfile, "")
	cfg.Log.MaxSize = q.IntOr(KeyLogMaxSize, 100)
	cfg.Log.MaxAge = q.IntOr(KeyLogMaxAge, 30)
	cfg.Log.MaxBackups = q.IntOr(KeyLogMaxBackups, 0)
	return cfg
}

// LoadFile reads a YAML (.yaml, .yml) or TOML (.toml) file into a parameter
// set. Nested tables become dotted keys and lists become multi-value keys.
// A missing file yields an empty set.
func LoadFile(path string) (*ParameterSet, error) {
	p := NewParameterSet()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.Infof("Config file %s not found, using defaults", path)
		return p, nil
	}

	var tree map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &tree); err != nil {
			return nil, fmt.Errorf("could not decode TOML config: %w", err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	p.flatten("", tree)
	logging.Debugf("Loaded %d parameters from %s", p.Len(), path)
	return p, nil
}

// SaveFile writes p as a flat YAML mapping that LoadFile reads back.
func SaveFile(path string, p *ParameterSet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	out := make(map[string]interface{}, p.Len())
	for _, k := range p.keys {
		v := p.values[k]
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// WriteDefaultFile writes every default parameter to path.
func WriteDefaultFile(path string) error {
	p := NewParameterSet()
	ApplyDefaults(p)
	return SaveFile(path, p)
}
