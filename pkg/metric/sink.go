package metric

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

var csvHeader = []string{"feature", "image", "name", "type", "value"}

// WriteCSV writes one row per measurement. Global measurements have an
// empty feature column.
func WriteCSV(w io.Writer, q *Quantification) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, m := range q.all {
		feature := ""
		if m.HasFeature {
			feature = strconv.Itoa(m.FeatureID)
		}
		rec := []string{
			feature,
			strconv.Itoa(m.ImageID),
			m.Name,
			m.Type.String(),
			strconv.FormatFloat(m.Value, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses output written by WriteCSV.
func ReadCSV(r io.Reader) (*Quantification, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	q := NewQuantification()
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) != len(csvHeader) {
			return nil, fmt.Errorf("line %d: %d fields, want %d", i+1, len(rec), len(csvHeader))
		}
		var m Measurement
		if rec[0] != "" {
			if m.FeatureID, err = strconv.Atoi(rec[0]); err != nil {
				return nil, fmt.Errorf("line %d feature: %w", i+1, err)
			}
			m.HasFeature = true
		}
		if m.ImageID, err = strconv.Atoi(rec[1]); err != nil {
			return nil, fmt.Errorf("line %d image: %w", i+1, err)
		}
		m.Name = rec[2]
		if m.Type, err = ParseMeasurementType(rec[3]); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if m.Value, err = strconv.ParseFloat(rec[4], 64); err != nil {
			return nil, fmt.Errorf("line %d value: %w", i+1, err)
		}
		q.Add(m)
	}
	return q, nil
}

// MarshalYAML writes the type by name.
func (t MeasurementType) MarshalYAML() (interface{}, error) { return t.String(), nil }

// UnmarshalYAML reads a type name.
func (t *MeasurementType) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseMeasurementType(value.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// quantificationFile is the YAML layout of a saved quantification.
type quantificationFile struct {
	Source       string        `yaml:"source,omitempty"`
	Measurements []Measurement `yaml:"measurements"`
}

// SaveYAML writes q to path, tagged with the image it came from.
func SaveYAML(path, source string, q *Quantification) error {
	data, err := yaml.Marshal(quantificationFile{Source: source, Measurements: q.all})
	if err != nil {
		return fmt.Errorf("failed to marshal quantification: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write quantification file: %w", err)
	}
	return nil
}

// LoadYAML reads a file written by SaveYAML.
func LoadYAML(path string) (string, *Quantification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read quantification file: %w", err)
	}
	var f quantificationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("failed to parse quantification file: %w", err)
	}
	q := NewQuantification()
	q.AddAll(f.Measurements...)
	return f.Source, q, nil
}
