package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"microquant/pkg/logging"
)

// ErrMissingKey is returned by the typed accessors when a key has no value.
var ErrMissingKey = errors.New("missing configuration key")

// ParameterSet is a flat dictionary from string keys to one or more string
// values. Keys keep their first insertion order.
type ParameterSet struct {
	values map[string][]string
	keys   []string
}

// NewParameterSet returns an empty set.
func NewParameterSet() *ParameterSet {
	return &ParameterSet{values: make(map[string][]string)}
}

// Add appends a value to key.
func (p *ParameterSet) Add(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = append(p.values[key], value)
}

// Set replaces every value of key.
func (p *ParameterSet) Set(key string, values ...string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = append([]string(nil), values...)
}

// SetIfAbsent sets key only when it has no value yet.
func (p *ParameterSet) SetIfAbsent(key string, values ...string) {
	if p.Has(key) {
		return
	}
	p.Set(key, values...)
}

// Has reports whether key has at least one value.
func (p *ParameterSet) Has(key string) bool { return len(p.values[key]) > 0 }

// Keys returns every key in insertion order.
func (p *ParameterSet) Keys() []string { return append([]string(nil), p.keys...) }

// Len returns the number of keys.
func (p *ParameterSet) Len() int { return len(p.keys) }

// Merge copies every key of o into p, overwriting existing values.
func (p *ParameterSet) Merge(o *ParameterSet) {
	for _, k := range o.keys {
		p.Set(k, o.values[k]...)
	}
}

// Values returns a copy of every value of key.
func (p *ParameterSet) Values(key string) []string {
	return append([]string(nil), p.values[key]...)
}

// String returns the last value of key.
func (p *ParameterSet) String(key string) (string, error) {
	v := p.values[key]
	if len(v) == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return v[len(v)-1], nil
}

func (p *ParameterSet) Int(key string) (int, error) {
	s, err := p.String(key)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", key, err)
	}
	return i, nil
}

func (p *ParameterSet) Float(key string) (float64, error) {
	s, err := p.String(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", key, err)
	}
	return f, nil
}

func (p *ParameterSet) Bool(key string) (bool, error) {
	s, err := p.String(key)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("parameter %s: %w", key, err)
	}
	return b, nil
}

// IntOr returns key as an int, or def when the key is missing or malformed.
// Malformed values are logged.
func (p *ParameterSet) IntOr(key string, def int) int {
	v, err := p.Int(key)
	if err != nil {
		warnFallback(key, err)
		return def
	}
	return v
}

func (p *ParameterSet) FloatOr(key string, def float64) float64 {
	v, err := p.Float(key)
	if err != nil {
		warnFallback(key, err)
		return def
	}
	return v
}

func (p *ParameterSet) BoolOr(key string, def bool) bool {
	v, err := p.Bool(key)
	if err != nil {
		warnFallback(key, err)
		return def
	}
	return v
}

func (p *ParameterSet) StringOr(key, def string) string {
	v, err := p.String(key)
	if err != nil {
		return def
	}
	return v
}

func warnFallback(key string, err error) {
	if !errors.Is(err, ErrMissingKey) {
		logging.Warningf("Ignoring parameter %s: %v", key, err)
	}
}

// ParseEntry splits "key=value". Whitespace around the key is trimmed.
func ParseEntry(entry string) (key, value string, err error) {
	key, value, ok := strings.Cut(entry, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("malformed parameter %q, want key=value", entry)
	}
	return key, value, nil
}

// ParseEntries adds every well-formed "key=value" entry to a new set.
// Malformed entries are logged and skipped.
func ParseEntries(entries []string) *ParameterSet {
	p := NewParameterSet()
	for _, e := range entries {
		k, v, err := ParseEntry(e)
		if err != nil {
			logging.Errorf("%v", err)
			continue
		}
		p.Add(k, v)
	}
	return p
}

// flatten adds v under prefix, joining nested table keys with dots. Lists
// become repeated values of one key.
func (p *ParameterSet) flatten(prefix string, v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.flatten(joinKey(prefix, k), t[k])
		}
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = e
		}
		p.flatten(prefix, m)
	case []map[string]interface{}:
		for i, e := range t {
			p.flatten(joinKey(prefix, strconv.Itoa(i)), e)
		}
	case []interface{}:
		for _, e := range t {
			p.Add(prefix, scalarString(e))
		}
	case nil:
	default:
		p.Add(prefix, scalarString(t))
	}
}

func joinKey(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
