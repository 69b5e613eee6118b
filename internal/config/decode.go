package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// decodeFile decodes a config body into cfg. YAML (by extension) is turned
// into JSON first so both formats share the strict decoder: unknown keys and
// trailing documents are errors.
func decodeFile(path string, data []byte, cfg *Config) error {
	format := "json"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		format = "yaml"
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("yaml config: %w", err)
		}
		if v == nil {
			return nil
		}
		j, err := json.Marshal(stringKeys(v))
		if err != nil {
			return fmt.Errorf("yaml config: %w", err)
		}
		data = j
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%s config: %w", format, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("%s config: trailing data", format)
		}
		return fmt.Errorf("%s config: %w", format, err)
	}
	return nil
}

// stringKeys rewrites map[any]any nodes so the tree can be JSON-marshaled.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	}
	return in
}

// ParseDuration parses a Go duration for the config key path. Empty or zero
// yields def; negatives are rejected.
func ParseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
