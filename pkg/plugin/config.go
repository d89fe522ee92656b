package plugin

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NormalizeConfig resolves every value of the map to a plain scalar.
// Persisted and caller-supplied config may wrap values in schema
// descriptor maps ({type, default, value}); plugins must only ever see
// the resolved form, so this runs at every ingestion boundary.
func NormalizeConfig(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok || !isDescriptor(m) {
		return v
	}
	if value, ok := m["value"]; ok && value != nil {
		return normalizeValue(value)
	}
	return normalizeValue(m["default"])
}

// isDescriptor recognises the wrapped form: a map that carries a type
// or default key alongside an optional value key, and nothing else.
func isDescriptor(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	seenMarker := false
	for k := range m {
		switch k {
		case "type", "default", "value":
			if k != "value" {
				seenMarker = true
			}
		default:
			return false
		}
	}
	return seenMarker
}

// ApplyDefaults fills unset schema fields with their declared defaults
// and returns the completed, normalized config.
func ApplyDefaults(schema Schema, cfg map[string]any) map[string]any {
	out := NormalizeConfig(cfg)
	for _, field := range schema {
		if _, ok := out[field.Name]; ok {
			continue
		}
		if field.Default != nil {
			out[field.Name] = field.Default
		}
	}
	return out
}

// CheckRequired reports the first required schema field missing from
// the config.
func CheckRequired(schema Schema, cfg map[string]any) error {
	for _, field := range schema {
		if !field.Required {
			continue
		}
		v, ok := cfg[field.Name]
		if !ok || v == nil || v == "" {
			return fmt.Errorf("required field %q is not set", field.Name)
		}
	}
	return nil
}

// SeedConfig declares plugin instances to register on first boot.
type SeedConfig struct {
	Instances []SeedInstance `yaml:"instances"`
}

// SeedInstance is one declarative instance entry.
type SeedInstance struct {
	ID      string         `yaml:"id"`
	Type    string         `yaml:"type"`
	Name    string         `yaml:"name"`
	Enabled *bool          `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

// LoadSeedConfig reads a YAML file into a SeedConfig.
func LoadSeedConfig(path string) (SeedConfig, error) {
	var cfg SeedConfig
	if path == "" {
		return cfg, errors.New("seed config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read seed config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal seed config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate ensures the seed declarations are internally consistent.
func (c SeedConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Instances))
	for i, inst := range c.Instances {
		if inst.ID == "" {
			return fmt.Errorf("instance %d: id cannot be empty", i)
		}
		if inst.Type == "" {
			return fmt.Errorf("instance %s: type cannot be empty", inst.ID)
		}
		if _, dup := seen[inst.ID]; dup {
			return fmt.Errorf("instance %s declared twice", inst.ID)
		}
		seen[inst.ID] = struct{}{}
	}
	return nil
}
