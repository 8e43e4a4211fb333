package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile overrides pipeline defaults. Stage names are checked against the
// registry when the profile is applied.
type Profile struct {
	DefaultOrder []string            `yaml:"default_order"`
	Languages    map[string][]string `yaml:"languages"`
}

// LoadProfile reads a pipeline profile from a YAML file
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline profile %s: %w", path, err)
	}

	for i, s := range p.DefaultOrder {
		p.DefaultOrder[i] = strings.TrimSpace(s)
		if p.DefaultOrder[i] == "" {
			return nil, fmt.Errorf("pipeline profile %s: blank stage name in default_order", path)
		}
	}
	for stage, langs := range p.Languages {
		if len(langs) == 0 {
			return nil, fmt.Errorf("pipeline profile %s: empty language set for %s", path, stage)
		}
	}

	return &p, nil
}
