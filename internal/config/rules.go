package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRulesProfile reads a named rules preset from a YAML file, letting
// users keep several writing-style profiles and switch between them.
func LoadRulesProfile(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules profile %s: %w", path, err)
	}

	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parsing rules profile %s: %w", path, err)
	}

	return r, nil
}
