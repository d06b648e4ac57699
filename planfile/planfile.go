// Package planfile loads calculation plans from YAML and employee batch
// rows from JSON. It is a convenience layer for the CLI and for hosts
// that keep plan definitions in files; the engine itself only ever sees
// in-memory structures.
package planfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"payplan/plan"
)

// Load reads and decodes a plan definition file.
func Load(path string) (*plan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	return Decode(data)
}

// Decode unmarshals a YAML plan definition.
func Decode(data []byte) (*plan.Plan, error) {
	var p plan.Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshalling plan: %w", err)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("plan %q has no steps", p.Name)
	}
	return &p, nil
}
