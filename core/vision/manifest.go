package vision

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Manifest describes a model artifact: its identity, the class labels its
// outputs index into, and the engine versions it is compatible with.
type Manifest struct {
	Name    string   `yaml:"name"`
	Version string   `yaml:"version"`
	Engine  string   `yaml:"engine"` // semver constraint, e.g. ">= 1.0.0 < 2.0.0"
	Classes []string `yaml:"classes"`
}

// LoadManifest reads and validates a model manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if m.Name == "" {
		return nil, fmt.Errorf("manifest missing name")
	}
	if len(m.Classes) == 0 {
		return nil, fmt.Errorf("manifest %q lists no classes", m.Name)
	}
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return nil, fmt.Errorf("manifest %q has invalid version %q: %w", m.Name, m.Version, err)
		}
	}

	return &m, nil
}

// CheckEngine verifies the manifest's engine constraint against the running
// adapter version. An empty constraint accepts any engine.
func (m *Manifest) CheckEngine(engineVersion string) error {
	if m.Engine == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(m.Engine)
	if err != nil {
		return fmt.Errorf("manifest %q has invalid engine constraint %q: %w", m.Name, m.Engine, err)
	}

	v, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("invalid engine version %q: %w", engineVersion, err)
	}

	if !constraint.Check(v) {
		return fmt.Errorf("model %q requires engine %q, running %s", m.Name, m.Engine, engineVersion)
	}
	return nil
}
