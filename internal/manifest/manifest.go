// Package manifest loads the declarative components document that describes
// what to build and how to deploy it.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// Document is the on-disk shape of the orchestration manifest.
type Document struct {
	Components []models.BuildConfig `yaml:"components"`
}

// Load reads and parses a manifest file into the component list.
func Load(path string) ([]models.BuildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes manifest bytes into the component list.
func Parse(data []byte) ([]models.BuildConfig, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return doc.Components, nil
}
