// Package manifest describes declarative import jobs: which source files to
// ingest and which seed day to resolve their time-only rows against.
package manifest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source is one glob pattern of tick dumps, optionally pinned to a seed day.
type Source struct {
	Pattern   string `yaml:"pattern"`
	StartDate string `yaml:"start_date,omitempty"`
}

// Manifest lists every source an import run should ingest.
type Manifest struct {
	Sources []Source `yaml:"sources"`
}

// LoadManifest reads and validates a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate rejects manifests with empty patterns or malformed start dates.
func (m *Manifest) Validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("no sources defined")
	}
	for i, src := range m.Sources {
		if strings.TrimSpace(src.Pattern) == "" {
			return fmt.Errorf("source %d: pattern is required", i)
		}
		if src.StartDate != "" {
			if _, err := time.Parse("2006-01-02", src.StartDate); err != nil {
				return fmt.Errorf("source %d: start_date %q: %w", i, src.StartDate, err)
			}
		}
	}
	return nil
}

// StartDay returns the explicit seed day of a source, or the zero time when
// none was configured.
func (s Source) StartDay() time.Time {
	if s.StartDate == "" {
		return time.Time{}
	}
	day, err := time.Parse("2006-01-02", s.StartDate)
	if err != nil {
		return time.Time{}
	}
	return day.UTC()
}
