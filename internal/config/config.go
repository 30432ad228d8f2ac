// Package config loads run settings from an optional sprocscan.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in the code root.
const FileName = "sprocscan.yaml"

// AnyType keys the initializer property applied to every constructed type.
const AnyType = "*"

// Settings controls one run. Zero values are filled from Default.
type Settings struct {
	ArgMap      string   `yaml:"argmap"`
	Output      string   `yaml:"output"`
	Format      string   `yaml:"format"`
	SQLite      string   `yaml:"sqlite"`
	MetricsFile string   `yaml:"metrics_file"`
	Workers     int      `yaml:"workers"`
	MaxFileSize int64    `yaml:"max_file_size"`
	MaxHops     int      `yaml:"max_hops"`
	ExcludeDirs []string `yaml:"exclude_dirs"`
	Extensions  []string `yaml:"extensions"`
	CacheTrees  bool     `yaml:"cache_trees"`

	// InitializerProperties maps a constructed type to the property whose
	// object-initializer assignment carries command text.
	InitializerProperties map[string]string `yaml:"initializer_properties"`
	SkipReceivers         []string          `yaml:"skip_receivers"`
	StripPrefixes         []string          `yaml:"strip_prefixes"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Output:                "storedprocs.csv",
		Format:                "csv",
		MaxFileSize:           4 << 20,
		MaxHops:               1,
		ExcludeDirs:           []string{"obj", "bin"},
		Extensions:            []string{".cs", ".java"},
		CacheTrees:            true,
		InitializerProperties: map[string]string{AnyType: "CommandText"},
		SkipReceivers:         []string{"CommandType"},
		StripPrefixes:         []string{"dbo."},
	}
}

// Load reads settings from path over the defaults.
func Load(path string) (*Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadDir loads root/sprocscan.yaml when present and the defaults otherwise.
func LoadDir(root string) (*Settings, error) {
	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects settings the run cannot honor.
func (s *Settings) Validate() error {
	switch s.Format {
	case "csv", "toon":
	default:
		return fmt.Errorf("unknown format %q (want csv or toon)", s.Format)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", s.Workers)
	}
	if s.MaxHops < 1 {
		return fmt.Errorf("max_hops must be at least 1, got %d", s.MaxHops)
	}
	if s.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative, got %d", s.MaxFileSize)
	}
	return nil
}
