package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stageq/internal/runner"
)

// FileConfig is the layout of a plan file.
type FileConfig struct {
	BaseURL    string       `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout    string       `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	RunTimeout string       `yaml:"run_timeout,omitempty" json:"run_timeout,omitempty"`
	ReadLimit  int          `yaml:"read_limit,omitempty" json:"read_limit,omitempty"`
	Accept     AcceptConfig `yaml:"accept,omitempty" json:"accept,omitempty"`

	Stages []StageConfig `yaml:"stages" json:"stages"`
}

// AcceptConfig holds the per-operation status whitelists.
type AcceptConfig struct {
	Read  []int `yaml:"read,omitempty" json:"read,omitempty"`
	Write []int `yaml:"write,omitempty" json:"write,omitempty"`
}

type StageConfig struct {
	Name        string `yaml:"name" json:"name"`
	Operation   string `yaml:"operation" json:"operation"`
	Workers     int    `yaml:"workers" json:"workers"`
	Iterations  int    `yaml:"iterations" json:"iterations"`
	MaxDuration string `yaml:"max_duration" json:"max_duration"`
	StartOffset string `yaml:"start_offset,omitempty" json:"start_offset,omitempty"`

	Timeout   string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Accept    []int  `yaml:"accept,omitempty" json:"accept,omitempty"`
	ReadLimit int    `yaml:"read_limit,omitempty" json:"read_limit,omitempty"`
	ReadAll   bool   `yaml:"read_all,omitempty" json:"read_all,omitempty"`
	Group     string `yaml:"group,omitempty" json:"group,omitempty"`
}

// LoadFile reads a plan from a .yaml, .yml or .json file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported plan format: %s", ext)
	}

	return &config, nil
}

// ToRunnerConfig applies the file on top of base. Durations use
// time.ParseDuration syntax ("5s", "250ms").
func (f *FileConfig) ToRunnerConfig(base runner.Config) (runner.Config, error) {
	cfg := base

	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if f.RunTimeout != "" {
		d, err := time.ParseDuration(f.RunTimeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid run_timeout: %w", err)
		}
		cfg.RunTimeout = d
	}
	if f.ReadLimit > 0 {
		cfg.ReadLimit = f.ReadLimit
	}
	if len(f.Accept.Read) > 0 {
		cfg.AcceptRead = f.Accept.Read
	}
	if len(f.Accept.Write) > 0 {
		cfg.AcceptWrite = f.Accept.Write
	}

	specs, err := f.StageSpecs()
	if err != nil {
		return cfg, err
	}
	cfg.Stages = specs
	return cfg, nil
}

// StageSpecs converts the stage list and validates it as a whole.
func (f *FileConfig) StageSpecs() ([]runner.StageSpec, error) {
	specs := make([]runner.StageSpec, 0, len(f.Stages))
	for i, sc := range f.Stages {
		spec, err := sc.toSpec()
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		specs = append(specs, spec)
	}
	if err := runner.ValidateStages(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func (sc StageConfig) toSpec() (runner.StageSpec, error) {
	op, err := runner.ParseOperation(strings.ToLower(sc.Operation))
	if err != nil {
		return runner.StageSpec{}, fmt.Errorf("%w %q: %v", runner.ErrInvalidStage, sc.Name, err)
	}

	spec := runner.StageSpec{
		Name:           sc.Name,
		Operation:      op,
		Workers:        sc.Workers,
		Iterations:     sc.Iterations,
		AcceptedStatus: sc.Accept,
		ReadLimit:      sc.ReadLimit,
		ReadAll:        sc.ReadAll,
		Group:          sc.Group,
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"max_duration", sc.MaxDuration, &spec.MaxDuration},
		{"start_offset", sc.StartOffset, &spec.StartOffset},
		{"timeout", sc.Timeout, &spec.Timeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return spec, fmt.Errorf("invalid %s: %w", d.field, err)
		}
		*d.dst = v
	}
	return spec, nil
}

// Validate checks the file without resolving it against a base config.
func (f *FileConfig) Validate() error {
	if f.ReadLimit < 0 {
		return fmt.Errorf("read_limit must be non-negative")
	}
	for _, code := range slices.Concat(f.Accept.Read, f.Accept.Write) {
		if code < 100 || code > 599 {
			return fmt.Errorf("accepted status %d out of range", code)
		}
	}
	_, err := f.StageSpecs()
	return err
}

// FromSpecs is the inverse of StageSpecs, used to print presets.
func FromSpecs(specs []runner.StageSpec) *FileConfig {
	f := &FileConfig{}
	for _, s := range specs {
		sc := StageConfig{
			Name:        s.Name,
			Operation:   string(s.Operation),
			Workers:     s.Workers,
			Iterations:  s.Iterations,
			MaxDuration: s.MaxDuration.String(),
			Accept:      s.AcceptedStatus,
			ReadLimit:   s.ReadLimit,
			ReadAll:     s.ReadAll,
			Group:       s.Group,
		}
		if s.StartOffset > 0 {
			sc.StartOffset = s.StartOffset.String()
		}
		if s.Timeout > 0 {
			sc.Timeout = s.Timeout.String()
		}
		f.Stages = append(f.Stages, sc)
	}
	return f
}
