package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"stageq/internal/runner"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "plan.yaml", `
base_url: http://payments:9000
timeout: 2s
run_timeout: 30s
read_limit: 25
accept:
  write: [201]
stages:
  - name: save
    operation: write
    workers: 75
    iterations: 20
    max_duration: 5s
    timeout: 5s
    accept: [200, 201, 500]
  - name: read
    operation: READ
    workers: 25
    iterations: 100
    max_duration: 5s
    start_offset: 1s
    read_all: true
    group: mixed
`)

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load plan: %v", err)
	}
	if err := fc.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	cfg, err := fc.ToRunnerConfig(runner.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to convert plan: %v", err)
	}
	if cfg.BaseURL != "http://payments:9000" || cfg.Timeout != 2*time.Second || cfg.RunTimeout != 30*time.Second {
		t.Errorf("run settings not applied: %+v", cfg)
	}
	if cfg.ReadLimit != 25 || len(cfg.AcceptWrite) != 1 || cfg.AcceptWrite[0] != 201 {
		t.Errorf("defaults not overridden: %+v", cfg)
	}
	// untouched fields keep the base values
	if len(cfg.AcceptRead) != 1 || cfg.AcceptRead[0] != 200 {
		t.Errorf("expected default read whitelist, got %v", cfg.AcceptRead)
	}

	if len(cfg.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(cfg.Stages))
	}
	save, read := cfg.Stages[0], cfg.Stages[1]
	if save.Operation != runner.OpWrite || save.Target() != 1500 || save.Timeout != 5*time.Second {
		t.Errorf("unexpected save stage %+v", save)
	}
	if read.Operation != runner.OpRead || read.StartOffset != time.Second || !read.ReadAll || read.Group != "mixed" {
		t.Errorf("unexpected read stage %+v", read)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "plan.json", `{
  "timeout": "500ms",
  "stages": [
    {"name": "read", "operation": "read", "workers": 2, "iterations": 3, "max_duration": "1s"}
  ]
}`)

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load plan: %v", err)
	}
	cfg, err := fc.ToRunnerConfig(runner.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout != 500*time.Millisecond || cfg.Stages[0].Target() != 6 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.BaseURL != runner.DefaultConfig().BaseURL {
		t.Errorf("expected default base url, got %q", cfg.BaseURL)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeFile(t, "plan.toml", "x = 1")); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := LoadFile(writeFile(t, "plan.yaml", "stages: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
	if _, err := LoadFile(writeFile(t, "plan.json", "{")); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	valid := StageConfig{Name: "a", Operation: "read", Workers: 1, Iterations: 1, MaxDuration: "1s"}

	tests := []struct {
		name string
		fc   FileConfig
		want error
	}{
		{"no stages", FileConfig{}, runner.ErrNoStages},
		{"bad operation", FileConfig{Stages: []StageConfig{{Name: "a", Operation: "delete", Workers: 1, Iterations: 1, MaxDuration: "1s"}}}, runner.ErrInvalidStage},
		{"zero workers", FileConfig{Stages: []StageConfig{{Name: "a", Operation: "read", Iterations: 1, MaxDuration: "1s"}}}, runner.ErrInvalidStage},
		{"missing duration", FileConfig{Stages: []StageConfig{{Name: "a", Operation: "read", Workers: 1, Iterations: 1}}}, runner.ErrInvalidStage},
		{"duplicate", FileConfig{Stages: []StageConfig{valid, valid}}, runner.ErrDuplicateStage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fc.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	bad := FileConfig{Stages: []StageConfig{valid}, Accept: AcceptConfig{Read: []int{42}}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for out-of-range status")
	}

	unparsable := FileConfig{Stages: []StageConfig{{Name: "a", Operation: "read", Workers: 1, Iterations: 1, MaxDuration: "soon"}}}
	if err := unparsable.Validate(); err == nil || !strings.Contains(err.Error(), "max_duration") {
		t.Errorf("expected max_duration parse error, got %v", err)
	}
}

func TestPresets(t *testing.T) {
	names := PresetNames()
	if len(names) < 4 {
		t.Fatalf("expected at least 4 presets, got %v", names)
	}
	for _, name := range names {
		specs, err := Preset(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := runner.ValidateStages(specs); err != nil {
			t.Errorf("%s: invalid preset: %v", name, err)
		}
	}

	rw, _ := Preset("read-write")
	if rw[0].Target() != 1500 || rw[1].Target() != 2500 {
		t.Errorf("unexpected read-write volumes %d/%d", rw[0].Target(), rw[1].Target())
	}
	if rw[0].StartOffset != 0 || rw[1].StartOffset != 0 {
		t.Error("read-write stages must start together")
	}

	// each call returns an independent copy
	rw[0].Workers = 1
	again, _ := Preset("read-write")
	if again[0].Workers != 75 {
		t.Error("preset mutated through a returned copy")
	}

	if _, err := Preset("nope"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestFromSpecsRoundTrip(t *testing.T) {
	specs, _ := Preset("full")
	out, err := yaml.Marshal(FromSpecs(specs))
	if err != nil {
		t.Fatal(err)
	}

	path := writeFile(t, "full.yaml", string(out))
	fc, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	back, err := fc.StageSpecs()
	if err != nil {
		t.Fatalf("printed preset does not load back: %v\n%s", err, out)
	}
	if len(back) != len(specs) {
		t.Fatalf("expected %d stages, got %d", len(specs), len(back))
	}
	for i := range specs {
		if back[i].Name != specs[i].Name || back[i].StartOffset != specs[i].StartOffset ||
			back[i].Timeout != specs[i].Timeout || back[i].ReadAll != specs[i].ReadAll || back[i].Group != specs[i].Group {
			t.Errorf("stage %d differs: %+v vs %+v", i, back[i], specs[i])
		}
	}
}
