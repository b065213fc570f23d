package runner

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	stage := StageSpec{Name: "read", Operation: OpRead, Workers: 1, Iterations: 1, MaxDuration: time.Second}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"defaults", func(c *Config) {}, nil},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidConfig},
		{"negative run timeout", func(c *Config) { c.RunTimeout = -time.Second }, ErrInvalidConfig},
		{"empty read whitelist", func(c *Config) { c.AcceptRead = nil }, ErrInvalidConfig},
		{"empty write whitelist", func(c *Config) { c.AcceptWrite = []int{} }, ErrInvalidConfig},
		{"status out of range", func(c *Config) { c.AcceptWrite = []int{201, 700} }, ErrInvalidConfig},
		{"no stages", func(c *Config) { c.Stages = nil }, ErrNoStages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Stages = []StageSpec{stage}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
