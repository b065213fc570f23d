package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"stageq/internal/runner"
)

var ErrUnknownPreset = errors.New("unknown preset")

// presets reproduce the stock scenarios run against the payment service.
var presets = map[string]func() []runner.StageSpec{
	// concurrent writes and reads started together
	"read-write": func() []runner.StageSpec {
		return []runner.StageSpec{
			{
				Name: "save", Operation: runner.OpWrite,
				Workers: 75, Iterations: 20, MaxDuration: 5 * time.Second,
				Timeout: 5 * time.Second, AcceptedStatus: []int{200, 201, 500},
			},
			{
				Name: "read", Operation: runner.OpRead,
				Workers: 25, Iterations: 100, MaxDuration: 5 * time.Second,
				Timeout: 3 * time.Second, AcceptedStatus: []int{200}, ReadLimit: 10,
			},
		}
	},
	"write": func() []runner.StageSpec {
		return []runner.StageSpec{{
			Name: "save", Operation: runner.OpWrite,
			Workers: 100, Iterations: 30, MaxDuration: 10 * time.Second,
			Timeout: 2 * time.Second, AcceptedStatus: []int{200, 201},
		}}
	},
	// 3000 reads in 10s with a tight per-call budget
	"read": func() []runner.StageSpec {
		return []runner.StageSpec{{
			Name: "read", Operation: runner.OpRead,
			Workers: 30, Iterations: 100, MaxDuration: 10 * time.Second,
			Timeout: 100 * time.Millisecond, AcceptedStatus: []int{200}, ReadLimit: 10,
		}}
	},
	// the mixed load, then a full-table read once writes have settled
	"full": func() []runner.StageSpec {
		return []runner.StageSpec{
			{
				Name: "save", Operation: runner.OpWrite,
				Workers: 75, Iterations: 20, MaxDuration: 5 * time.Second,
				Timeout: 5 * time.Second, AcceptedStatus: []int{200, 201, 500},
				Group: "mixed",
			},
			{
				Name: "read", Operation: runner.OpRead,
				Workers: 25, Iterations: 100, MaxDuration: 5 * time.Second,
				Timeout: 3 * time.Second, AcceptedStatus: []int{200}, ReadLimit: 10,
				Group: "mixed",
			},
			{
				Name: "read-all", Operation: runner.OpRead,
				Workers: 10, Iterations: 20, MaxDuration: 5 * time.Second, StartOffset: 6 * time.Second,
				Timeout: 5 * time.Second, AcceptedStatus: []int{200}, ReadAll: true,
			},
		}
	},
	// writes first, reads strictly after
	"sequential": func() []runner.StageSpec {
		return []runner.StageSpec{
			{
				Name: "save", Operation: runner.OpWrite,
				Workers: 50, Iterations: 20, MaxDuration: 5 * time.Second,
				Timeout: 5 * time.Second,
			},
			{
				Name: "read", Operation: runner.OpRead,
				Workers: 50, Iterations: 20, MaxDuration: 5 * time.Second, StartOffset: 5 * time.Second,
				Timeout: 3 * time.Second,
			},
		}
	},
}

// Preset returns a fresh copy of the named plan.
func Preset(name string) ([]runner.StageSpec, error) {
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownPreset, name, PresetNames())
	}
	return p(), nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
