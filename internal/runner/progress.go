package runner

import (
	"context"
	"time"
)

// StageProgress is the live view of one stage.
type StageProgress struct {
	Name        string
	Operation   Operation
	State       StageState
	Target      int
	Sent        uint64
	Completed   uint64
	Failed      uint64
	Elapsed     time.Duration
	MaxDuration time.Duration
	Timing      StageTiming
}

// Fraction is the share of the target volume already sent, 1 once finished.
func (p StageProgress) Fraction() float64 {
	if p.State == StateFinished {
		return 1
	}
	if p.Target == 0 {
		return 0
	}
	return min(float64(p.Sent)/float64(p.Target), 1)
}

// Progress is pushed to monitors while a run is in flight.
type Progress struct {
	RunID   string
	Elapsed time.Duration
	Stages  []StageProgress
}

// Done reports whether every stage has finished.
func (p Progress) Done() bool {
	for _, s := range p.Stages {
		if s.State != StateFinished {
			return false
		}
	}
	return len(p.Stages) > 0
}

// Totals sums the counters of all stages.
func (p Progress) Totals() (sent, completed, failed uint64) {
	for _, s := range p.Stages {
		sent += s.Sent
		completed += s.Completed
		failed += s.Failed
	}
	return
}

type ProgressChan chan Progress

// Progress takes a snapshot of the run. It is safe to call at any time.
func (s *Scheduler) Progress() Progress {
	now := s.clock.Now()
	p := Progress{RunID: s.runID}
	if start := s.StartedAt(); !start.IsZero() {
		p.Elapsed = now.Sub(start)
	}

	for _, st := range s.Status() {
		sp := StageProgress{
			Name:        st.Spec.Name,
			Operation:   st.Spec.Operation,
			State:       st.State,
			Target:      st.Spec.Target(),
			MaxDuration: st.Spec.MaxDuration,
			Timing:      st.Timing,
		}
		switch st.State {
		case StateRunning:
			sp.Elapsed = now.Sub(st.Started)
		case StateFinished:
			sp.Elapsed = st.Timing.Observed
		}
		if c, ok := s.agg.Stage(sp.Name); ok {
			sp.Sent, sp.Completed, sp.Failed = c.Sent(), c.Completed(), c.Failed()
		}
		p.Stages = append(p.Stages, sp)
	}
	return p
}

// StartTickLoop pushes a Progress snapshot every interval until ctx ends.
func (s *Scheduler) StartTickLoop(ctx context.Context, interval time.Duration, updates ProgressChan) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Non-blocking send, a slow monitor just misses frames
				select {
				case updates <- s.Progress():
				default:
				}
			}
		}
	}()
}
