package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CounterSet holds the counters and duration samples of one stage.
// Every method is safe for concurrent use.
type CounterSet struct {
	name string

	sent      atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64

	// Exact sum of all samples; the histogram only keeps 3 significant figures.
	totalNanos atomic.Int64
	durations  *SafeHistogram

	mu       sync.Mutex
	failures map[string]uint64

	prom *promStage
}

func newCounterSet(name string, prom *promStage) *CounterSet {
	return &CounterSet{
		name:      name,
		durations: NewSafeHistogram(),
		failures:  make(map[string]uint64),
		prom:      prom,
	}
}

// Name returns the stage name the set was registered under.
func (c *CounterSet) Name() string {
	return c.name
}

func (c *CounterSet) RecordSent() {
	c.sent.Add(1)
	if c.prom != nil {
		c.prom.sent.Inc()
	}
}

func (c *CounterSet) RecordCompleted() {
	c.completed.Add(1)
	if c.prom != nil {
		c.prom.completed.Inc()
	}
}

// RecordFailed counts a failure; reason groups it in the failure summary.
func (c *CounterSet) RecordFailed(reason string) {
	c.failed.Add(1)
	if reason == "" {
		reason = "unknown"
	}
	c.mu.Lock()
	c.failures[reason]++
	c.mu.Unlock()
	if c.prom != nil {
		c.prom.failed.Inc()
	}
}

func (c *CounterSet) RecordDuration(d time.Duration) {
	c.totalNanos.Add(int64(d))
	c.durations.RecordDuration(d)
	if c.prom != nil {
		c.prom.duration.Observe(d.Seconds())
	}
}

// Record stores one finished call: sent first, then its classification,
// then the duration sample.
func (c *CounterSet) Record(completed bool, elapsed time.Duration, reason string) {
	c.RecordSent()
	if completed {
		c.RecordCompleted()
	} else {
		c.RecordFailed(reason)
	}
	c.RecordDuration(elapsed)
}

func (c *CounterSet) Sent() uint64 {
	return c.sent.Load()
}

func (c *CounterSet) Completed() uint64 {
	return c.completed.Load()
}

func (c *CounterSet) Failed() uint64 {
	return c.failed.Load()
}

// AvgDuration is the exact mean over every recorded sample.
func (c *CounterSet) AvgDuration() time.Duration {
	n := c.durations.TotalCount()
	if n == 0 {
		return 0
	}
	return time.Duration(c.totalNanos.Load() / n)
}

func (c *CounterSet) MaxDuration() time.Duration {
	if c.durations.TotalCount() == 0 {
		return 0
	}
	return time.Duration(c.durations.Max()) * time.Microsecond
}

// FailureCounts returns a copy of the per-reason failure counts.
func (c *CounterSet) FailureCounts() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.failures))
	for k, v := range c.failures {
		out[k] = v
	}
	return out
}

// Snapshot is a point-in-time copy of a CounterSet.
type Snapshot struct {
	Stage       string
	Sent        uint64
	Completed   uint64
	Failed      uint64
	Samples     int64
	AvgDuration time.Duration
	MaxDuration time.Duration
	Failures    []FailureCount
}

// FailureCount is one line of the failure summary.
type FailureCount struct {
	Reason string
	Count  uint64
}

func (c *CounterSet) Snapshot() Snapshot {
	s := Snapshot{
		Stage:       c.name,
		Sent:        c.Sent(),
		Completed:   c.Completed(),
		Failed:      c.Failed(),
		Samples:     c.durations.TotalCount(),
		AvgDuration: c.AvgDuration(),
		MaxDuration: c.MaxDuration(),
	}
	for reason, n := range c.FailureCounts() {
		s.Failures = append(s.Failures, FailureCount{Reason: reason, Count: n})
	}
	// most frequent first, ties by name so the output is stable
	sort.Slice(s.Failures, func(i, j int) bool {
		if s.Failures[i].Count != s.Failures[j].Count {
			return s.Failures[i].Count > s.Failures[j].Count
		}
		return s.Failures[i].Reason < s.Failures[j].Reason
	})
	return s
}

// SuccessRate returns completed/sent as a percentage.
func (s Snapshot) SuccessRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Sent) * 100
}
