package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Aggregator is the registry of per-stage CounterSets for one run.
// It is created empty at run start and passed to every stage explicitly.
type Aggregator struct {
	mu     sync.RWMutex
	stages map[string]*CounterSet
	order  []string

	prom *promMetrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPrometheus mirrors every recorded value into collectors registered on reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(a *Aggregator) {
		a.prom = newPromMetrics(reg)
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		stages: make(map[string]*CounterSet),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register returns the CounterSet for name, creating it on first use.
func (a *Aggregator) Register(name string) *CounterSet {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.stages[name]; ok {
		return c
	}
	var p *promStage
	if a.prom != nil {
		p = a.prom.forStage(name)
	}
	c := newCounterSet(name, p)
	a.stages[name] = c
	a.order = append(a.order, name)
	return c
}

// Stage looks up a registered CounterSet.
func (a *Aggregator) Stage(name string) (*CounterSet, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.stages[name]
	return c, ok
}

// Snapshot copies every CounterSet in registration order.
func (a *Aggregator) Snapshot() []Snapshot {
	a.mu.RLock()
	sets := make([]*CounterSet, 0, len(a.order))
	for _, name := range a.order {
		sets = append(sets, a.stages[name])
	}
	a.mu.RUnlock()

	out := make([]Snapshot, 0, len(sets))
	for _, c := range sets {
		out = append(out, c.Snapshot())
	}
	return out
}

// Totals sums sent, completed and failed over all stages.
func (a *Aggregator) Totals() (sent, completed, failed uint64) {
	for _, s := range a.Snapshot() {
		sent += s.Sent
		completed += s.Completed
		failed += s.Failed
	}
	return sent, completed, failed
}
