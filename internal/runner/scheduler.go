package runner

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stageq/internal/stats"
)

var ErrAlreadyRunning = errors.New("scheduler already started")

// StageState is the lifecycle position of a stage within a run.
type StageState int

const (
	StatePending StageState = iota
	StateRunning
	StateFinished
)

func (s StageState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// StageStatus is a monitor's view of one stage.
type StageStatus struct {
	Spec    StageSpec
	State   StageState
	Started time.Time
	Timing  StageTiming
}

// Scheduler starts stages at their offsets and waits for all of them.
type Scheduler struct {
	cfg   Config
	agg   *stats.Aggregator
	inv   Invoker
	clock Clock
	log   zerolog.Logger
	runID string

	mu      sync.Mutex
	started bool
	runAt   time.Time
	status  map[string]*StageStatus
	order   []string
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithRunID(id string) Option {
	return func(s *Scheduler) { s.runID = id }
}

func NewScheduler(cfg Config, agg *stats.Aggregator, inv Invoker, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		agg:    agg,
		inv:    inv,
		clock:  SystemClock{},
		log:    zerolog.Nop(),
		runID:  uuid.New().String(),
		status: make(map[string]*StageStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) RunID() string {
	return s.runID
}

func (s *Scheduler) Config() Config {
	return s.cfg
}

// Run executes specs and returns once every stage has finished, the run
// timeout has elapsed, or ctx is cancelled. Call failures never surface as
// errors here; only an unusable plan does.
func (s *Scheduler) Run(ctx context.Context, specs []StageSpec) (*Result, error) {
	if err := ValidateStages(specs); err != nil {
		return nil, err
	}
	specs = cloneSpecs(specs)

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.started = true
	s.runAt = s.clock.Now()
	for _, spec := range specs {
		s.agg.Register(spec.Name)
		s.status[spec.Name] = &StageStatus{Spec: spec, State: StatePending}
		s.order = append(s.order, spec.Name)
	}
	start := s.runAt
	s.mu.Unlock()

	var cancel context.CancelFunc
	if s.cfg.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	log := s.log.With().Str("run_id", s.runID).Logger()
	log.Info().Int("stages", len(specs)).Msg("run started")

	var (
		wg      sync.WaitGroup
		timings sync.Map
	)
	for _, spec := range specs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timings.Store(spec.Name, s.runStage(ctx, spec, start, log))
		}()
	}
	wg.Wait()

	res := &Result{
		RunID:   s.runID,
		Started: start,
		Wall:    s.clock.Now().Sub(start),
		Specs:   specs,
		Timings: make(map[string]StageTiming, len(specs)),
	}
	for _, spec := range specs {
		if v, ok := timings.Load(spec.Name); ok {
			res.Timings[spec.Name] = v.(StageTiming)
		}
	}

	sent, completed, failed := s.agg.Totals()
	log.Info().
		Dur("wall", res.Wall).
		Uint64("sent", sent).
		Uint64("completed", completed).
		Uint64("failed", failed).
		Msg("run finished")
	return res, nil
}

// runStage waits for the stage's absolute start time, independent of any
// other stage, then launches it and waits for it to finish.
func (s *Scheduler) runStage(ctx context.Context, spec StageSpec, runStart time.Time, log zerolog.Logger) StageTiming {
	if delay := runStart.Add(spec.StartOffset).Sub(s.clock.Now()); delay > 0 {
		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
		}
	}
	if ctx.Err() != nil {
		timing := StageTiming{Skipped: true, Interrupted: true}
		s.finish(spec.Name, timing)
		log.Warn().Str("stage", spec.Name).Msg("stage skipped, run ended before its start offset")
		return timing
	}

	counters, _ := s.agg.Stage(spec.Name)
	h := Launch(ctx, spec, StageEnv{
		Invoker:  s.inv,
		Counters: counters,
		Request:  s.cfg.RequestFor(spec),
		Clock:    s.clock,
		Log:      log,
		RunStart: runStart,
	})

	s.mu.Lock()
	st := s.status[spec.Name]
	st.State = StateRunning
	st.Started = h.started
	s.mu.Unlock()

	timing := h.Wait()
	s.finish(spec.Name, timing)
	return timing
}

func (s *Scheduler) finish(name string, timing StageTiming) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[name]
	st.State = StateFinished
	st.Timing = timing
}

// Status returns every stage's state in plan order.
func (s *Scheduler) Status() []StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StageStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.status[name])
	}
	return out
}

// StartedAt is the run start, zero before Run is called.
func (s *Scheduler) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runAt
}

func cloneSpecs(specs []StageSpec) []StageSpec {
	out := make([]StageSpec, len(specs))
	for i, spec := range specs {
		spec.AcceptedStatus = slices.Clone(spec.AcceptedStatus)
		out[i] = spec
	}
	return out
}
