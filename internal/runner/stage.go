package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stageq/internal/stats"
)

// StageEnv carries what a stage needs besides its spec.
type StageEnv struct {
	Invoker  Invoker
	Counters *stats.CounterSet
	Request  Request
	Clock    Clock
	Log      zerolog.Logger
	// RunStart is used to report the stage's actual offset.
	RunStart time.Time
}

// StageHandle tracks a launched stage until it finishes.
type StageHandle struct {
	Spec StageSpec

	counters *stats.CounterSet
	started  time.Time

	// sealed stops records from workers abandoned by a timeout.
	mu     sync.RWMutex
	sealed bool

	done   chan struct{}
	timing StageTiming
}

// Launch starts all workers of spec at once and returns immediately.
// The stage finishes when every worker is done or spec.MaxDuration has
// elapsed since launch, whichever comes first.
func Launch(ctx context.Context, spec StageSpec, env StageEnv) *StageHandle {
	if env.Clock == nil {
		env.Clock = SystemClock{}
	}

	h := &StageHandle{
		Spec:     spec,
		counters: env.Counters,
		started:  env.Clock.Now(),
		done:     make(chan struct{}),
	}
	if !env.RunStart.IsZero() {
		h.timing.Offset = h.started.Sub(env.RunStart)
	}
	h.timing.Started = h.started

	log := env.Log.With().Str("stage", spec.Name).Logger()
	log.Info().
		Str("operation", string(spec.Operation)).
		Int("workers", spec.Workers).
		Int("iterations", spec.Iterations).
		Dur("max_duration", spec.MaxDuration).
		Msg("stage started")

	stageCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < spec.Workers; i++ {
		w := &Worker{
			ID:         i,
			Iterations: spec.Iterations,
			req:        env.Request,
			inv:        env.Invoker,
			rec:        h,
			log:        log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(stageCtx)
		}()
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	go h.supervise(ctx, cancel, allDone, env.Clock, log)
	return h
}

func (h *StageHandle) supervise(ctx context.Context, cancel context.CancelFunc, allDone <-chan struct{}, clock Clock, log zerolog.Logger) {
	defer close(h.done)
	defer cancel()

	limit := h.Spec.MaxDuration
	select {
	case <-allDone:
		h.timing.Observed = min(clock.Now().Sub(h.started), limit)
	case <-clock.After(limit):
		h.seal()
		h.timing.Observed = limit
		h.timing.TimedOut = true
	case <-ctx.Done():
		h.seal()
		h.timing.Observed = min(clock.Now().Sub(h.started), limit)
		h.timing.Interrupted = true
	}

	ev := log.Info()
	if h.timing.TimedOut || h.timing.Interrupted {
		ev = log.Warn()
	}
	ev.Uint64("sent", h.counters.Sent()).
		Uint64("completed", h.counters.Completed()).
		Uint64("failed", h.counters.Failed()).
		Dur("observed", h.timing.Observed).
		Bool("timed_out", h.timing.TimedOut).
		Bool("interrupted", h.timing.Interrupted).
		Msg("stage finished")
}

func (h *StageHandle) seal() {
	h.mu.Lock()
	h.sealed = true
	h.mu.Unlock()
}

// record stores one outcome unless the stage has already finished.
func (h *StageHandle) record(out Outcome) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.sealed {
		return false
	}

	reason := ""
	if out.Class == Failed {
		reason = FailureReason(out)
	}
	h.counters.Record(out.Class == Completed, out.Elapsed, reason)
	return true
}

// Done is closed once the stage has finished.
func (h *StageHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the stage has finished.
func (h *StageHandle) Wait() StageTiming {
	<-h.done
	return h.timing
}
