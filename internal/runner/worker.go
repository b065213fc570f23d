package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// recorder receives finished outcomes. The stage implements it so it can
// stop accepting records once it has timed out.
type recorder interface {
	record(out Outcome) bool
}

// Worker is one sequential loop of invocations.
type Worker struct {
	ID         int
	Iterations int

	req Request
	inv Invoker
	rec recorder
	log zerolog.Logger
}

// Run executes the iterations in order. Iteration n+1 starts only after
// iteration n has been recorded. A call still in flight when ctx ends is
// dropped without being counted.
func (w *Worker) Run(ctx context.Context) {
	for i := 0; i < w.Iterations; i++ {
		if ctx.Err() != nil {
			return
		}
		out := w.invoke(ctx)
		if ctx.Err() != nil {
			return
		}
		if !w.rec.record(out) {
			return
		}
		if out.Class == Failed {
			w.log.Debug().
				Int("worker", w.ID).
				Int("iteration", i).
				Int("status", out.Status).
				AnErr("error", out.Err).
				Msg("call failed")
		}
	}
}

// invoke times one call. A panicking invoker yields a failed outcome so the
// remaining iterations still run.
func (w *Worker) invoke(ctx context.Context) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Stage:   w.req.Stage,
				SentAt:  start,
				Elapsed: time.Since(start),
				Class:   Failed,
				Err:     fmt.Errorf("%w: %v", ErrInvokerPanic, r),
			}
		}
	}()

	out = w.inv.Invoke(ctx, w.req)
	out.Stage = w.req.Stage
	out.SentAt = start
	out.Elapsed = time.Since(start)
	return out
}
