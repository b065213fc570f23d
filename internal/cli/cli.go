package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"stageq/internal/report"
	"stageq/internal/runner"
	"stageq/internal/stats"
)

// Options controls where the monitor writes. Report output and the live
// progress line are kept apart so the report can be piped.
type Options struct {
	Out      io.Writer
	Progress io.Writer
	Interval time.Duration
}

// Run prints the header, drives the scheduler while refreshing a progress
// line, then prints the report. Call failures never make it return an error.
func Run(ctx context.Context, s *runner.Scheduler, agg *stats.Aggregator, specs []runner.StageSpec, opts Options) (report.RunReport, error) {
	if opts.Interval <= 0 {
		opts.Interval = 200 * time.Millisecond
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}

	printHeader(opts.Out, s.Config(), specs)

	tickCtx, stopTicks := context.WithCancel(ctx)
	defer stopTicks()
	updates := make(runner.ProgressChan, 100)
	s.StartTickLoop(tickCtx, opts.Interval, updates)

	type outcome struct {
		res *runner.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Run(ctx, specs)
		done <- outcome{res, err}
	}()

	for {
		select {
		case p := <-updates:
			printProgress(opts.Progress, p)
		case o := <-done:
			stopTicks()
			if o.err != nil {
				return report.RunReport{}, o.err
			}
			printProgress(opts.Progress, s.Progress())
			fmt.Fprintln(opts.Progress)

			rep := report.FromResult(agg, o.res)
			if err := report.Render(opts.Out, rep); err != nil {
				return rep, fmt.Errorf("write report: %w", err)
			}
			return rep, nil
		}
	}
}

func printHeader(w io.Writer, cfg runner.Config, specs []runner.StageSpec) {
	fmt.Fprintf(w, "\n🚀 STARTING STAGEQ LOAD TEST\n")
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Target URL : %s\n", cfg.BaseURL)
	fmt.Fprintf(w, "Timeout    : %s per call\n", cfg.Timeout)
	if cfg.RunTimeout > 0 {
		fmt.Fprintf(w, "Run limit  : %s\n", cfg.RunTimeout)
	}
	fmt.Fprintf(w, "Stages     : %d\n", len(specs))
	for _, s := range specs {
		fmt.Fprintf(w, "   %-14s %-5s %4d workers x %4d iterations  start +%s  max %s\n",
			s.Name, s.Operation, s.Workers, s.Iterations, s.StartOffset, s.MaxDuration)
	}
	fmt.Fprintf(w, "======================================================================\n\n")
}

func printProgress(w io.Writer, p runner.Progress) {
	var target int
	var running int
	for _, s := range p.Stages {
		target += s.Target
		if s.State == runner.StateRunning {
			running++
		}
	}
	sent, completed, failed := p.Totals()

	pct := 0.0
	if target > 0 {
		pct = min(float64(sent)/float64(target), 1)
	}
	if p.Done() {
		pct = 1
	}

	rate := 0.0
	if p.Elapsed > 0 {
		rate = float64(completed) / p.Elapsed.Seconds()
	}

	fmt.Fprintf(w, "\r%s %3.0f%% | %s | Running: %d/%d | RPS: %.1f | OK: %d | Err: %d",
		progressBar(pct, 20), pct*100,
		p.Elapsed.Round(100*time.Millisecond),
		running, len(p.Stages),
		rate, completed, failed,
	)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}
