package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"stageq/internal/runner"
	"stageq/internal/stats"
)

func newTestModel() Model {
	inv := runner.InvokerFunc(func(ctx context.Context, req runner.Request) runner.Outcome {
		return runner.Outcome{Class: runner.Completed, Status: 200}
	})
	s := runner.NewScheduler(runner.DefaultConfig(), stats.NewAggregator(), inv)
	specs := []runner.StageSpec{
		{Name: "save", Operation: runner.OpWrite, Workers: 2, Iterations: 3, MaxDuration: time.Second},
	}
	return NewModel(context.Background(), s, specs)
}

func TestModelFinishesRun(t *testing.T) {
	m := newTestModel()

	// run synchronously instead of through a tea.Program
	msg := m.runCmd()()
	done, ok := msg.(doneMsg)
	if !ok {
		t.Fatalf("expected doneMsg, got %T", msg)
	}
	if done.err != nil {
		t.Fatal(done.err)
	}

	next, cmd := m.Update(done)
	if cmd == nil {
		t.Error("expected quit command after the run finished")
	}
	fm := next.(Model)
	if fm.Result == nil || fm.Result.Timings["save"].Observed <= 0 {
		t.Errorf("result not stored: %+v", fm.Result)
	}

	view := fm.View()
	for _, want := range []string{"save", "Run finished.", "6/6"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelQuitCancelsRun(t *testing.T) {
	m := newTestModel()
	next, _ := m.Update(keyQ())
	fm := next.(Model)
	if !fm.Cancelled {
		t.Error("expected run to be cancelled")
	}
	if fm.ctx.Err() == nil {
		t.Error("expected run context to be cancelled")
	}
	if !strings.Contains(fm.View(), "Stopping") {
		t.Error("expected stopping notice")
	}
}
