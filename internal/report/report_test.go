package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"stageq/internal/runner"
	"stageq/internal/stats"
)

func fill(agg *stats.Aggregator, name string, completed, failed int, elapsed time.Duration, reason string) {
	c := agg.Register(name)
	for range completed {
		c.Record(true, elapsed, "")
	}
	for range failed {
		c.Record(false, elapsed, reason)
	}
}

func spec(name string, op runner.Operation, workers, iterations int) runner.StageSpec {
	return runner.StageSpec{Name: name, Operation: op, Workers: workers, Iterations: iterations, MaxDuration: 10 * time.Second}
}

func planned(s runner.StageSpec, offset, maxDuration time.Duration) runner.StageSpec {
	s.StartOffset = offset
	s.MaxDuration = maxDuration
	return s
}

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestReduceStageRow(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "save", 45, 5, 10*time.Millisecond, "HTTP 503")

	rep := Reduce(agg,
		[]runner.StageSpec{spec("save", runner.OpWrite, 10, 5)},
		map[string]runner.StageTiming{"save": {Observed: 2 * time.Second}},
		Meta{RunID: "r1"},
	)

	if len(rep.Stages) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rep.Stages))
	}
	r := rep.Stages[0]
	if r.Target != 50 || r.Sent != 50 || r.Completed != 45 || r.Errors != 5 {
		t.Errorf("unexpected counts %+v", r)
	}
	if !almost(r.Rate, 22.5) {
		t.Errorf("expected rate 22.5, got %v", r.Rate)
	}
	if !almost(r.SuccessPct, 90) || !almost(r.SentPct, 100) {
		t.Errorf("unexpected percentages %v %v", r.SuccessPct, r.SentPct)
	}
	if r.AvgDuration != 10*time.Millisecond {
		t.Errorf("unexpected avg %v", r.AvgDuration)
	}
	if rep.Total != nil || len(rep.Combined) != 0 {
		t.Error("single stage must not produce combined or total rows")
	}
}

func TestReduceUsesObservedDurationPerStage(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "a", 100, 0, time.Millisecond, "")
	fill(agg, "b", 100, 0, time.Millisecond, "")

	rep := Reduce(agg,
		[]runner.StageSpec{
			planned(spec("a", runner.OpRead, 10, 10), 0, 5*time.Second),
			planned(spec("b", runner.OpRead, 10, 10), 10*time.Second, 5*time.Second),
		},
		map[string]runner.StageTiming{
			"a": {Offset: 0, Observed: 1 * time.Second},
			"b": {Offset: 10 * time.Second, Observed: 4 * time.Second},
		},
		Meta{},
	)
	if !almost(rep.Stages[0].Rate, 100) || !almost(rep.Stages[1].Rate, 25) {
		t.Errorf("expected per-stage rates 100 and 25, got %v and %v", rep.Stages[0].Rate, rep.Stages[1].Rate)
	}
	if len(rep.Combined) != 0 {
		t.Errorf("sequential stages must not be combined: %+v", rep.Combined)
	}

	// total spans 0s..14s
	if rep.Total == nil {
		t.Fatal("expected a total row")
	}
	if rep.Total.Observed != 14*time.Second || rep.Total.Sent != 200 {
		t.Errorf("unexpected total %+v", rep.Total)
	}
}

func TestReduceCombinesOverlappingStages(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "save", 1500, 0, time.Millisecond, "")
	fill(agg, "read", 2400, 100, time.Millisecond, "timeout")
	fill(agg, "later", 10, 0, time.Millisecond, "")

	rep := Reduce(agg,
		[]runner.StageSpec{
			planned(spec("save", runner.OpWrite, 75, 20), 0, 5*time.Second),
			planned(spec("read", runner.OpRead, 25, 100), 0, 5*time.Second),
			planned(spec("later", runner.OpRead, 1, 10), 6*time.Second, 5*time.Second),
		},
		map[string]runner.StageTiming{
			"save":  {Offset: 0, Observed: 5 * time.Second},
			"read":  {Offset: 0, Observed: 2 * time.Second},
			"later": {Offset: 6 * time.Second, Observed: time.Second},
		},
		Meta{},
	)

	if len(rep.Combined) != 1 {
		t.Fatalf("expected one combined row, got %+v", rep.Combined)
	}
	c := rep.Combined[0]
	if c.Label != "save+read" || c.Sent != 4000 || c.Completed != 3900 || c.Errors != 100 {
		t.Errorf("unexpected combined row %+v", c)
	}
	// parallel stages: rate over the longest member, not the sum
	if c.Observed != 5*time.Second || !almost(c.Rate, 780) {
		t.Errorf("expected 780 req/s over 5s, got %v over %v", c.Rate, c.Observed)
	}
	if rep.Total == nil || rep.Total.Sent != 4010 {
		t.Errorf("unexpected total %+v", rep.Total)
	}
}

func TestReduceCombinesByPlannedWindow(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "a", 100, 0, time.Millisecond, "")
	fill(agg, "b", 300, 0, time.Millisecond, "")

	// a was planned for [0s,5s) but finished after 2s; b runs [2s,7s)
	rep := Reduce(agg,
		[]runner.StageSpec{
			planned(spec("a", runner.OpWrite, 10, 10), 0, 5*time.Second),
			planned(spec("b", runner.OpRead, 10, 30), 2*time.Second, 5*time.Second),
		},
		map[string]runner.StageTiming{
			"a": {Offset: 0, Observed: 2 * time.Second},
			"b": {Offset: 2 * time.Second, Observed: 5 * time.Second},
		},
		Meta{},
	)
	if len(rep.Combined) != 1 || rep.Combined[0].Label != "a+b" {
		t.Fatalf("expected planned overlap to combine a and b, got %+v", rep.Combined)
	}
	if rep.Total != nil {
		t.Errorf("combined row covers every stage, total must be omitted: %+v", rep.Total)
	}
}

func TestReduceExplicitGroups(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "a", 10, 0, time.Millisecond, "")
	fill(agg, "b", 20, 0, time.Millisecond, "")

	a := spec("a", runner.OpWrite, 1, 10)
	a.Group = "mixed"
	b := spec("b", runner.OpRead, 1, 20)
	b.Group = "mixed"

	// windows do not intersect, the label still combines them
	rep := Reduce(agg, []runner.StageSpec{a, b},
		map[string]runner.StageTiming{
			"a": {Offset: 0, Observed: time.Second},
			"b": {Offset: 5 * time.Second, Observed: 2 * time.Second},
		},
		Meta{},
	)
	if len(rep.Combined) != 1 || rep.Combined[0].Label != "mixed" {
		t.Fatalf("expected group row 'mixed', got %+v", rep.Combined)
	}
	if !almost(rep.Combined[0].Rate, 15) {
		t.Errorf("expected rate 15, got %v", rep.Combined[0].Rate)
	}
	if rep.Total != nil {
		t.Error("total duplicates a group covering every stage")
	}
}

func TestReduceSkippedAndMissingStages(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "ran", 5, 0, time.Millisecond, "")
	agg.Register("skipped")

	rep := Reduce(agg,
		[]runner.StageSpec{
			spec("ran", runner.OpRead, 1, 5),
			spec("skipped", runner.OpRead, 1, 5),
			spec("unknown", runner.OpRead, 1, 5),
		},
		map[string]runner.StageTiming{
			"ran":     {Observed: time.Second},
			"skipped": {Skipped: true, Interrupted: true},
		},
		Meta{},
	)
	if len(rep.Stages) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rep.Stages))
	}
	for _, r := range rep.Stages[1:] {
		if r.Sent != 0 || r.Rate != 0 || r.SuccessPct != 0 {
			t.Errorf("%s: expected zero row, got %+v", r.Name, r)
		}
	}
	if rep.Total == nil || rep.Total.Observed != time.Second {
		t.Errorf("skipped stages must not stretch the total span: %+v", rep.Total)
	}
	if !rep.Stages[1].Skipped || rep.Stages[1].Stopped {
		t.Errorf("skipped stage reported as stopped: %+v", rep.Stages[1])
	}

	cut := Reduce(agg,
		[]runner.StageSpec{spec("ran", runner.OpRead, 1, 5)},
		map[string]runner.StageTiming{"ran": {Observed: 300 * time.Millisecond, Interrupted: true}},
		Meta{},
	)
	if !cut.Stages[0].Stopped {
		t.Errorf("expected interrupted stage to be marked stopped: %+v", cut.Stages[0])
	}
	var b strings.Builder
	if err := Render(&b, cut); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "stopped") || !strings.Contains(b.String(), "interrupted after 300ms") {
		t.Errorf("render missing stopped status:\n%s", b.String())
	}
}

func TestFromResult(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "a", 3, 0, time.Millisecond, "")
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rep := FromResult(agg, &runner.Result{
		RunID:   "abc",
		Started: started,
		Wall:    3 * time.Second,
		Specs:   []runner.StageSpec{spec("a", runner.OpRead, 1, 3)},
		Timings: map[string]runner.StageTiming{"a": {Observed: time.Second}},
	})
	if rep.RunID != "abc" || !rep.Started.Equal(started) || rep.Wall != 3*time.Second {
		t.Errorf("meta not carried over: %+v", rep.Meta)
	}
	if rep.Stages[0].Completed != 3 {
		t.Errorf("unexpected row %+v", rep.Stages[0])
	}
}

func TestRenderFixedWidth(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "save", 1500, 0, 12*time.Millisecond, "")
	fill(agg, "a-very-long-read-stage-name", 7, 3, 3*time.Millisecond, "HTTP 503")

	rep := Reduce(agg,
		[]runner.StageSpec{
			planned(spec("save", runner.OpWrite, 75, 20), 0, 5*time.Second),
			planned(spec("a-very-long-read-stage-name", runner.OpRead, 25, 100), 6*time.Second, 5*time.Second),
		},
		map[string]runner.StageTiming{
			"save":                        {Observed: 5 * time.Second},
			"a-very-long-read-stage-name": {Offset: 6 * time.Second, Observed: 5 * time.Second, TimedOut: true},
		},
		Meta{RunID: "run-1", Wall: 5 * time.Second},
	)

	var buf bytes.Buffer
	if err := Render(&buf, rep); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	var table []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "STAGE ") || strings.HasPrefix(line, "save ") ||
			strings.HasPrefix(line, "a-very") || strings.HasPrefix(line, "TOTAL ") {
			table = append(table, line)
		}
	}
	if len(table) < 4 {
		t.Fatalf("expected header, two stages and a total, got:\n%s", out)
	}
	width := len(strings.TrimRight(table[0], " "))
	for _, line := range table {
		// the status column is left-justified, so compare up to it
		if len(line) < width {
			t.Errorf("row narrower than header: %q", line)
		}
	}

	for _, want := range []string{
		"Run ID   : run-1",
		"100.0",
		"300.00",
		"12.00",
		"70.0",
		"timeout",
		"a-very-long-read-~",
		"3 x HTTP 503",
		"save: sent 1500 of 1500 (100.0%), 0 failed",
		"a-very-long-read-stage-name: sent 10 of 2500 (0.4%), 3 failed, stopped after max duration 5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderNonASCIINames(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "zahlungen-lesen-ü-äöü", 5, 0, time.Millisecond, "")
	fill(agg, "支払い書き込みステージ", 5, 0, time.Millisecond, "")
	fill(agg, "read", 5, 0, time.Millisecond, "")

	rep := Reduce(agg,
		[]runner.StageSpec{
			planned(spec("zahlungen-lesen-ü-äöü", runner.OpRead, 1, 5), 0, 5*time.Second),
			planned(spec("支払い書き込みステージ", runner.OpWrite, 1, 5), 10*time.Second, 5*time.Second),
			planned(spec("read", runner.OpRead, 1, 5), 20*time.Second, 5*time.Second),
		},
		map[string]runner.StageTiming{
			"zahlungen-lesen-ü-äöü": {Observed: time.Second},
			"支払い書き込みステージ":           {Offset: 10 * time.Second, Observed: time.Second},
			"read":                  {Offset: 20 * time.Second, Observed: time.Second},
		},
		Meta{},
	)
	var buf bytes.Buffer
	if err := Render(&buf, rep); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !utf8.ValidString(out) {
		t.Fatalf("report is not valid UTF-8:\n%q", out)
	}
	if !strings.Contains(out, "zahlungen-lesen-ü~") {
		t.Errorf("expected rune-aware truncation:\n%s", out)
	}

	var header string
	var rows []string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "STAGE "):
			header = line
		case strings.HasPrefix(line, "zahlungen"), strings.HasPrefix(line, "支払"), strings.HasPrefix(line, "read "):
			rows = append(rows, line)
		}
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 stage rows, got %d:\n%s", len(rows), out)
	}
	for _, row := range rows {
		if runewidth.StringWidth(row) != runewidth.StringWidth(header) {
			t.Errorf("row width %d differs from header width %d: %q",
				runewidth.StringWidth(row), runewidth.StringWidth(header), row)
		}
	}
}

func TestRenderColumnsAlign(t *testing.T) {
	agg := stats.NewAggregator()
	fill(agg, "x", 1, 0, time.Millisecond, "")
	fill(agg, "y", 123456, 0, time.Millisecond, "")

	rep := Reduce(agg,
		[]runner.StageSpec{spec("x", runner.OpRead, 1, 1), spec("y", runner.OpRead, 1000, 1000)},
		map[string]runner.StageTiming{"x": {Observed: time.Second}, "y": {Observed: time.Second}},
		Meta{},
	)
	var buf bytes.Buffer
	if err := Render(&buf, rep); err != nil {
		t.Fatal(err)
	}

	var x, y string
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.HasPrefix(line, "x "):
			x = line
		case strings.HasPrefix(line, "y "):
			y = line
		}
	}
	if x == "" || y == "" {
		t.Fatalf("rows not found:\n%s", buf.String())
	}
	if len(x) != len(y) {
		t.Errorf("rows differ in width:\n%q\n%q", x, y)
	}
}
