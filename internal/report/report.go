package report

import (
	"sort"
	"strings"
	"time"

	"stageq/internal/runner"
	"stageq/internal/stats"
)

// Meta identifies the run a report was reduced from.
type Meta struct {
	RunID   string
	Started time.Time
	Wall    time.Duration
}

// StageRow holds the derived figures of one stage.
type StageRow struct {
	Name      string
	Operation runner.Operation
	Group     string

	Target    int
	Sent      uint64
	Completed uint64
	Failed    uint64
	// Errors is Sent - Completed.
	Errors uint64

	Rate       float64 // completed per second of Observed
	SuccessPct float64
	SentPct    float64

	AvgDuration time.Duration
	MaxDuration time.Duration

	// PlannedStart and PlannedEnd bound the stage's planned window.
	PlannedStart time.Duration
	PlannedEnd   time.Duration

	Offset   time.Duration
	Observed time.Duration
	TimedOut bool
	Stopped  bool // cut short by the run deadline or a cancel
	Skipped  bool

	Failures []stats.FailureCount
}

// CombinedRow sums stages that ran side by side. Its rate is computed over
// the longest member, not the sum of their durations.
type CombinedRow struct {
	Label  string
	Stages []string

	Target    int
	Sent      uint64
	Completed uint64
	Errors    uint64

	Observed   time.Duration
	Rate       float64
	SuccessPct float64
}

type RunReport struct {
	Meta
	Stages   []StageRow
	Combined []CombinedRow
	// Total is nil for single-stage runs and when one combined row already
	// covers every stage.
	Total *CombinedRow
}

// FromResult reduces a finished scheduler run.
func FromResult(agg *stats.Aggregator, res *runner.Result) RunReport {
	return Reduce(agg, res.Specs, res.Timings, Meta{
		RunID:   res.RunID,
		Started: res.Started,
		Wall:    res.Wall,
	})
}

// Reduce derives a RunReport from the aggregator. Stages appear in plan order.
func Reduce(agg *stats.Aggregator, specs []runner.StageSpec, timings map[string]runner.StageTiming, meta Meta) RunReport {
	rep := RunReport{Meta: meta}

	for _, spec := range specs {
		var snap stats.Snapshot
		if c, ok := agg.Stage(spec.Name); ok {
			snap = c.Snapshot()
		}
		timing := timings[spec.Name]
		plannedStart, plannedEnd := spec.Window()

		row := StageRow{
			Name:         spec.Name,
			Operation:    spec.Operation,
			Group:        spec.Group,
			Target:       spec.Target(),
			Sent:         snap.Sent,
			Completed:    snap.Completed,
			Failed:       snap.Failed,
			AvgDuration:  snap.AvgDuration,
			MaxDuration:  snap.MaxDuration,
			PlannedStart: plannedStart,
			PlannedEnd:   plannedEnd,
			Offset:       timing.Offset,
			Observed:     timing.Observed,
			TimedOut:     timing.TimedOut,
			Stopped:      timing.Interrupted && !timing.Skipped,
			Skipped:      timing.Skipped,
			Failures:     snap.Failures,
		}
		if snap.Sent > snap.Completed {
			row.Errors = snap.Sent - snap.Completed
		}
		row.Rate = rate(row.Completed, row.Observed)
		row.SuccessPct = snap.SuccessRate()
		row.SentPct = percent(row.Sent, uint64(row.Target))

		rep.Stages = append(rep.Stages, row)
	}

	for _, members := range groups(rep.Stages) {
		rep.Combined = append(rep.Combined, combine(rep.Stages, members))
	}

	if len(rep.Stages) > 1 && !coveredByOneGroup(rep.Combined, len(rep.Stages)) {
		all := make([]int, len(rep.Stages))
		for i := range all {
			all[i] = i
		}
		total := combine(rep.Stages, all)
		total.Label = "TOTAL"
		total.Observed = span(rep.Stages)
		total.Rate = rate(total.Completed, total.Observed)
		rep.Total = &total
	}
	return rep
}

// groups returns member indexes of every combined row. Stages sharing an
// explicit Group label are combined first; the remaining stages are grouped
// by intersecting planned [startOffset, startOffset+maxDuration) windows.
// Stages that never ran are left out.
func groups(rows []StageRow) [][]int {
	var out [][]int

	labelled := make(map[string][]int)
	var labels []string
	var rest []int
	for i, r := range rows {
		if r.Group == "" {
			rest = append(rest, i)
			continue
		}
		if _, ok := labelled[r.Group]; !ok {
			labels = append(labels, r.Group)
		}
		labelled[r.Group] = append(labelled[r.Group], i)
	}
	for _, l := range labels {
		if len(labelled[l]) > 1 {
			out = append(out, labelled[l])
		}
	}

	var timed []int
	for _, i := range rest {
		if !rows[i].Skipped && rows[i].Observed > 0 {
			timed = append(timed, i)
		}
	}
	sort.SliceStable(timed, func(a, b int) bool {
		return rows[timed[a]].PlannedStart < rows[timed[b]].PlannedStart
	})

	var cur []int
	var curEnd time.Duration
	flush := func() {
		if len(cur) > 1 {
			sort.Ints(cur)
			out = append(out, cur)
		}
	}
	for _, i := range timed {
		start, end := rows[i].PlannedStart, rows[i].PlannedEnd
		if len(cur) > 0 && start < curEnd {
			cur = append(cur, i)
			curEnd = max(curEnd, end)
			continue
		}
		flush()
		cur = []int{i}
		curEnd = end
	}
	flush()

	// plan order of the first member
	sort.SliceStable(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

func combine(rows []StageRow, members []int) CombinedRow {
	var c CombinedRow
	names := make([]string, 0, len(members))
	for _, i := range members {
		r := rows[i]
		names = append(names, r.Name)
		c.Target += r.Target
		c.Sent += r.Sent
		c.Completed += r.Completed
		c.Errors += r.Errors
		c.Observed = max(c.Observed, r.Observed)
	}
	c.Stages = names
	c.Label = rows[members[0]].Group
	if c.Label == "" {
		c.Label = strings.Join(names, "+")
	}
	c.Rate = rate(c.Completed, c.Observed)
	c.SuccessPct = percent(c.Completed, c.Sent)
	return c
}

func coveredByOneGroup(combined []CombinedRow, stages int) bool {
	for _, c := range combined {
		if len(c.Stages) == stages {
			return true
		}
	}
	return false
}

// span is the distance from the earliest stage start to the latest stage end.
func span(rows []StageRow) time.Duration {
	var (
		first, last time.Duration
		seen        bool
	)
	for _, r := range rows {
		if r.Skipped {
			continue
		}
		end := r.Offset + r.Observed
		if !seen {
			first, last, seen = r.Offset, end, true
			continue
		}
		first = min(first, r.Offset)
		last = max(last, end)
	}
	return last - first
}

func rate(n uint64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
