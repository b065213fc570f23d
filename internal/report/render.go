package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

const nameWidth = 18

// every cell is pre-formatted to a string so the columns never shift
const rowFormat = "%s %-5s %8s %8s %8s %8s %7s %7s %10s %9s %9s %9s  %-8s\n"

var header = fmt.Sprintf(rowFormat,
	nameCell("STAGE"), "OP", "TARGET", "SENT", "OK", "ERRORS", "SENT%", "OK%", "RATE/S", "AVG(ms)", "MAX(ms)", "OBSERVED", "STATUS")

var rule = strings.Repeat("=", len(header)-1) + "\n"

var thinRule = strings.Repeat("-", len(header)-1) + "\n"

// Render writes the report as a fixed-width table followed by the failure
// summary and the per-stage analysis.
func Render(w io.Writer, rep RunReport) error {
	var b strings.Builder

	b.WriteString("\n📊 LOAD TEST RESULTS\n")
	b.WriteString(rule)
	if rep.RunID != "" {
		fmt.Fprintf(&b, "Run ID   : %s\n", rep.RunID)
	}
	if !rep.Started.IsZero() {
		fmt.Fprintf(&b, "Started  : %s\n", rep.Started.Format(time.DateTime))
	}
	fmt.Fprintf(&b, "Duration : %s\n", rep.Wall.Round(time.Millisecond))
	b.WriteString(rule)

	b.WriteString(header)
	b.WriteString(thinRule)
	for _, r := range rep.Stages {
		fmt.Fprintf(&b, rowFormat,
			nameCell(r.Name),
			string(r.Operation),
			count(uint64(r.Target)),
			count(r.Sent),
			count(r.Completed),
			count(r.Errors),
			pct(r.SentPct),
			pct(r.SuccessPct),
			fmt.Sprintf("%.2f", r.Rate),
			millis(r.AvgDuration),
			millis(r.MaxDuration),
			seconds(r.Observed),
			status(r),
		)
	}

	if len(rep.Combined) > 0 || rep.Total != nil {
		b.WriteString(thinRule)
	}
	for _, c := range rep.Combined {
		writeCombined(&b, c)
	}
	if rep.Total != nil {
		writeCombined(&b, *rep.Total)
	}
	b.WriteString(rule)

	writeFailures(&b, rep)
	writeAnalysis(&b, rep)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeCombined(b *strings.Builder, c CombinedRow) {
	fmt.Fprintf(b, rowFormat,
		nameCell(c.Label),
		"-",
		count(uint64(c.Target)),
		count(c.Sent),
		count(c.Completed),
		count(c.Errors),
		pct(percent(c.Sent, uint64(c.Target))),
		pct(c.SuccessPct),
		fmt.Sprintf("%.2f", c.Rate),
		"-",
		"-",
		seconds(c.Observed),
		"",
	)
}

func writeFailures(b *strings.Builder, rep RunReport) {
	hasFailures := false
	for _, r := range rep.Stages {
		if len(r.Failures) > 0 {
			hasFailures = true
			break
		}
	}
	if !hasFailures {
		return
	}

	b.WriteString("\n❌ FAILURE SUMMARY\n")
	for _, r := range rep.Stages {
		if len(r.Failures) == 0 {
			continue
		}
		fmt.Fprintf(b, "   %s\n", r.Name)
		for _, f := range r.Failures {
			fmt.Fprintf(b, "      %d x %s\n", f.Count, f.Reason)
		}
	}
}

func writeAnalysis(b *strings.Builder, rep RunReport) {
	b.WriteString("\n🔎 ANALYSIS\n")
	for _, r := range rep.Stages {
		fmt.Fprintf(b, "   %s: sent %d of %d (%s%%), %d failed", r.Name, r.Sent, r.Target, pct(r.SentPct), r.Failed)
		switch {
		case r.Skipped:
			b.WriteString(", skipped before its start offset")
		case r.TimedOut:
			fmt.Fprintf(b, ", stopped after max duration %s", r.Observed)
		case r.Stopped:
			fmt.Fprintf(b, ", interrupted after %s", r.Observed)
		}
		b.WriteString("\n")
	}
	for _, c := range rep.Combined {
		fmt.Fprintf(b, "   %s (%s): %s req/s over %s\n",
			c.Label, strings.Join(c.Stages, ", "), fmt.Sprintf("%.2f", c.Rate), seconds(c.Observed))
	}
}

func status(r StageRow) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.TimedOut:
		return "timeout"
	case r.Stopped:
		return "stopped"
	}
	return "ok"
}

// nameCell fits s into the name column by display width, marking cut
// names with "~".
func nameCell(s string) string {
	return runewidth.FillRight(runewidth.Truncate(s, nameWidth, "~"), nameWidth)
}

func count(n uint64) string {
	return fmt.Sprintf("%d", n)
}

func pct(p float64) string {
	return fmt.Sprintf("%.1f", p)
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d)/float64(time.Millisecond))
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
