package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var levels = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Sparkline is a one-line scrolling chart of the last Width samples.
type Sparkline struct {
	Data  []float64
	Width int
	Label string
	Unit  string
	Style lipgloss.Style

	peak float64
}

func NewSparkline(width int, label, unit string, style lipgloss.Style) Sparkline {
	return Sparkline{
		Width: width,
		Label: label,
		Unit:  unit,
		Style: style,
		Data:  make([]float64, 0, width),
	}
}

func (s *Sparkline) Add(val float64) {
	if val < 0 {
		val = 0
	}
	s.Data = append(s.Data, val)
	if s.Width > 0 && len(s.Data) > s.Width {
		s.Data = s.Data[len(s.Data)-s.Width:]
	}

	// scale to the visible window
	s.peak = 0
	for _, v := range s.Data {
		s.peak = max(s.peak, v)
	}
}

// Last is the most recent sample, zero when empty.
func (s Sparkline) Last() float64 {
	if len(s.Data) == 0 {
		return 0
	}
	return s.Data[len(s.Data)-1]
}

func (s Sparkline) View() string {
	if s.Width <= 0 {
		return ""
	}

	var out strings.Builder
	out.WriteString(s.Style.Render(fmt.Sprintf("%s  %.1f %s", s.Label, s.Last(), s.Unit)))
	out.WriteString("\n")

	var graph strings.Builder
	for _, v := range s.Data {
		graph.WriteString(levels[level(v, s.peak)])
	}
	if pad := s.Width - len(s.Data); pad > 0 {
		graph.WriteString(strings.Repeat(" ", pad))
	}

	return out.String() + s.Style.Render(graph.String())
}

func level(v, peak float64) int {
	if peak <= 0 {
		return 0
	}
	idx := int(v / peak * float64(len(levels)-1))
	return min(max(idx, 0), len(levels)-1)
}
