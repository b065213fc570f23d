package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"stageq/internal/runner"
	"stageq/internal/tui/components"
	"stageq/internal/tui/styles"
)

const nameWidth = 14

// Model renders one progress bar per stage plus run-wide rate charts.
type Model struct {
	Progress runner.Progress
	Bars     map[string]progress.Model

	RpsLine components.Sparkline
	ErrLine components.Sparkline

	LastUpdate    time.Time
	LastCompleted uint64
	LastFailed    uint64

	Width int
}

func NewModel() Model {
	return Model{
		Bars:       make(map[string]progress.Model),
		RpsLine:    components.NewSparkline(40, "Completed", "req/s", styles.Active),
		ErrLine:    components.NewSparkline(40, "Failed", "req/s", styles.Warn),
		LastUpdate: time.Now(),
		Width:      80,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.Progress:
		now := time.Now()
		dt := max(now.Sub(m.LastUpdate).Seconds(), 0.01)

		_, completed, failed := msg.Totals()
		m.RpsLine.Add(float64(completed-min(completed, m.LastCompleted)) / dt)
		m.ErrLine.Add(float64(failed-min(failed, m.LastFailed)) / dt)
		m.LastCompleted, m.LastFailed = completed, failed
		m.LastUpdate = now
		m.Progress = msg

		var cmds []tea.Cmd
		for _, st := range msg.Stages {
			bar, ok := m.Bars[st.Name]
			if !ok {
				bar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(m.barWidth()))
			}
			cmds = append(cmds, bar.SetPercent(st.Fraction()))
			m.Bars[st.Name] = bar
		}
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		for name, bar := range m.Bars {
			bar.Width = m.barWidth()
			m.Bars[name] = bar
		}
		half := max(msg.Width/2-4, 10)
		m.RpsLine.Width = half
		m.ErrLine.Width = half
		return m, nil

	case progress.FrameMsg:
		// frames carry the bar's id, only the owning bar reacts
		var cmds []tea.Cmd
		for name, bar := range m.Bars {
			next, cmd := bar.Update(msg)
			m.Bars[name] = next.(progress.Model)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) barWidth() int {
	return max(m.Width-nameWidth-40, 10)
}

func (m Model) View() string {
	var s strings.Builder

	sent, completed, failed := m.Progress.Totals()
	errRate := 0.0
	if sent > 0 {
		errRate = float64(failed) / float64(sent) * 100
	}

	errColor := styles.Active
	if errRate > 5.0 {
		errColor = styles.Error
	} else if errRate > 1.0 {
		errColor = styles.Warn
	}

	col1 := fmt.Sprintf("SENT: %d\nOK:   %d", sent, completed)
	col2 := fmt.Sprintf("ERR:  %.2f%%\nFAIL: %d", errRate, failed)
	col3 := fmt.Sprintf("ELAPSED: %s\nRUN: %s", m.Progress.Elapsed.Round(100*time.Millisecond), shortID(m.Progress.RunID))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(errColor.Render(col2)),
		styles.Box.Render(col3),
	))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.ErrLine.View()),
	))
	s.WriteString("\n\n")

	for _, st := range m.Progress.Stages {
		s.WriteString(stageLine(st, m.Bars[st.Name]))
		s.WriteString("\n")
	}

	return s.String()
}

func stageLine(st runner.StageProgress, bar progress.Model) string {
	name := runewidth.FillRight(runewidth.Truncate(st.Name, nameWidth, "~"), nameWidth)

	state := styles.Subtle.Render(st.State.String())
	switch {
	case st.State == runner.StateRunning:
		state = styles.Active.Render("running")
	case st.Timing.Skipped:
		state = styles.Warn.Render("skipped")
	case st.Timing.TimedOut:
		state = styles.Warn.Render("timeout")
	case st.Timing.Interrupted:
		state = styles.Error.Render("stopped")
	case st.State == runner.StateFinished:
		state = styles.Success.Render("done")
	}

	counts := fmt.Sprintf("%d/%d ok:%d err:%d", st.Sent, st.Target, st.Completed, st.Failed)
	return fmt.Sprintf("%s %s %-8s %s", name, bar.View(), state, styles.Subtle.Render(counts))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
