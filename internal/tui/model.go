package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"stageq/internal/runner"
	"stageq/internal/tui/live"
	"stageq/internal/tui/styles"
)

const tickInterval = 200 * time.Millisecond

type doneMsg struct {
	res *runner.Result
	err error
}

// Model drives one scheduler run and shows it live. The program quits on
// its own once every stage has finished.
type Model struct {
	sched  *runner.Scheduler
	specs  []runner.StageSpec
	ctx    context.Context
	cancel context.CancelFunc

	updates runner.ProgressChan
	Live    live.Model

	Result    *runner.Result
	Err       error
	Cancelled bool
	done      bool
}

func NewModel(ctx context.Context, s *runner.Scheduler, specs []runner.StageSpec) Model {
	ctx, cancel := context.WithCancel(ctx)
	return Model{
		sched:   s,
		specs:   specs,
		ctx:     ctx,
		cancel:  cancel,
		updates: make(runner.ProgressChan, 100),
		Live:    live.NewModel(),
	}
}

func (m Model) Init() tea.Cmd {
	m.sched.StartTickLoop(m.ctx, tickInterval, m.updates)
	return tea.Batch(m.runCmd(), waitForProgress(m.updates))
}

func (m Model) runCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := m.sched.Run(m.ctx, m.specs)
		return doneMsg{res: res, err: err}
	}
}

func waitForProgress(ch runner.ProgressChan) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			// stop the run, the report still covers what was recorded
			m.Cancelled = true
			m.cancel()
			return m, nil
		}

	case doneMsg:
		m.Result, m.Err = msg.res, msg.err
		m.done = true
		m.cancel()
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(m.sched.Progress())
		return m, tea.Sequence(cmd, tea.Quit)

	case runner.Progress:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		if m.done {
			return m, cmd
		}
		return m, tea.Batch(cmd, waitForProgress(m.updates))

	case tea.WindowSizeMsg:
		var cmd tea.Cmd
		m.Live, cmd = m.Live.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.Live, cmd = m.Live.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var s strings.Builder

	cfg := m.sched.Config()
	s.WriteString(styles.Title.Render("🚀 stageq load test"))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("URL: %s | Stages: %d | Timeout: %s\n", cfg.BaseURL, len(m.specs), cfg.Timeout))
	s.WriteString("\n")

	s.WriteString(m.Live.View())
	s.WriteString("\n")

	switch {
	case m.done:
		s.WriteString(styles.Success.Render("Run finished."))
	case m.Cancelled:
		s.WriteString(styles.Warn.Render("Stopping, waiting for stages to wind down..."))
	default:
		s.WriteString(styles.RenderKey("q", "stop run"))
	}
	s.WriteString("\n")
	return s.String()
}
