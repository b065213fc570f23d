package tui

import tea "github.com/charmbracelet/bubbletea"

func keyQ() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
}
