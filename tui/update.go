package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const tabCount = 2

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.scroll = 0
		case "j", "down":
			if m.scroll < m.maxScroll() {
				m.scroll++
			}
		case "k", "up":
			if m.scroll > 0 {
				m.scroll--
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())

	case DataMsg:
		m.fetchErr = msg.Err
		if msg.Err == nil {
			m.recent = msg.Recent
			m.inFlight = msg.InFlight
			m.cycles = msg.Cycles
			m.stats = msg.Stats
			m.lastRefresh = time.Now()
			if max := m.maxScroll(); m.scroll > max {
				m.scroll = max
			}
		}
	}

	return m, nil
}

func (m Model) maxScroll() int {
	rows := len(m.recent)
	if m.activeTab == 1 {
		rows = len(m.cycles)
	}
	if rows == 0 {
		return 0
	}
	return rows - 1
}
