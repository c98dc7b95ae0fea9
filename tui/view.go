package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hearthlabs/shipbot/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("244"))

	shippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	workingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	reviewStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimmedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(headerStyle.Width(m.width).Render(m.headerLine()))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case 0:
		section = m.renderQueue()
	case 1:
		section = m.renderCycles()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	if m.fetchErr != nil {
		b.WriteString(failedStyle.Width(m.width).Render(" refresh failed: " + m.fetchErr.Error()))
		b.WriteString("\n")
	}

	statusBar := " [tab]switch [j/k]scroll [r]efresh [q]uit "
	if !m.lastRefresh.IsZero() {
		statusBar += dimmedStyle.Render("updated " + m.lastRefresh.Format("15:04:05") + " ")
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))

	return b.String()
}

func (m Model) headerLine() string {
	header := fmt.Sprintf(" shipbot │ in flight: %d", len(m.inFlight))
	if m.stats != nil {
		header += fmt.Sprintf(" │ shipped: %d │ in review: %d │ failed: %d │ $%.2f",
			m.stats.Completed, m.stats.Review, m.stats.Failed, m.stats.CostUSD)
	}
	return header + " "
}

func (m Model) renderTabs() string {
	names := []string{"Queue", "Cycles"}
	tabs := make([]string, len(names))
	for i, name := range names {
		if i == m.activeTab {
			tabs[i] = tabActiveStyle.Render(name)
		} else {
			tabs[i] = tabInactiveStyle.Render(name)
		}
	}
	return " " + strings.Join(tabs, "  ")
}

func (m Model) renderQueue() string {
	var b strings.Builder
	b.WriteString("Work items\n\n")

	if len(m.recent) == 0 {
		b.WriteString(dimmedStyle.Render("nothing yet"))
		return b.String()
	}

	visible := m.visibleRows()
	for i, item := range m.recent {
		if i < m.scroll || i >= m.scroll+visible {
			continue
		}
		line := fmt.Sprintf("#%-4d %s  %-44s %s",
			item.ID,
			statusBadge(item.Status),
			domain.Truncate(item.Title(), 44),
			dimmedStyle.Render(fmtAge(time.Since(item.CreatedAt))))
		b.WriteString(line)
		b.WriteString("\n")
		if item.ProgressMessage != "" && !item.Status.IsTerminal() {
			b.WriteString(dimmedStyle.Render("      " + domain.Truncate(item.ProgressMessage, 70)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderCycles() string {
	var b strings.Builder
	b.WriteString("Cycle ledger\n\n")

	if len(m.cycles) == 0 {
		b.WriteString(dimmedStyle.Render("no cycles recorded"))
		return b.String()
	}

	visible := m.visibleRows()
	for i, c := range m.cycles {
		if i < m.scroll || i >= m.scroll+visible {
			continue
		}
		line := fmt.Sprintf("#%-4d %s  %-14s %6s",
			c.ItemID,
			outcomeBadge(c.Outcome),
			string(c.Decision),
			c.Duration().Round(time.Second))
		if c.ReleaseLabel != "" {
			line += "  " + shippedStyle.Render(c.ReleaseLabel)
		}
		if c.ErrorKind != domain.ErrKindNone {
			line += "  " + failedStyle.Render(string(c.ErrorKind))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// visibleRows leaves room for the chrome around the section.
func (m Model) visibleRows() int {
	rows := m.height - 8
	if rows < 5 {
		rows = 5
	}
	return rows
}

func statusBadge(s domain.Status) string {
	label := fmt.Sprintf("%-10s", s)
	switch s {
	case domain.StatusProcessing, domain.StatusBuilding:
		return workingStyle.Render(label)
	case domain.StatusReview, domain.StatusApproved:
		return reviewStyle.Render(label)
	case domain.StatusCompleted:
		return shippedStyle.Render(label)
	case domain.StatusFailed, domain.StatusCancelled:
		return failedStyle.Render(label)
	default:
		return dimmedStyle.Render(label)
	}
}

func outcomeBadge(s domain.Status) string {
	return statusBadge(s)
}

func fmtAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
