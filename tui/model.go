// Package tui is a read-only terminal dashboard: the work queue on one
// tab, the cycle ledger on the other. Approving and rejecting stay in
// the admin panel; the dashboard only watches.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hearthlabs/shipbot/internal/domain"
	"github.com/hearthlabs/shipbot/internal/runlog"
)

const fetchLimit = 30

// Items is the work item store view the dashboard polls.
type Items interface {
	Recent(ctx context.Context, limit int) ([]domain.WorkItem, error)
	InFlight(ctx context.Context) ([]domain.WorkItem, error)
}

// History is the cycle ledger view. May be nil when the ledger is
// disabled.
type History interface {
	Recent(limit int) ([]*runlog.Cycle, error)
	Stats() (*runlog.Stats, error)
}

// Model is the dashboard model.
type Model struct {
	items   Items
	history History

	recent   []domain.WorkItem
	inFlight []domain.WorkItem
	cycles   []*runlog.Cycle
	stats    *runlog.Stats
	fetchErr error

	width     int
	height    int
	activeTab int
	scroll    int

	refreshEvery time.Duration
	lastRefresh  time.Time
}

// NewModel creates a dashboard backed by the given stores.
func NewModel(items Items, history History, refreshEvery time.Duration) Model {
	if refreshEvery <= 0 {
		refreshEvery = 2 * time.Second
	}
	return Model{items: items, history: history, refreshEvery: refreshEvery}
}

// Init starts the first fetch and the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), m.tickCmd())
}

// TickMsg triggers a refresh.
type TickMsg time.Time

// DataMsg carries one refresh worth of store state.
type DataMsg struct {
	Recent   []domain.WorkItem
	InFlight []domain.WorkItem
	Cycles   []*runlog.Cycle
	Stats    *runlog.Stats
	Err      error
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshEvery, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) fetchCmd() tea.Cmd {
	items, history := m.items, m.history
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var msg DataMsg
		if msg.Recent, msg.Err = items.Recent(ctx, fetchLimit); msg.Err != nil {
			return msg
		}
		if msg.InFlight, msg.Err = items.InFlight(ctx); msg.Err != nil {
			return msg
		}
		if history != nil {
			if msg.Cycles, msg.Err = history.Recent(fetchLimit); msg.Err != nil {
				return msg
			}
			if msg.Stats, msg.Err = history.Stats(); msg.Err != nil {
				return msg
			}
		}
		return msg
	}
}
