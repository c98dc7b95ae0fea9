package maintenance

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Gate decides when the nightly sweep is due. The daemon loop asks it
// between ticks instead of running a second timer.
type Gate struct {
	schedule cron.Schedule
	lastRun  time.Time
	mu       sync.Mutex
}

// NewGate parses the cron expression and returns a gate for it.
func NewGate(expr string) (*Gate, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Gate{schedule: schedule}, nil
}

// Due reports whether a scheduled run has passed since the last one.
func (g *Gate) Due(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lastRun := g.lastRun
	if lastRun.IsZero() {
		lastRun = now.Add(-24 * time.Hour)
	}
	return now.After(g.schedule.Next(lastRun))
}

// MarkRan records a completed run.
func (g *Gate) MarkRan(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRun = now
}
