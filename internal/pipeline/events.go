package pipeline

import (
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
)

// EventType names an observable pipeline moment.
type EventType string

const (
	EventCycleStarted EventType = "cycle_started"
	EventBuilding     EventType = "building"
	EventClassified   EventType = "classified"
	EventMerged       EventType = "merged"
	EventCompleted    EventType = "completed"
	EventReview       EventType = "review"
	EventBlocked      EventType = "blocked"
	EventFailed       EventType = "failed"
)

// Event is one pipeline moment, published as it happens. Events arrive
// in order because the pipeline runs on a single goroutine.
type Event struct {
	Type   EventType `json:"type"`
	ItemID int64     `json:"item_id"`
	Title  string    `json:"title"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// EventSink receives pipeline events. Publish is called from the
// pipeline goroutine and must not block.
type EventSink interface {
	Publish(Event)
}

func (o *Orchestrator) publish(t EventType, item *domain.WorkItem, detail string) {
	if o.events == nil {
		return
	}
	o.events.Publish(Event{
		Type:   t,
		ItemID: item.ID,
		Title:  item.Title(),
		Detail: detail,
		At:     time.Now(),
	})
}
