package notify

import (
	"fmt"
	"strings"

	"github.com/hearthlabs/shipbot/internal/domain"
)

// Builders for the five pipeline events. Each terminal state sends
// exactly one of these.

// ProcessingStarted announces that an item's cycle has begun.
func ProcessingStarted(item *domain.WorkItem) Notification {
	return Notification{
		Title:   fmt.Sprintf("Work item #%d started", item.ID),
		Message: item.Title(),
		Type:    NotifyInfo,
		ItemID:  item.ID,
	}
}

// Completed announces an auto-merged or approved change that made it to
// main. The release label is included only if the release process stamped
// the merge in time.
func Completed(item *domain.WorkItem, summary, location, releaseLabel string) Notification {
	lines := []string{}
	if summary != "" {
		lines = append(lines, summary)
	}
	if location != "" {
		lines = append(lines, "Live at "+location)
	}
	if releaseLabel != "" {
		lines = append(lines, "Release "+releaseLabel)
	}
	return Notification{
		Title:   fmt.Sprintf("Work item #%d shipped: %s", item.ID, item.Title()),
		Message: strings.Join(lines, "\n"),
		Type:    NotifySuccess,
		ItemID:  item.ID,
		URL:     location,
	}
}

// NeedsReview announces that a change was parked on its branch for a human
// to look at.
func NeedsReview(item *domain.WorkItem, branch, reasons string) Notification {
	return Notification{
		Title: fmt.Sprintf("Work item #%d needs review: %s", item.ID, item.Title()),
		Message: fmt.Sprintf("Branch %s is waiting for review.\nReasons: %s",
			branch, reasons),
		Type:        NotifyWarning,
		ItemID:      item.ID,
		ForReviewer: true,
	}
}

// Blocked announces that a change touched a protected path and was
// discarded without a commit.
func Blocked(item *domain.WorkItem, reasons string) Notification {
	return Notification{
		Title: fmt.Sprintf("Work item #%d blocked: %s", item.ID, item.Title()),
		Message: fmt.Sprintf("The change was discarded without committing.\nReasons: %s",
			reasons),
		Type:        NotifyError,
		ItemID:      item.ID,
		ForReviewer: true,
	}
}

// Failed announces a cycle that ended in an error. The error text is
// truncated so a flapping agent cannot flood the channel.
func Failed(item *domain.WorkItem, errText string) Notification {
	return Notification{
		Title:   fmt.Sprintf("Work item #%d failed: %s", item.ID, item.Title()),
		Message: domain.Truncate(errText, 300),
		Type:    NotifyError,
		ItemID:  item.ID,
	}
}
