package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const maxSlugLen = 40

// BranchName returns the branch for a work item: a slug of the description,
// a date stamp, and the item id. The id keeps names unique even when the
// same description is enqueued twice; callers assign the name once and
// reuse it for the item's whole lifetime.
func BranchName(id int64, description string, now time.Time) string {
	return fmt.Sprintf("shipbot/%s-%s-%d", Slug(description), now.Format("20060102"), id)
}

// Slug lowercases the text and collapses everything that is not a letter
// or digit into single hyphens, capped at a branch-friendly length.
func Slug(s string) string {
	var b strings.Builder
	lastHyphen := true // trims leading hyphens
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "change"
	}
	return slug
}

// Truncate cuts s to at most max bytes, never splitting a rune, and marks
// the cut with an ellipsis. Used for error text pushed to the store and
// to notification channels.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
