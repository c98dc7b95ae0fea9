// Package release polls for the version label an external release process
// stamps onto integrated commits. The stamp arrives some time after merge,
// so callers wait for it with a bounded window and carry on without a
// label if the window closes first.
package release

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Source answers whether a commit has been stamped with a release label.
type Source interface {
	ReleaseFor(sha string) (string, error)
}

// TagReader is the slice of the source tree controller a GitTagSource
// needs. *repo.Tree satisfies it.
type TagReader interface {
	FetchTags() error
	TagsAt(sha string) ([]string, error)
}

// GitTagSource reads release labels from tags the release process pushes
// onto the integrated line.
type GitTagSource struct {
	tree   TagReader
	prefix string
}

// NewGitTagSource creates a source that recognizes tags with the given
// prefix, for example "v" or "release-". An empty prefix accepts any tag.
func NewGitTagSource(tree TagReader, prefix string) *GitTagSource {
	return &GitTagSource{tree: tree, prefix: prefix}
}

// ReleaseFor fetches tags and returns the first release tag pointing at
// the commit, or "" if it has not been stamped yet.
func (g *GitTagSource) ReleaseFor(sha string) (string, error) {
	if err := g.tree.FetchTags(); err != nil {
		return "", err
	}
	tags, err := g.tree.TagsAt(sha)
	if err != nil {
		return "", err
	}
	for _, tag := range tags {
		if g.prefix == "" || strings.HasPrefix(tag, g.prefix) {
			return tag, nil
		}
	}
	return "", nil
}

// Waiter polls a Source for a bounded window after a merge.
type Waiter struct {
	Source Source
	Window time.Duration
	Every  time.Duration
	Logger *slog.Logger
}

// Wait polls until the commit is stamped or the window elapses. It returns
// the label and true on a stamp, or "" and false if the window closed
// without one. A closed window is not an error; the change is live either
// way, just without a version label to report.
func (w *Waiter) Wait(ctx context.Context, sha string) (string, bool) {
	every := w.Every
	if every <= 0 {
		every = 10 * time.Second
	}

	deadline := time.Now().Add(w.Window)
	for {
		label, err := w.Source.ReleaseFor(sha)
		if err != nil {
			if w.Logger != nil {
				w.Logger.Warn("release lookup failed", "sha", sha, "error", err)
			}
		} else if label != "" {
			return label, true
		}

		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(every):
		}
	}

	if w.Logger != nil {
		w.Logger.Warn("release window closed without a stamp", "sha", sha, "window", w.Window)
	}
	return "", false
}
