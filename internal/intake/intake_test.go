package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
)

func TestParseOrder(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		wantRequester string
		wantDesc      string
		wantErr       bool
	}{
		{
			name: "frontmatter and body",
			content: `---
requester: dana
title: Add a pricing page
---
Three tiers, annual discount toggle.`,
			wantRequester: "dana",
			wantDesc:      "Add a pricing page\n\nThree tiers, annual discount toggle.",
		},
		{
			name:     "no frontmatter",
			content:  "Fix the footer links.",
			wantDesc: "Fix the footer links.",
		},
		{
			name: "title only",
			content: `---
title: Swap the hero image
---
`,
			wantDesc: "Swap the hero image",
		},
		{
			name: "empty body no title",
			content: `---
requester: dana
---
`,
			wantErr: true,
		},
		{
			name:    "empty file",
			content: "",
			wantErr: true,
		},
		{
			name: "broken yaml",
			content: `---
requester: [unclosed
---
body`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := ParseOrder([]byte(tt.content))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOrder failed: %v", err)
			}
			if order.Requester != tt.wantRequester {
				t.Errorf("Requester = %q, want %q", order.Requester, tt.wantRequester)
			}
			if order.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", order.Description, tt.wantDesc)
			}
		})
	}
}

type fakeInserter struct {
	mu       sync.Mutex
	inserted []string
	err      error
}

func (f *fakeInserter) Insert(ctx context.Context, description, requester string) (*domain.WorkItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, description)
	return &domain.WorkItem{ID: int64(len(f.inserted)), Description: description, Requester: requester}, nil
}

func (f *fakeInserter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	store := &fakeInserter{}

	watcher, err := NewWatcher(dir, store, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	if err := os.WriteFile(filepath.Join(dir, "order1.md"), []byte("Fix the footer."), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "order2.md"), []byte("Add a pricing page."), 0644); err != nil {
		t.Fatal(err)
	}
	// a non-order file that must be ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatal(err)
	}

	count, err := watcher.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("ingested = %d, want 2", count)
	}
	if len(store.inserted) != 2 {
		t.Errorf("inserted = %d, want 2", len(store.inserted))
	}

	// ingested files move to processed/
	for _, name := range []string{"order1.md", "order2.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should have moved out of the drop dir", name)
		}
		if _, err := os.Stat(filepath.Join(dir, processedDir, name)); err != nil {
			t.Errorf("%s should be in processed/: %v", name, err)
		}
	}
}

func TestSweep_MalformedLeftInPlace(t *testing.T) {
	dir := t.TempDir()
	store := &fakeInserter{}

	watcher, err := NewWatcher(dir, store, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	bad := filepath.Join(dir, "empty.md")
	if err := os.WriteFile(bad, []byte("---\nrequester: dana\n---\n"), 0644); err != nil {
		t.Fatal(err)
	}

	count, err := watcher.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("ingested = %d, want 0", count)
	}
	if _, err := os.Stat(bad); err != nil {
		t.Error("malformed order should stay in the drop dir for fixing")
	}
}

func TestSweep_StoreErrorLeavesFile(t *testing.T) {
	dir := t.TempDir()
	store := &fakeInserter{err: errors.New("store unreachable")}

	watcher, err := NewWatcher(dir, store, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	path := filepath.Join(dir, "order.md")
	if err := os.WriteFile(path, []byte("Fix the footer."), 0644); err != nil {
		t.Fatal(err)
	}

	count, err := watcher.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("ingested = %d, want 0", count)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("order should stay in place when the store is unreachable")
	}
}

func TestWatcher_IngestsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	store := &fakeInserter{}

	watcher, err := NewWatcher(dir, store, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()
	watcher.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	if err := os.WriteFile(filepath.Join(dir, "dropped.md"), []byte("Add a careers page."), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if store.count() == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("dropped order was not ingested, count = %d", store.count())
}
