package intake

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hearthlabs/shipbot/internal/domain"
)

// processedDir is where ingested order files end up, relative to the
// orders directory.
const processedDir = "processed"

// Inserter is the slice of the work item store the watcher needs.
type Inserter interface {
	Insert(ctx context.Context, description, requester string) (*domain.WorkItem, error)
}

// Watcher ingests *.md order files from a drop directory. Rapid editor
// saves are debounced so a file is read once, after it settles.
type Watcher struct {
	dir      string
	store    Inserter
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the given orders directory, creating
// it if needed.
func NewWatcher(dir string, store Inserter, logger *slog.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, processedDir), 0755); err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		store:    store,
		logger:   logger,
		watcher:  fsWatcher,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
	}, nil
}

// SetDebounce sets the debounce duration for batching file changes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching for order files. It first sweeps the directory
// so orders dropped while the daemon was down are not lost.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)

	if n, err := w.Sweep(w.ctx); err != nil {
		w.logger.Warn("order sweep failed", "dir", w.dir, "error", err)
	} else if n > 0 {
		w.logger.Info("ingested orders from sweep", "count", n)
	}

	go func() {
		for {
			select {
			case <-w.ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("order watcher error", "error", err)
			}
		}
	}()
}

// Stop stops watching for order files
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for path := range pending {
		w.ingest(w.ctx, path)
	}
}

// Sweep ingests every order file already sitting in the directory and
// returns how many became work items.
func (w *Watcher) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if w.ingest(ctx, filepath.Join(w.dir, entry.Name())) {
			count++
		}
	}
	return count, nil
}

// ingest reads one order file, inserts it as a pending work item, and
// moves the file to processed/. Malformed files are left in place so the
// author can fix them.
func (w *Watcher) ingest(ctx context.Context, path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("cannot read order file", "path", path, "error", err)
		}
		return false
	}

	order, err := ParseOrder(content)
	if err != nil {
		w.logger.Warn("malformed order file left in place", "path", path, "error", err)
		return false
	}

	item, err := w.store.Insert(ctx, order.Description, order.Requester)
	if err != nil {
		w.logger.Warn("could not enqueue order", "path", path, "error", err)
		return false
	}

	dest := filepath.Join(w.dir, processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Warn("could not move ingested order", "path", path, "error", err)
	}

	w.logger.Info("order enqueued", "item", item.ID, "path", path)
	return true
}
