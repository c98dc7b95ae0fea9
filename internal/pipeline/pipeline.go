// Package pipeline is the state machine that turns pending work items
// into shipped changes: dequeue, prepare the tree, run the agent, diff,
// classify, commit, merge or park for review, notify, and return the tree
// to a clean state. The whole pipeline is serialized; the working
// directory is a singleton resource with exactly one writer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hearthlabs/shipbot/internal/agent"
	"github.com/hearthlabs/shipbot/internal/domain"
	"github.com/hearthlabs/shipbot/internal/notify"
	"github.com/hearthlabs/shipbot/internal/prompts"
	"github.com/hearthlabs/shipbot/internal/risk"
	"github.com/hearthlabs/shipbot/internal/runlog"
	"github.com/hearthlabs/shipbot/internal/workstore"
)

// Store is the work item queue the pipeline drains.
type Store interface {
	NextPending(ctx context.Context) (*domain.WorkItem, error)
	NextApproved(ctx context.Context) (*domain.WorkItem, error)
	SetStatus(ctx context.Context, id int64, status domain.Status, progress string) error
	Complete(ctx context.Context, id int64, c workstore.Completion) error
}

// Tree is the source tree controller. *repo.Tree satisfies it.
type Tree interface {
	SyncToMain() error
	Diff() (domain.Diff, error)
	CreateBranch(name string) error
	CommitAll(message string) (string, error)
	Push(branch string) error
	Merge(branch, message string) (string, error)
	DeleteBranch(name string) error
	DiscardAll() error
	MainBranch() string
}

// Agent runs the code-generation subprocess for one item.
type Agent interface {
	Run(ctx context.Context, itemID int64, instruction, dir string) (*agent.Result, error)
}

// Classifier decides how a change set may ship.
type Classifier interface {
	Classify(diff domain.Diff, self *domain.RiskAssessment) risk.Verdict
}

// Releases waits for the version stamp on a merge commit.
type Releases interface {
	Wait(ctx context.Context, sha string) (string, bool)
}

// Ledger records finished cycles.
type Ledger interface {
	Record(c *runlog.Cycle) error
}

// Instructions renders the agent instruction for one item.
type Instructions interface {
	BuildInstruction(data prompts.WorkOrderData) (string, error)
}

// Deps are the collaborators one Orchestrator drives.
type Deps struct {
	Store    Store
	Tree     Tree
	Agent    Agent
	Classify Classifier
	Releases Releases  // optional
	Ledger   Ledger    // optional
	Events   EventSink // optional
	Notify   notify.Notifier
	Prompts  Instructions
	Logger   *slog.Logger

	// Guard is the single-flight mutex. Leave nil for a private one;
	// inject a shared mutex to serialize several orchestrators.
	Guard *sync.Mutex
}

// Options tune one Orchestrator.
type Options struct {
	RepoRoot       string
	ForbiddenPaths []string
	MaxTurns       int
	SiteBaseURL    string
	PollInterval   time.Duration
}

// Orchestrator owns the poll loop and the single-flight guard. At most
// one agent subprocess, one tree mutation, and one work item transition
// happen at a time.
type Orchestrator struct {
	store    Store
	tree     Tree
	agent    Agent
	classify Classifier
	releases Releases
	ledger   Ledger
	events   EventSink
	notify   notify.Notifier
	prompts  Instructions
	logger   *slog.Logger
	inflight *sync.Mutex

	opts Options
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guard := deps.Guard
	if guard == nil {
		guard = &sync.Mutex{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	return &Orchestrator{
		store:    deps.Store,
		tree:     deps.Tree,
		agent:    deps.Agent,
		classify: deps.Classify,
		releases: deps.Releases,
		ledger:   deps.Ledger,
		events:   deps.Events,
		notify:   deps.Notify,
		prompts:  deps.Prompts,
		logger:   logger,
		inflight: guard,
		opts:     opts,
	}
}

// Start polls the queue until the context is cancelled. Ticks that land
// while a cycle is running are dropped, not queued.
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.Info("pipeline started", "poll_interval", o.opts.PollInterval)

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := o.RunOnce(ctx); err != nil {
			o.logger.Error("poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			o.logger.Info("pipeline stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce processes at most one work item: the oldest pending one, or
// failing that the oldest approved one. It reports whether an item was
// processed. A tick that arrives while another cycle holds the guard is
// a no-op.
func (o *Orchestrator) RunOnce(ctx context.Context) (bool, error) {
	if !o.inflight.TryLock() {
		return false, nil
	}
	defer o.inflight.Unlock()

	item, err := o.store.NextPending(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch pending: %w", err)
	}
	if item != nil {
		o.processPending(ctx, item)
		return true, nil
	}

	item, err = o.store.NextApproved(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch approved: %w", err)
	}
	if item != nil {
		o.processApproved(ctx, item)
		return true, nil
	}

	return false, nil
}

// send delivers a notification best-effort. Delivery failure never fails
// a cycle.
func (o *Orchestrator) send(n notify.Notification) {
	if o.notify == nil {
		return
	}
	if err := o.notify.Send(n); err != nil {
		o.logger.Warn("notification failed", "title", n.Title, "error", err)
	}
}

// completeOrLog writes a store update the cycle outcome does not depend
// on. By the time it runs the change is already live, parked, or
// discarded, so a store flake is logged instead of rewriting history.
func (o *Orchestrator) completeOrLog(ctx context.Context, id int64, c workstore.Completion) {
	if err := o.store.Complete(ctx, id, c); err != nil {
		o.logger.Error("store update failed", "item", id, "status", c.Status, "error", err)
	}
}

// record appends the cycle to the ledger.
func (o *Orchestrator) record(cycle *runlog.Cycle) {
	cycle.FinishedAt = time.Now()
	if o.ledger == nil {
		return
	}
	if err := o.ledger.Record(cycle); err != nil {
		o.logger.Warn("ledger write failed", "item", cycle.ItemID, "error", err)
	}
}

// waitForRelease polls for a version stamp when a waiter is configured.
func (o *Orchestrator) waitForRelease(ctx context.Context, sha string) string {
	if o.releases == nil {
		return ""
	}
	label, _ := o.releases.Wait(ctx, sha)
	return label
}

// location turns the agent's page path into a shareable URL when a site
// base is configured.
func (o *Orchestrator) location(pageURL string) string {
	if pageURL == "" {
		return ""
	}
	if o.opts.SiteBaseURL != "" && strings.HasPrefix(pageURL, "/") {
		return strings.TrimSuffix(o.opts.SiteBaseURL, "/") + pageURL
	}
	return pageURL
}
