// Package maintenance contains the janitor sweeps that keep the pipeline
// healthy across restarts: failing orphaned items, pruning dead branches,
// and trimming the cycle ledger.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
	"github.com/hearthlabs/shipbot/internal/runlog"
	"github.com/hearthlabs/shipbot/internal/workstore"
)

// pruneScanLimit bounds how far back one branch-pruning pass looks.
const pruneScanLimit = 500

// ItemStore is the slice of the work item store the janitor needs.
type ItemStore interface {
	InFlight(ctx context.Context) ([]domain.WorkItem, error)
	Get(ctx context.Context, id int64) (*domain.WorkItem, error)
	Complete(ctx context.Context, id int64, c workstore.Completion) error
}

// Ledger is the slice of the run ledger the janitor needs.
type Ledger interface {
	Recent(limit int) ([]*runlog.Cycle, error)
	Prune(before time.Time) (int64, error)
}

// BranchDeleter deletes one branch locally and on the remote.
type BranchDeleter interface {
	DeleteBranch(name string) error
}

// Janitor runs the maintenance sweeps.
type Janitor struct {
	Store  ItemStore
	Ledger Ledger
	Tree   BranchDeleter
	Logger *slog.Logger

	StaleAfter time.Duration // in-flight items older than this are orphans
	KeepBranch time.Duration // review branches of dead items survive this long
	KeepLedger time.Duration // cycle rows older than this are vacuumed
}

// Run executes all sweeps. Each sweep is independent; one failing does
// not stop the others.
func (j *Janitor) Run(ctx context.Context) {
	if n, err := j.FailOrphans(ctx, j.StaleAfter); err != nil {
		j.Logger.Warn("orphan sweep failed", "error", err)
	} else if n > 0 {
		j.Logger.Info("failed orphaned items", "count", n)
	}

	if n, err := j.PruneBranches(ctx); err != nil {
		j.Logger.Warn("branch pruning failed", "error", err)
	} else if n > 0 {
		j.Logger.Info("pruned branches", "count", n)
	}

	if n, err := j.VacuumLedger(); err != nil {
		j.Logger.Warn("ledger vacuum failed", "error", err)
	} else if n > 0 {
		j.Logger.Info("vacuumed ledger rows", "count", n)
	}
}

// FailOrphans marks in-flight items older than the cutoff as failed.
// Nothing survives a pipeline restart mid-cycle: the tree is re-synced
// before every cycle, so an orphaned item can only ever be half-reported,
// never half-applied. The daemon calls this with a zero cutoff at startup
// because at that moment any in-flight item is by definition abandoned.
func (j *Janitor) FailOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	items, err := j.Store.InFlight(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0
	for i := range items {
		item := &items[i]

		age := now.Sub(item.CreatedAt)
		if item.StartedAt != nil {
			age = now.Sub(*item.StartedAt)
		}
		if age < olderThan {
			continue
		}

		err := j.Store.Complete(ctx, item.ID, workstore.Completion{
			Status:          domain.StatusFailed,
			ProgressMessage: "interrupted by restart",
		})
		if err != nil {
			j.Logger.Warn("could not fail orphaned item", "item", item.ID, "error", err)
			continue
		}
		j.Logger.Info("orphaned item marked failed", "item", item.ID, "age", age.Round(time.Second))
		count++
	}
	return count, nil
}

// PruneBranches deletes branches whose work item reached a terminal state
// without the branch ever merging, once they are old enough. Review and
// approved items keep their branches; those are still someone's pending
// decision.
func (j *Janitor) PruneBranches(ctx context.Context) (int, error) {
	cycles, err := j.Ledger.Recent(pruneScanLimit)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-j.KeepBranch)
	seen := make(map[string]struct{})
	count := 0
	for _, cycle := range cycles {
		if cycle.Branch == "" || cycle.MergeSHA != "" {
			continue
		}
		if cycle.FinishedAt.After(cutoff) {
			continue
		}
		if _, done := seen[cycle.Branch]; done {
			continue
		}
		seen[cycle.Branch] = struct{}{}

		item, err := j.Store.Get(ctx, cycle.ItemID)
		if err != nil {
			if !errors.Is(err, workstore.ErrNotFound) {
				j.Logger.Warn("could not look up item for branch", "item", cycle.ItemID, "error", err)
				continue
			}
			// row gone, the branch has no owner left
		} else if !item.Status.IsTerminal() {
			continue
		}

		if err := j.Tree.DeleteBranch(cycle.Branch); err != nil {
			// usually already deleted by an earlier pass
			j.Logger.Debug("branch delete skipped", "branch", cycle.Branch, "error", err)
			continue
		}
		j.Logger.Info("pruned branch", "branch", cycle.Branch, "item", cycle.ItemID)
		count++
	}
	return count, nil
}

// VacuumLedger deletes cycle rows past the retention window.
func (j *Janitor) VacuumLedger() (int64, error) {
	return j.Ledger.Prune(time.Now().Add(-j.KeepLedger))
}
