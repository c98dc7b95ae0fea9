package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
	"github.com/hearthlabs/shipbot/internal/notify"
	"github.com/hearthlabs/shipbot/internal/prompts"
	"github.com/hearthlabs/shipbot/internal/risk"
	"github.com/hearthlabs/shipbot/internal/runlog"
	"github.com/hearthlabs/shipbot/internal/workstore"
)

// processPending drives one pending item from dequeue to a terminal
// state. Whatever happens inside, the tree is restored to a clean main
// afterwards and the cycle lands in the ledger.
func (o *Orchestrator) processPending(ctx context.Context, item *domain.WorkItem) {
	cycle := &runlog.Cycle{ItemID: item.ID, StartedAt: time.Now()}

	// The branch name is fixed for the item's whole life, so a retried
	// item keeps the one it was given first.
	branch := item.BranchName
	if branch == "" {
		branch = domain.BranchName(item.ID, item.Description, cycle.StartedAt)
	}

	o.logger.Info("cycle started", "item", item.ID, "title", item.Title())
	o.publish(EventCycleStarted, item, "")

	// Restore runs on every exit, including panics. The normal flow
	// already discards what it must, but the error paths get here with
	// the tree in whatever state the failure left it.
	defer func() {
		if err := o.tree.DiscardAll(); err != nil {
			o.logger.Error("tree restore failed", "item", item.ID, "error", err)
		}
	}()

	if err := o.runPending(ctx, item, branch, cycle); err != nil {
		msg := domain.Truncate(err.Error(), maxErrorLen)
		cycle.Outcome = domain.StatusFailed
		cycle.ErrorKind = kindOf(err)
		cycle.ErrorMessage = msg
		o.completeOrLog(ctx, item.ID, workstore.Completion{
			Status:          domain.StatusFailed,
			ProgressMessage: msg,
		})
		o.send(notify.Failed(item, msg))
		o.publish(EventFailed, item, msg)
		o.logger.Error("cycle failed", "item", item.ID, "kind", cycle.ErrorKind, "error", err)
	}

	o.record(cycle)
	o.logger.Info("cycle finished", "item", item.ID, "outcome", cycle.Outcome,
		"duration", cycle.Duration().Round(time.Millisecond))
}

// runPending is the pending-item state machine. Expected terminal
// outcomes (completed, review, blocked, no changes) are written to the
// store and notified here and return nil; only unexpected failures
// escape as errors, for the caller to mark failed.
func (o *Orchestrator) runPending(ctx context.Context, item *domain.WorkItem, branch string, cycle *runlog.Cycle) error {
	// claim the item and put the tree on a clean, current main
	if err := o.store.SetStatus(ctx, item.ID, domain.StatusProcessing, "preparing a clean tree"); err != nil {
		return fmt.Errorf("claim item: %w", err)
	}
	o.send(notify.ProcessingStarted(item))
	if err := o.tree.SyncToMain(); err != nil {
		return err
	}

	// run the agent with the fixed permission envelope
	if err := o.store.SetStatus(ctx, item.ID, domain.StatusBuilding, "agent is building the change"); err != nil {
		return fmt.Errorf("mark building: %w", err)
	}
	o.publish(EventBuilding, item, "")
	instruction, err := o.prompts.BuildInstruction(prompts.WorkOrderData{
		Description:    item.Description,
		Requester:      item.Requester,
		ForbiddenPaths: o.opts.ForbiddenPaths,
		MaxTurns:       o.opts.MaxTurns,
	})
	if err != nil {
		return fmt.Errorf("render instruction: %w", err)
	}

	result, err := o.agent.Run(ctx, item.ID, instruction, o.opts.RepoRoot)
	if err != nil {
		return err
	}
	report := result.Report
	cycle.TokensInput = result.TokensInput
	cycle.TokensOutput = result.TokensOutput
	cycle.CostUSD = result.CostUSD

	// the tree, not the report, is the ground truth for what changed
	diff, err := o.tree.Diff()
	if err != nil {
		return err
	}
	cycle.FilesCreated = len(diff.Created())
	cycle.FilesModified = len(diff.Touched())

	if diff.Empty() {
		cycle.Outcome = domain.StatusFailed
		cycle.ErrorKind = domain.ErrKindNoChanges
		cycle.ErrorMessage = noChangesMessage
		o.completeOrLog(ctx, item.ID, workstore.Completion{
			Status:          domain.StatusFailed,
			ProgressMessage: noChangesMessage,
			BuildSummary:    report.Summary,
		})
		o.send(notify.Failed(item, noChangesMessage))
		return nil
	}

	verdict := o.classify.Classify(diff, report.Risk)
	assessment := risk.Merge(verdict, report.Risk)
	cycle.Decision = verdict.Decision
	o.publish(EventClassified, item, string(verdict.Decision)+": "+verdict.Reason())

	if verdict.Decision == domain.DecisionBlock {
		// never commit a blocked change
		if err := o.tree.DiscardAll(); err != nil {
			return err
		}
		msg := domain.Truncate("blocked: "+verdict.Reason(), maxErrorLen)
		cycle.Outcome = domain.StatusFailed
		cycle.ErrorKind = domain.ErrKindHardBlocked
		cycle.ErrorMessage = msg
		o.completeOrLog(ctx, item.ID, workstore.Completion{
			Status:          domain.StatusFailed,
			Risk:            assessment,
			ProgressMessage: msg,
			BuildSummary:    report.Summary,
		})
		o.send(notify.Blocked(item, verdict.Reason()))
		o.publish(EventBlocked, item, verdict.Reason())
		return nil
	}

	// branch, commit, push
	if err := o.tree.CreateBranch(branch); err != nil {
		return err
	}
	commitSHA, err := o.tree.CommitAll(commitMessage(item))
	if err != nil {
		return err
	}
	if err := o.tree.Push(branch); err != nil {
		return err
	}
	cycle.Branch = branch
	cycle.CommitSHA = commitSHA

	if verdict.Decision == domain.DecisionNeedsReview {
		// park the branch for a human
		cycle.Outcome = domain.StatusReview
		cycle.DeployDecision = domain.DeployBranchedForReview
		o.completeOrLog(ctx, item.ID, workstore.Completion{
			Status:          domain.StatusReview,
			DeployDecision:  domain.DeployBranchedForReview,
			BranchName:      branch,
			CommitSHA:       commitSHA,
			FilesCreated:    diff.Created(),
			FilesModified:   diff.Touched(),
			Risk:            assessment,
			ProgressMessage: "waiting for review on " + branch,
			BuildSummary:    report.Summary,
			PageURL:         report.PageURL,
		})
		o.send(notify.NeedsReview(item, branch, verdict.Reason()))
		o.publish(EventReview, item, branch)
		return nil
	}

	// auto-merge into main
	mergeSHA, err := o.tree.Merge(branch, mergeMessage(item, branch))
	if err != nil {
		return err
	}
	if err := o.tree.Push(o.tree.MainBranch()); err != nil {
		return err
	}
	o.publish(EventMerged, item, mergeSHA)

	label := o.waitForRelease(ctx, mergeSHA)

	if err := o.tree.DeleteBranch(branch); err != nil {
		// the merge is in; a stale branch is cosmetic
		o.logger.Warn("branch cleanup failed", "branch", branch, "error", err)
	}

	progress := "auto-merged to " + o.tree.MainBranch()
	if label != "" {
		progress += " (release " + label + ")"
	}

	cycle.Outcome = domain.StatusCompleted
	cycle.DeployDecision = domain.DeployAutoMerged
	cycle.MergeSHA = mergeSHA
	cycle.ReleaseLabel = label
	o.completeOrLog(ctx, item.ID, workstore.Completion{
		Status:          domain.StatusCompleted,
		DeployDecision:  domain.DeployAutoMerged,
		BranchName:      branch,
		CommitSHA:       commitSHA,
		MergeSHA:        mergeSHA,
		FilesCreated:    diff.Created(),
		FilesModified:   diff.Touched(),
		Risk:            assessment,
		ProgressMessage: progress,
		BuildSummary:    report.Summary,
		PageURL:         report.PageURL,
	})
	o.send(notify.Completed(item, report.Summary, o.location(report.PageURL), label))
	o.publish(EventCompleted, item, progress)
	return nil
}

// processApproved merges a branch a human approved after review. Failure
// sends the item back to review with the branch intact, never to failed;
// the work is done and sitting on the branch, only the merge needs a
// retry.
func (o *Orchestrator) processApproved(ctx context.Context, item *domain.WorkItem) {
	cycle := &runlog.Cycle{ItemID: item.ID, StartedAt: time.Now(), Branch: item.BranchName}

	o.logger.Info("approved merge started", "item", item.ID, "branch", item.BranchName)
	o.publish(EventCycleStarted, item, item.BranchName)

	defer func() {
		if err := o.tree.DiscardAll(); err != nil {
			o.logger.Error("tree restore failed", "item", item.ID, "error", err)
		}
	}()

	if err := o.runApproved(ctx, item, cycle); err != nil {
		msg := domain.Truncate("merge failed: "+err.Error(), maxErrorLen)
		cycle.Outcome = domain.StatusReview
		cycle.ErrorKind = domain.ErrKindMerge
		cycle.ErrorMessage = msg
		o.completeOrLog(ctx, item.ID, workstore.Completion{
			Status:          domain.StatusReview,
			ProgressMessage: msg,
		})
		o.send(notify.NeedsReview(item, item.BranchName, msg))
		o.publish(EventFailed, item, msg)
		o.logger.Error("approved merge failed", "item", item.ID, "error", err)
	}

	o.record(cycle)
	o.logger.Info("approved merge finished", "item", item.ID, "outcome", cycle.Outcome)
}

func (o *Orchestrator) runApproved(ctx context.Context, item *domain.WorkItem, cycle *runlog.Cycle) error {
	if item.BranchName == "" {
		return fmt.Errorf("approved item %d has no branch recorded", item.ID)
	}

	if err := o.tree.SyncToMain(); err != nil {
		return err
	}

	mergeSHA, err := o.tree.Merge(item.BranchName, mergeMessage(item, item.BranchName))
	if err != nil {
		return err
	}
	if err := o.tree.Push(o.tree.MainBranch()); err != nil {
		return err
	}
	o.publish(EventMerged, item, mergeSHA)

	label := o.waitForRelease(ctx, mergeSHA)

	if err := o.tree.DeleteBranch(item.BranchName); err != nil {
		o.logger.Warn("branch cleanup failed", "branch", item.BranchName, "error", err)
	}

	progress := "approved and merged to " + o.tree.MainBranch()
	if label != "" {
		progress += " (release " + label + ")"
	}

	cycle.Outcome = domain.StatusCompleted
	cycle.DeployDecision = domain.DeployAdminApproved
	cycle.MergeSHA = mergeSHA
	cycle.ReleaseLabel = label
	o.completeOrLog(ctx, item.ID, workstore.Completion{
		Status:          domain.StatusCompleted,
		DeployDecision:  domain.DeployAdminApproved,
		MergeSHA:        mergeSHA,
		ProgressMessage: progress,
	})
	o.send(notify.Completed(item, item.BuildSummary, o.location(item.PageURL), label))
	o.publish(EventCompleted, item, progress)
	return nil
}

// commitMessage embeds the item identifier so the history maps back to
// the queue.
func commitMessage(item *domain.WorkItem) string {
	return fmt.Sprintf("%s (work item #%d)", item.Title(), item.ID)
}

func mergeMessage(item *domain.WorkItem, branch string) string {
	return fmt.Sprintf("Merge %s (work item #%d)", branch, item.ID)
}
