package domain

import (
	"reflect"
	"testing"
)

func TestDiffEmpty(t *testing.T) {
	if !(Diff{}).Empty() {
		t.Error("empty Diff should report Empty")
	}
	d := Diff{{Path: "a.go", Kind: ChangeCreated}}
	if d.Empty() {
		t.Error("non-empty Diff should not report Empty")
	}
}

func TestDiffPartitions(t *testing.T) {
	d := Diff{
		{Path: "pages/new.tsx", Kind: ChangeCreated},
		{Path: "lib/auth.ts", Kind: ChangeModified},
		{Path: "pages/old.tsx", Kind: ChangeDeleted},
	}

	if got, want := d.Created(), []string{"pages/new.tsx"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Created() = %v, want %v", got, want)
	}
	// deletions count as touching existing files
	if got, want := d.Touched(), []string{"lib/auth.ts", "pages/old.tsx"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Touched() = %v, want %v", got, want)
	}
	if got := d.Paths(); len(got) != 3 {
		t.Errorf("Paths() returned %d entries, want 3", len(got))
	}
}

func TestStatusPredicates(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusProcessing, StatusBuilding, StatusReview, StatusApproved} {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
	if !StatusProcessing.InFlight() || !StatusBuilding.InFlight() {
		t.Error("processing and building should be in flight")
	}
	if StatusReview.InFlight() {
		t.Error("review is not in flight")
	}
}

func TestDecisionSeverity(t *testing.T) {
	if !(DecisionAutoMerge.Severity() < DecisionNeedsReview.Severity()) {
		t.Error("auto_merge should be less severe than needs_review")
	}
	if !(DecisionNeedsReview.Severity() < DecisionBlock.Severity()) {
		t.Error("needs_review should be less severe than block")
	}
	// unknown decisions are treated as needing review
	if got := Decision("garbage").Severity(); got != DecisionNeedsReview.Severity() {
		t.Errorf("unknown decision severity = %d, want %d", got, DecisionNeedsReview.Severity())
	}
}

func TestWorkItemTitle(t *testing.T) {
	w := &WorkItem{Description: "Add a pricing page\nwith three tiers and a FAQ"}
	if got, want := w.Title(), "Add a pricing page"; got != want {
		t.Errorf("Title() = %q, want %q", got, want)
	}
}
