package runlog

import (
	"testing"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
)

func testCycle(itemID int64, outcome domain.Status, started time.Time) *Cycle {
	return &Cycle{
		ItemID:     itemID,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Minute),
		Outcome:    outcome,
	}
}

func TestStore_RecordAndForItem(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	started := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	cycle := &Cycle{
		ItemID:         7,
		StartedAt:      started,
		FinishedAt:     started.Add(3 * time.Minute),
		Outcome:        domain.StatusCompleted,
		Decision:       domain.DecisionAutoMerge,
		DeployDecision: domain.DeployAutoMerged,
		Branch:         "shipbot/pricing-page-20260110-7",
		CommitSHA:      "abc1234",
		MergeSHA:       "def5678",
		ReleaseLabel:   "v2026.01.10",
		FilesCreated:   1,
		TokensInput:    1200,
		TokensOutput:   400,
		CostUSD:        0.12,
	}

	if err := store.Record(cycle); err != nil {
		t.Fatal(err)
	}
	if cycle.ID == 0 {
		t.Error("Record should fill in the row id")
	}

	got, err := store.ForItem(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("cycle count = %d, want 1", len(got))
	}
	if got[0].Outcome != domain.StatusCompleted {
		t.Errorf("Outcome = %q", got[0].Outcome)
	}
	if got[0].Branch != cycle.Branch {
		t.Errorf("Branch = %q, want %q", got[0].Branch, cycle.Branch)
	}
	if got[0].ReleaseLabel != "v2026.01.10" {
		t.Errorf("ReleaseLabel = %q", got[0].ReleaseLabel)
	}
	if got[0].Duration() != 3*time.Minute {
		t.Errorf("Duration = %v, want 3m", got[0].Duration())
	}
}

func TestStore_RecentOrder(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		cycle := testCycle(i, domain.StatusCompleted, base.Add(time.Duration(i)*time.Hour))
		if err := store.Record(cycle); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := store.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("Recent count = %d, want 3", len(recent))
	}
	if recent[0].ItemID != 5 || recent[1].ItemID != 4 || recent[2].ItemID != 3 {
		t.Errorf("Recent order = %d, %d, %d, want 5, 4, 3",
			recent[0].ItemID, recent[1].ItemID, recent[2].ItemID)
	}
}

func TestStore_Stats(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	completed := testCycle(1, domain.StatusCompleted, base)
	completed.DeployDecision = domain.DeployAutoMerged
	completed.TokensInput = 1000
	completed.TokensOutput = 300
	completed.CostUSD = 0.10

	review := testCycle(2, domain.StatusReview, base.Add(time.Hour))
	review.DeployDecision = domain.DeployBranchedForReview
	review.TokensInput = 500
	review.TokensOutput = 100
	review.CostUSD = 0.05

	failed := testCycle(3, domain.StatusFailed, base.Add(2*time.Hour))
	failed.ErrorKind = domain.ErrKindAgentTimeout
	failed.ErrorMessage = "agent timed out after 15m"

	for _, c := range []*Cycle{completed, review, failed} {
		if err := store.Record(c); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatal(err)
	}

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Completed != 1 || stats.Review != 1 || stats.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", stats.Completed, stats.Review, stats.Failed)
	}
	if stats.AutoMerged != 1 {
		t.Errorf("AutoMerged = %d, want 1", stats.AutoMerged)
	}
	if stats.TokensInput != 1500 {
		t.Errorf("TokensInput = %d, want 1500", stats.TokensInput)
	}
	if stats.CostUSD < 0.149 || stats.CostUSD > 0.151 {
		t.Errorf("CostUSD = %f, want 0.15", stats.CostUSD)
	}
}

func TestStore_Prune(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	old := testCycle(1, domain.StatusFailed, base.AddDate(0, -3, 0))
	fresh := testCycle(2, domain.StatusCompleted, base)

	for _, c := range []*Cycle{old, fresh} {
		if err := store.Record(c); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.Prune(base.AddDate(0, -1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	recent, err := store.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ItemID != 2 {
		t.Errorf("the fresh cycle should survive pruning, got %+v", recent)
	}
}
