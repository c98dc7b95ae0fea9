package risk

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hearthlabs/shipbot/internal/domain"
)

var defaultRules = []string{".env*", "**/auth/**", "package.json"}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(defaultRules)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	return c
}

func selfAuto() *domain.RiskAssessment {
	return &domain.RiskAssessment{Decision: domain.DecisionAutoMerge}
}

func TestClassify_AllNewAndSafeAutoMerges(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{
		{Path: "pages/pricing.tsx", Kind: domain.ChangeCreated},
		{Path: "pages/pricing.module.css", Kind: domain.ChangeCreated},
	}

	v := c.Classify(diff, selfAuto())
	if v.Decision != domain.DecisionAutoMerge {
		t.Errorf("Decision = %v, want auto_merge (reasons: %v)", v.Decision, v.Reasons)
	}
	if len(v.Reasons) == 0 {
		t.Error("auto-merge verdict should still carry a reason")
	}
}

func TestClassify_ForbiddenPathBlocksRegardlessOfSelf(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{
		{Path: "pages/pricing.tsx", Kind: domain.ChangeCreated},
		{Path: ".env.local", Kind: domain.ChangeCreated},
	}

	v := c.Classify(diff, selfAuto())
	if v.Decision != domain.DecisionBlock {
		t.Errorf("Decision = %v, want block", v.Decision)
	}
	if !strings.Contains(v.Reason(), ".env.local") {
		t.Errorf("Reason %q should name the forbidden path", v.Reason())
	}
}

func TestClassify_ForbiddenReasonsAccumulate(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{
		{Path: ".env.local", Kind: domain.ChangeCreated},
		{Path: "lib/auth/session.ts", Kind: domain.ChangeModified},
	}

	v := c.Classify(diff, selfAuto())
	if v.Decision != domain.DecisionBlock {
		t.Fatalf("Decision = %v, want block", v.Decision)
	}
	if len(v.Reasons) != 2 {
		t.Errorf("Reasons = %v, want one per forbidden path", v.Reasons)
	}
}

func TestClassify_ModifiedExistingForcesReview(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{
		{Path: "pages/pricing.tsx", Kind: domain.ChangeCreated},
		{Path: "lib/nav.ts", Kind: domain.ChangeModified},
	}

	// the agent calling it safe must not downgrade the verdict
	v := c.Classify(diff, selfAuto())
	if v.Decision != domain.DecisionNeedsReview {
		t.Errorf("Decision = %v, want needs_review", v.Decision)
	}
	if !strings.Contains(v.Reason(), "lib/nav.ts") {
		t.Errorf("Reason %q should name the modified file", v.Reason())
	}
}

func TestClassify_DeletionCountsAsTouchingExisting(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{{Path: "pages/old.tsx", Kind: domain.ChangeDeleted}}

	v := c.Classify(diff, selfAuto())
	if v.Decision != domain.DecisionNeedsReview {
		t.Errorf("Decision = %v, want needs_review", v.Decision)
	}
}

func TestClassify_SelfReviewRespectedOnAllNewDiff(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{{Path: "pages/pricing.tsx", Kind: domain.ChangeCreated}}
	self := &domain.RiskAssessment{
		Decision: domain.DecisionNeedsReview,
		Reason:   "pricing numbers should be checked by a human",
	}

	v := c.Classify(diff, self)
	if v.Decision != domain.DecisionNeedsReview {
		t.Errorf("Decision = %v, want needs_review", v.Decision)
	}
	if !strings.Contains(v.Reason(), "pricing numbers") {
		t.Errorf("Reason %q should carry the agent's own wording", v.Reason())
	}
}

func TestClassify_ConcernFlagsForceReview(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{{Path: "pages/pricing.tsx", Kind: domain.ChangeCreated}}
	self := &domain.RiskAssessment{
		Decision:          domain.DecisionAutoMerge,
		CouldConfuseUsers: true,
	}

	v := c.Classify(diff, self)
	if v.Decision != domain.DecisionNeedsReview {
		t.Errorf("Decision = %v, want needs_review when a concern flag is raised", v.Decision)
	}
}

func TestClassify_MissingSelfAssessmentForcesReview(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{{Path: "pages/pricing.tsx", Kind: domain.ChangeCreated}}

	v := c.Classify(diff, nil)
	if v.Decision != domain.DecisionNeedsReview {
		t.Errorf("Decision = %v, want needs_review without a self-assessment", v.Decision)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c := newTestClassifier(t)
	diff := domain.Diff{
		{Path: "lib/nav.ts", Kind: domain.ChangeModified},
		{Path: "pages/pricing.tsx", Kind: domain.ChangeCreated},
	}
	self := &domain.RiskAssessment{Decision: domain.DecisionNeedsReview}

	first := c.Classify(diff, self)
	second := c.Classify(diff, self)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("verdicts differ across runs: %+v vs %+v", first, second)
	}
}

func TestNewClassifier_RejectsBadPattern(t *testing.T) {
	if _, err := NewClassifier([]string{"[unclosed"}); err == nil {
		t.Error("NewClassifier should reject an invalid pattern")
	}
}

func TestMerge_PreservesAgentFlags(t *testing.T) {
	v := Verdict{Decision: domain.DecisionNeedsReview, Reasons: []string{"modifies existing file lib/nav.ts"}}
	self := &domain.RiskAssessment{
		Decision:                     domain.DecisionAutoMerge,
		TouchesExistingFunctionality: true,
	}

	merged := Merge(v, self)
	if merged.Decision != domain.DecisionNeedsReview {
		t.Errorf("merged decision = %v, want the verdict's", merged.Decision)
	}
	if !merged.TouchesExistingFunctionality {
		t.Error("agent concern flags should survive the merge")
	}
	if merged.Reason == "" {
		t.Error("merged reason should not be empty")
	}
}
