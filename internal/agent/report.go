package agent

import (
	"strings"

	"github.com/hearthlabs/shipbot/internal/domain"
)

// Report is the agent's structured account of a run: what it built, what
// it touched, and how risky it thinks the change is. One report exists per
// cycle; the pipeline folds it into the work item and discards it.
type Report struct {
	Summary       string                 `json:"summary"`
	FilesCreated  []string               `json:"files_created"`
	FilesModified []string               `json:"files_modified"`
	PageURL       string                 `json:"page_url"`
	Risk          *domain.RiskAssessment `json:"risk_assessment"`
	Notes         string                 `json:"notes"`
}

// normalize fills the defaults a sloppy agent left out. A report without a
// risk assessment, or with an unrecognized decision, is treated as asking
// for review rather than trusted with an auto-merge.
func (r *Report) normalize() {
	if r.Risk == nil {
		r.Risk = &domain.RiskAssessment{
			Decision: domain.DecisionNeedsReview,
			Reason:   "agent did not assess risk",
		}
		return
	}
	r.Risk.Decision = normalizeDecision(string(r.Risk.Decision))
}

func normalizeDecision(s string) domain.Decision {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "auto_merge", "automerge", "auto", "merge", "safe":
		return domain.DecisionAutoMerge
	case "block", "blocked", "forbidden", "reject":
		return domain.DecisionBlock
	default:
		return domain.DecisionNeedsReview
	}
}
