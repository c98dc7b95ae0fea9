package risk

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/hearthlabs/shipbot/internal/domain"
)

// Verdict is the classifier's answer for one change set.
type Verdict struct {
	Decision domain.Decision
	Reasons  []string
}

// Reason joins the accumulated reasons into one stored string.
func (v Verdict) Reason() string {
	return strings.Join(v.Reasons, "; ")
}

// Classifier decides how a change set may ship. It is pure: same diff and
// self-assessment in, same verdict out, no I/O. The agent's opinion can
// make the verdict stricter but never safer.
type Classifier struct {
	rules []rule
}

type rule struct {
	pattern string
	g       glob.Glob
}

// NewClassifier compiles the forbidden path patterns.
func NewClassifier(forbidden []string) (*Classifier, error) {
	c := &Classifier{}
	for _, pattern := range forbidden {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid forbidden pattern %q: %w", pattern, err)
		}
		c.rules = append(c.rules, rule{pattern: pattern, g: g})
	}
	return c, nil
}

// Classify applies the gate in fixed priority order: forbidden paths block
// outright, touching any pre-existing file demands review, the agent's own
// call for review is respected, and only an all-new change set the agent
// itself considers safe merges automatically.
func (c *Classifier) Classify(diff domain.Diff, self *domain.RiskAssessment) Verdict {
	var blocked []string
	for _, change := range diff {
		for _, r := range c.rules {
			if r.g.Match(filepath.Clean(change.Path)) {
				blocked = append(blocked, fmt.Sprintf("touches forbidden path %s (rule %s)", change.Path, r.pattern))
			}
		}
	}
	if len(blocked) > 0 {
		return Verdict{Decision: domain.DecisionBlock, Reasons: blocked}
	}

	var reasons []string
	for _, change := range diff {
		switch change.Kind {
		case domain.ChangeModified:
			reasons = append(reasons, fmt.Sprintf("modifies existing file %s", change.Path))
		case domain.ChangeDeleted:
			reasons = append(reasons, fmt.Sprintf("deletes existing file %s", change.Path))
		}
	}

	if selfReasons := selfWantsReview(self); len(selfReasons) > 0 {
		reasons = append(reasons, selfReasons...)
	}

	if len(reasons) > 0 {
		return Verdict{Decision: domain.DecisionNeedsReview, Reasons: reasons}
	}
	return Verdict{
		Decision: domain.DecisionAutoMerge,
		Reasons:  []string{"only new files outside protected paths"},
	}
}

// selfWantsReview reads the agent's self-assessment conservatively: a
// missing assessment, a non-auto decision, or any raised concern flag all
// count as a request for review.
func selfWantsReview(self *domain.RiskAssessment) []string {
	if self == nil {
		return []string{"agent supplied no risk assessment"}
	}
	var reasons []string
	if self.Decision != domain.DecisionAutoMerge {
		r := "agent assessed the change as needing review"
		if self.Reason != "" {
			r += ": " + self.Reason
		}
		reasons = append(reasons, r)
	}
	if self.TouchesExistingFunctionality {
		reasons = append(reasons, "agent reports it touched existing functionality")
	}
	if self.CouldConfuseUsers {
		reasons = append(reasons, "agent reports the change could confuse users")
	}
	if self.RemovesOrChangesFeatures {
		reasons = append(reasons, "agent reports it removed or changed features")
	}
	return reasons
}

// Merge folds a verdict and the agent's self-assessment into the stored
// form: the verdict wins on decision and reason, the agent's concern flags
// are preserved for reviewers.
func Merge(v Verdict, self *domain.RiskAssessment) *domain.RiskAssessment {
	merged := &domain.RiskAssessment{
		Decision: v.Decision,
		Reason:   v.Reason(),
	}
	if self != nil {
		merged.TouchesExistingFunctionality = self.TouchesExistingFunctionality
		merged.CouldConfuseUsers = self.CouldConfuseUsers
		merged.RemovesOrChangesFeatures = self.RemovesOrChangesFeatures
	}
	return merged
}
