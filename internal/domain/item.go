package domain

import "time"

// WorkItem is one natural-language work order and everything the pipeline
// learned while delivering it. Field tags match the store's column names.
type WorkItem struct {
	ID              int64           `json:"id"`
	Description     string          `json:"description"`
	Requester       string          `json:"requester,omitempty"`
	Status          Status          `json:"status"`
	DeployDecision  DeployDecision  `json:"deploy_decision,omitempty"`
	BranchName      string          `json:"branch_name,omitempty"`
	CommitSHA       string          `json:"commit_sha,omitempty"`
	MergeSHA        string          `json:"merge_sha,omitempty"`
	FilesCreated    []string        `json:"files_created,omitempty"`
	FilesModified   []string        `json:"files_modified,omitempty"`
	Risk            *RiskAssessment `json:"risk_assessment,omitempty"`
	ProgressMessage string          `json:"progress_message,omitempty"`
	BuildSummary    string          `json:"build_summary,omitempty"`
	PageURL         string          `json:"page_url,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// RiskAssessment is the stored verdict for a change set. The decision and
// reason come from the classifier; the three flags are the agent's own
// self-assessment, kept for the reviewer even when overridden.
type RiskAssessment struct {
	Decision                     Decision `json:"decision"`
	Reason                       string   `json:"reason,omitempty"`
	TouchesExistingFunctionality bool     `json:"touches_existing_functionality"`
	CouldConfuseUsers            bool     `json:"could_confuse_users"`
	RemovesOrChangesFeatures     bool     `json:"removes_or_changes_features"`
}

// Title returns a short single-line form of the description for logs
// and notifications.
func (w *WorkItem) Title() string {
	return Truncate(firstLine(w.Description), 80)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i]
		}
	}
	return s
}
