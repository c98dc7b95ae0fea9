package domain

// Status represents the lifecycle state of a work item
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusBuilding   Status = "building"
	StatusReview     Status = "review"
	StatusApproved   Status = "approved"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal returns true if no further pipeline transitions are possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// InFlight returns true while the pipeline owns the item
func (s Status) InFlight() bool {
	return s == StatusProcessing || s == StatusBuilding
}

// DeployDecision records how a completed change reached (or will reach) main
type DeployDecision string

const (
	DeployAutoMerged        DeployDecision = "auto_merged"
	DeployBranchedForReview DeployDecision = "branched_for_review"
	DeployAdminApproved     DeployDecision = "admin_approved"
	DeployNone              DeployDecision = ""
)

// Decision is a risk verdict for a set of changes
type Decision string

const (
	DecisionAutoMerge   Decision = "auto_merge"
	DecisionNeedsReview Decision = "needs_review"
	DecisionBlock       Decision = "block"
)

// Severity orders decisions from safest to most restrictive.
// A classifier may raise severity but never lower it.
func (d Decision) Severity() int {
	switch d {
	case DecisionAutoMerge:
		return 0
	case DecisionNeedsReview:
		return 1
	case DecisionBlock:
		return 2
	}
	return 1
}

// ErrorKind classifies why a cycle ended badly
type ErrorKind string

const (
	ErrKindAgentInvocation ErrorKind = "agent_invocation"
	ErrKindAgentTimeout    ErrorKind = "agent_timeout"
	ErrKindNoChanges       ErrorKind = "no_changes"
	ErrKindHardBlocked     ErrorKind = "hard_blocked"
	ErrKindVCS             ErrorKind = "vcs"
	ErrKindMerge           ErrorKind = "merge"
	ErrKindInternal        ErrorKind = "internal"
	ErrKindNone            ErrorKind = ""
)
