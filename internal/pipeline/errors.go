package pipeline

import (
	"errors"
	"strings"

	"github.com/hearthlabs/shipbot/internal/agent"
	"github.com/hearthlabs/shipbot/internal/domain"
	"github.com/hearthlabs/shipbot/internal/repo"
)

// maxErrorLen bounds the error text written to progress messages and
// notifications.
const maxErrorLen = 500

// noChangesMessage is the terminal reason for a cycle where the agent
// finished without touching a single file. It is a valid outcome, worded
// apart from crashes so the requester knows nothing broke.
const noChangesMessage = "agent produced no changes"

// ErrNoChanges marks such a cycle.
var ErrNoChanges = errors.New(noChangesMessage)

// BlockError carries the classifier's reasons for refusing to commit a
// change that touched protected paths.
type BlockError struct {
	Reasons []string
}

func (e *BlockError) Error() string {
	return "hard blocked: " + strings.Join(e.Reasons, "; ")
}

// kindOf maps a cycle error to its ledger category.
func kindOf(err error) domain.ErrorKind {
	var blockErr *BlockError
	var repoErr *repo.Error
	switch {
	case errors.As(err, &blockErr):
		return domain.ErrKindHardBlocked
	case errors.Is(err, ErrNoChanges):
		return domain.ErrKindNoChanges
	case errors.Is(err, agent.ErrTimeout):
		return domain.ErrKindAgentTimeout
	case errors.Is(err, agent.ErrFailed), errors.Is(err, agent.ErrNotFound):
		return domain.ErrKindAgentInvocation
	case errors.As(err, &repoErr):
		return domain.ErrKindVCS
	default:
		return domain.ErrKindInternal
	}
}
