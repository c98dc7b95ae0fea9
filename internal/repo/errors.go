package repo

import "errors"

// Tree operation errors.
var (
	// ErrNothingToCommit indicates there are no changes to commit.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrMergeConflict indicates a merge could not complete cleanly.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrNotGitRepo indicates the root is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")
)

// Error wraps a failed git command with its context.
type Error struct {
	Op     string // operation that failed, e.g. "sync", "merge"
	Output string // combined stdout/stderr
	Err    error  // underlying error
}

func (e *Error) Error() string {
	if e.Output != "" {
		return "git " + e.Op + ": " + e.Output
	}
	return "git " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
