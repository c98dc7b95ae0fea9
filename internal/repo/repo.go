package repo

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hearthlabs/shipbot/internal/domain"
)

// Runner executes a command in a directory and returns its combined output.
// Tests inject a fake to exercise the tree without touching git.
type Runner interface {
	Run(dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(dir, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}

// Tree is the pipeline's handle on the managed source repository. All
// mutations go through it; the orchestrator is its only writer.
type Tree struct {
	root   string
	main   string
	remote string
	runner Runner
}

// Option configures a Tree.
type Option func(*Tree)

// WithMainBranch sets the integration branch. Default is main.
func WithMainBranch(name string) Option {
	return func(t *Tree) { t.main = name }
}

// WithRemote sets the remote name. Default is origin.
func WithRemote(name string) Option {
	return func(t *Tree) { t.remote = name }
}

// WithRunner injects a command runner, primarily for tests.
func WithRunner(r Runner) Option {
	return func(t *Tree) { t.runner = r }
}

// New creates a Tree rooted at the given repository path.
func New(root string, opts ...Option) (*Tree, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	t := &Tree{
		root:   absRoot,
		main:   "main",
		remote: "origin",
		runner: ExecRunner{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if _, err := t.git("rev-parse", "--git-dir"); err != nil {
		return nil, ErrNotGitRepo
	}
	return t, nil
}

// Root returns the repository root path.
func (t *Tree) Root() string {
	return t.root
}

// MainBranch returns the integration branch name.
func (t *Tree) MainBranch() string {
	return t.main
}

func (t *Tree) git(args ...string) (string, error) {
	return t.runner.Run(t.root, "git", args...)
}

func (t *Tree) fail(op, output string, err error) error {
	return &Error{Op: op, Output: output, Err: err}
}

// SyncToMain brings the tree to a pristine copy of the remote integration
// branch: fetch, switch to main, hard reset, drop untracked files.
func (t *Tree) SyncToMain() error {
	if out, err := t.git("fetch", t.remote); err != nil {
		return t.fail("fetch", out, err)
	}
	if out, err := t.git("checkout", t.main); err != nil {
		return t.fail("checkout "+t.main, out, err)
	}
	if out, err := t.git("reset", "--hard", t.remote+"/"+t.main); err != nil {
		return t.fail("reset", out, err)
	}
	if out, err := t.git("clean", "-fd"); err != nil {
		return t.fail("clean", out, err)
	}
	return nil
}

// Diff reports what changed in the working tree relative to HEAD,
// untracked files included. This is the authoritative change set for
// classification, regardless of what the agent claims it did.
func (t *Tree) Diff() (domain.Diff, error) {
	out, err := t.git("status", "--porcelain")
	if err != nil {
		return nil, t.fail("status", out, err)
	}
	return parsePorcelain(out), nil
}

// IsClean returns true if the working tree has no changes at all.
func (t *Tree) IsClean() (bool, error) {
	out, err := t.git("status", "--porcelain")
	if err != nil {
		return false, t.fail("status", out, err)
	}
	return strings.TrimSpace(out) == "", nil
}

// CreateBranch creates and switches to a new branch at HEAD.
func (t *Tree) CreateBranch(name string) error {
	if out, err := t.git("checkout", "-b", name); err != nil {
		return t.fail("create branch", out, err)
	}
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (t *Tree) CurrentBranch() (string, error) {
	out, err := t.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", t.fail("current branch", out, err)
	}
	return out, nil
}

// HeadCommit returns the SHA at HEAD.
func (t *Tree) HeadCommit() (string, error) {
	out, err := t.git("rev-parse", "HEAD")
	if err != nil {
		return "", t.fail("head", out, err)
	}
	return out, nil
}

// CommitAll stages everything and commits it, returning the new commit SHA.
// Returns ErrNothingToCommit if staging produced no changes.
func (t *Tree) CommitAll(message string) (string, error) {
	if out, err := t.git("add", "-A"); err != nil {
		return "", t.fail("add", out, err)
	}
	// exit 0 means the index matches HEAD
	if _, err := t.git("diff", "--cached", "--quiet"); err == nil {
		return "", ErrNothingToCommit
	}
	if out, err := t.git("commit", "-m", message); err != nil {
		return "", t.fail("commit", out, err)
	}
	return t.HeadCommit()
}

// Push publishes a branch to the remote.
func (t *Tree) Push(branch string) error {
	if out, err := t.git("push", "-u", t.remote, branch); err != nil {
		return t.fail("push", out, err)
	}
	return nil
}

// Merge merges a branch into the integration branch and returns the merge
// commit SHA. A conflicted merge is aborted and reported as
// ErrMergeConflict; the tree is left on main either way.
func (t *Tree) Merge(branch, message string) (string, error) {
	if out, err := t.git("checkout", t.main); err != nil {
		return "", t.fail("checkout "+t.main, out, err)
	}
	out, err := t.git("merge", "--no-ff", branch, "-m", message)
	if err != nil {
		t.git("merge", "--abort")
		if strings.Contains(out, "CONFLICT") || strings.Contains(out, "Automatic merge failed") {
			return "", &Error{Op: "merge " + branch, Output: out, Err: ErrMergeConflict}
		}
		return "", t.fail("merge "+branch, out, err)
	}
	return t.HeadCommit()
}

// DeleteBranch removes a branch locally and on the remote. The remote
// delete is best effort; a branch that was never pushed is not an error.
func (t *Tree) DeleteBranch(name string) error {
	if out, err := t.git("branch", "-D", name); err != nil {
		return t.fail("delete branch", out, err)
	}
	t.git("push", t.remote, "--delete", name)
	return nil
}

// DiscardAll throws away everything in the working tree and returns to the
// integration branch. Safe to call from any state; this is the cleanup run
// after every cycle, successful or not.
func (t *Tree) DiscardAll() error {
	if out, err := t.git("reset", "--hard", "HEAD"); err != nil {
		return t.fail("reset", out, err)
	}
	if out, err := t.git("clean", "-fd"); err != nil {
		return t.fail("clean", out, err)
	}
	if out, err := t.git("checkout", t.main); err != nil {
		return t.fail("checkout "+t.main, out, err)
	}
	return nil
}

// FetchTags pulls tag refs from the remote.
func (t *Tree) FetchTags() error {
	if out, err := t.git("fetch", t.remote, "--tags", "--force"); err != nil {
		return t.fail("fetch tags", out, err)
	}
	return nil
}

// TagsAt returns the tags pointing at a commit, newest refs last.
func (t *Tree) TagsAt(sha string) ([]string, error) {
	out, err := t.git("tag", "--points-at", sha)
	if err != nil {
		return nil, t.fail("tags at "+sha, out, err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// parsePorcelain turns `git status --porcelain` output into a Diff.
func parsePorcelain(out string) domain.Diff {
	var diff domain.Diff
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := unquotePath(strings.TrimSpace(line[3:]))

		// renames carry both sides: the old path is gone, the new one is new
		if old, renamed, ok := strings.Cut(path, " -> "); ok {
			diff = append(diff,
				domain.Change{Path: unquotePath(old), Kind: domain.ChangeDeleted},
				domain.Change{Path: unquotePath(renamed), Kind: domain.ChangeCreated},
			)
			continue
		}

		diff = append(diff, domain.Change{Path: path, Kind: kindForCode(code)})
	}
	return diff
}

func kindForCode(code string) domain.ChangeKind {
	switch {
	case code == "??" || strings.Contains(code, "A"):
		return domain.ChangeCreated
	case strings.Contains(code, "D"):
		return domain.ChangeDeleted
	default:
		return domain.ChangeModified
	}
}

func unquotePath(p string) string {
	if strings.HasPrefix(p, `"`) && strings.HasSuffix(p, `"`) {
		if unquoted, err := strconv.Unquote(p); err == nil {
			return unquoted
		}
	}
	return p
}
