package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sessionNamespace is a fixed UUID namespace for deterministic session IDs,
// so re-running an item reuses the same agent session.
var sessionNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Agent invocation errors.
var (
	// ErrNotFound indicates the agent binary is not installed.
	ErrNotFound = errors.New("agent binary not found")

	// ErrTimeout indicates the agent hit its wall clock bound and was killed.
	ErrTimeout = errors.New("agent timed out")

	// ErrFailed indicates the agent exited with an error.
	ErrFailed = errors.New("agent invocation failed")
)

// Runner invokes the code-generation agent as a bounded subprocess. Every
// run gets the full permission envelope: tool restrictions, a turn cap,
// and a hard timeout after which the process is killed.
type Runner struct {
	Binary          string
	Model           string
	MaxTurns        int
	Timeout         time.Duration
	AllowedTools    []string
	DisallowedTools []string
	Logger          *slog.Logger
}

// Result is what one agent run produced.
type Result struct {
	Report       *Report
	Raw          string // text the report was parsed from
	TokensInput  int
	TokensOutput int
	CostUSD      float64
	Duration     time.Duration
}

// SessionID returns the deterministic agent session for a work item.
func SessionID(itemID int64) string {
	return uuid.NewSHA1(sessionNamespace, []byte(fmt.Sprintf("work-item-%d", itemID))).String()
}

// Run executes the agent with the given instruction inside dir and returns
// its report. The run is bounded: when the timeout elapses the subprocess
// is killed and ErrTimeout is returned. Parsing never fails; whatever the
// agent printed becomes a Report, defaulting to needs_review.
func (r *Runner) Run(ctx context.Context, itemID int64, instruction, dir string) (*Result, error) {
	binary := r.Binary
	if binary == "" {
		binary = "claude"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, binary)
	}

	timeout := r.Timeout
	if timeout == 0 {
		timeout = 15 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := r.buildArgs(itemID, instruction)
	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.Logger != nil {
		r.Logger.Info("invoking agent", "item", itemID, "timeout", timeout, "max_turns", r.MaxTurns)
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		if errors.Is(runCtx.Err(), context.Canceled) {
			return nil, runCtx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrFailed, detail)
	}

	result := &Result{Duration: duration}
	text := stdout.String()

	// the CLI wraps the agent's answer in a result envelope with usage
	var envelope cliEnvelope
	if jsonErr := json.Unmarshal(stdout.Bytes(), &envelope); jsonErr == nil && envelope.Result != "" {
		text = envelope.Result
		result.TokensInput = envelope.Usage.InputTokens
		result.TokensOutput = envelope.Usage.OutputTokens
		result.CostUSD = envelope.cost()
	}

	result.Raw = text
	result.Report = ParseReport(text)
	return result, nil
}

func (r *Runner) buildArgs(itemID int64, instruction string) []string {
	args := []string{
		"--print",
		"--output-format", "json",
		"--session-id", SessionID(itemID),
	}
	if r.Model != "" {
		args = append(args, "--model", r.Model)
	}
	if r.MaxTurns > 0 {
		args = append(args, "--max-turns", fmt.Sprintf("%d", r.MaxTurns))
	}
	for _, tool := range r.AllowedTools {
		args = append(args, "--allowedTools", tool)
	}
	for _, tool := range r.DisallowedTools {
		args = append(args, "--disallowedTools", tool)
	}
	args = append(args, "-p", instruction)
	return args
}

// cliEnvelope is the agent CLI's own JSON output wrapper.
type cliEnvelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Result  string `json:"result"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	CostUSD      float64 `json:"cost_usd"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

func (e cliEnvelope) cost() float64 {
	if e.CostUSD > 0 {
		return e.CostUSD
	}
	return e.TotalCostUSD
}
