package workstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("work item not found")

const maxAttempts = 3

// Store is a client for the work item queue, a PostgREST table exposed by
// the product database. Every call authenticates with the service key and
// retries transient failures a bounded number of times.
type Store struct {
	baseURL string
	key     string
	table   string
	client  *http.Client

	// RetryDelay is the base backoff between attempts. Tests shrink it.
	RetryDelay time.Duration
}

// New creates a Store for the given project URL, service key, and table.
func New(baseURL, serviceKey, table string) *Store {
	return &Store{
		baseURL: baseURL,
		key:     serviceKey,
		table:   table,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		RetryDelay: 500 * time.Millisecond,
	}
}

// Completion carries every field written when an item reaches review or a
// terminal state. Zero-valued fields are left untouched in the store.
type Completion struct {
	Status          domain.Status
	DeployDecision  domain.DeployDecision
	BranchName      string
	CommitSHA       string
	MergeSHA        string
	FilesCreated    []string
	FilesModified   []string
	Risk            *domain.RiskAssessment
	ProgressMessage string
	BuildSummary    string
	PageURL         string
}

// NextPending returns the oldest pending work item, or nil if the queue
// is empty.
func (s *Store) NextPending(ctx context.Context) (*domain.WorkItem, error) {
	return s.next(ctx, domain.StatusPending)
}

// NextApproved returns the oldest human-approved item awaiting merge, or
// nil if there is none.
func (s *Store) NextApproved(ctx context.Context) (*domain.WorkItem, error) {
	return s.next(ctx, domain.StatusApproved)
}

func (s *Store) next(ctx context.Context, status domain.Status) (*domain.WorkItem, error) {
	query := fmt.Sprintf("status=eq.%s&order=created_at.asc&limit=1", status)
	body, err := s.do(ctx, http.MethodGet, query, nil, "")
	if err != nil {
		return nil, err
	}

	var items []domain.WorkItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse store response: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Get returns the item with the given id.
func (s *Store) Get(ctx context.Context, id int64) (*domain.WorkItem, error) {
	query := fmt.Sprintf("id=eq.%d&limit=1", id)
	body, err := s.do(ctx, http.MethodGet, query, nil, "")
	if err != nil {
		return nil, err
	}

	var items []domain.WorkItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse store response: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

// Recent returns up to limit items, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	query := fmt.Sprintf("order=created_at.desc&limit=%d", limit)
	body, err := s.do(ctx, http.MethodGet, query, nil, "")
	if err != nil {
		return nil, err
	}

	var items []domain.WorkItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse store response: %w", err)
	}
	return items, nil
}

// InFlight returns items currently marked processing or building. Used by
// the maintenance sweep to fail orphans after a restart.
func (s *Store) InFlight(ctx context.Context) ([]domain.WorkItem, error) {
	query := fmt.Sprintf("status=in.(%s,%s)&order=created_at.asc",
		domain.StatusProcessing, domain.StatusBuilding)
	body, err := s.do(ctx, http.MethodGet, query, nil, "")
	if err != nil {
		return nil, err
	}

	var items []domain.WorkItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse store response: %w", err)
	}
	return items, nil
}

// Insert creates a new pending work item and returns the stored row.
func (s *Store) Insert(ctx context.Context, description, requester string) (*domain.WorkItem, error) {
	payload, err := json.Marshal(map[string]any{
		"description": description,
		"requester":   requester,
		"status":      domain.StatusPending,
	})
	if err != nil {
		return nil, err
	}

	body, err := s.do(ctx, http.MethodPost, "", payload, "return=representation")
	if err != nil {
		return nil, err
	}

	var items []domain.WorkItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse store response: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("store returned no row for inserted item")
	}
	return &items[0], nil
}

// SetStatus moves an item to a new status with a progress message. Moving
// to processing also stamps started_at.
func (s *Store) SetStatus(ctx context.Context, id int64, status domain.Status, progress string) error {
	fields := map[string]any{
		"status":           status,
		"progress_message": progress,
	}
	if status == domain.StatusProcessing {
		fields["started_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	return s.patch(ctx, id, fields)
}

// Complete writes the outcome of a cycle. completed_at is stamped only
// when the new status is terminal, so items parked in review keep it null
// until their approved merge lands.
func (s *Store) Complete(ctx context.Context, id int64, c Completion) error {
	fields := map[string]any{
		"status": c.Status,
	}
	if c.DeployDecision != "" {
		fields["deploy_decision"] = c.DeployDecision
	}
	if c.BranchName != "" {
		fields["branch_name"] = c.BranchName
	}
	if c.CommitSHA != "" {
		fields["commit_sha"] = c.CommitSHA
	}
	if c.MergeSHA != "" {
		fields["merge_sha"] = c.MergeSHA
	}
	if c.FilesCreated != nil {
		fields["files_created"] = c.FilesCreated
	}
	if c.FilesModified != nil {
		fields["files_modified"] = c.FilesModified
	}
	if c.Risk != nil {
		fields["risk_assessment"] = c.Risk
	}
	if c.ProgressMessage != "" {
		fields["progress_message"] = c.ProgressMessage
	}
	if c.BuildSummary != "" {
		fields["build_summary"] = c.BuildSummary
	}
	if c.PageURL != "" {
		fields["page_url"] = c.PageURL
	}
	if c.Status.IsTerminal() {
		fields["completed_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	return s.patch(ctx, id, fields)
}

func (s *Store) patch(ctx context.Context, id int64, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("id=eq.%d", id)
	_, err = s.do(ctx, http.MethodPatch, query, payload, "return=minimal")
	return err
}

// do performs one authenticated request against the table endpoint,
// retrying transport errors and 5xx responses. 4xx responses fail
// immediately since repeating them cannot help.
func (s *Store) do(ctx context.Context, method, query string, payload []byte, prefer string) ([]byte, error) {
	url := s.baseURL + "/rest/v1/" + s.table
	if query != "" {
		url += "?" + query
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.RetryDelay * time.Duration(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", s.key)
		req.Header.Set("Authorization", "Bearer "+s.key)
		req.Header.Set("Content-Type", "application/json")
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, s.table, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%s %s: read response: %w", method, s.table, err)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s %s: store returned %d: %s",
				method, s.table, resp.StatusCode, domain.Truncate(string(body), 200))
			continue
		default:
			return nil, fmt.Errorf("%s %s: store returned %d: %s",
				method, s.table, resp.StatusCode, domain.Truncate(string(body), 200))
		}
	}
	return nil, lastErr
}
