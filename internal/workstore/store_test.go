package workstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
)

func newTestStore(url string) *Store {
	s := New(url, "test-key", "work_items")
	s.RetryDelay = time.Millisecond
	return s
}

func TestNextPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		if !strings.HasPrefix(r.URL.Path, "/rest/v1/work_items") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.RawQuery
		for _, want := range []string{"status=eq.pending", "order=created_at.asc", "limit=1"} {
			if !strings.Contains(q, want) {
				t.Errorf("query missing %q: %s", want, q)
			}
		}
		if r.Header.Get("apikey") != "test-key" {
			t.Error("apikey header not set")
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Authorization header not set")
		}
		w.Write([]byte(`[{"id": 7, "description": "add a pricing page", "status": "pending", "created_at": "2026-01-10T08:00:00Z"}]`))
	}))
	defer server.Close()

	item, err := newTestStore(server.URL).NextPending(context.Background())
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected an item")
	}
	if item.ID != 7 {
		t.Errorf("ID = %d, want 7", item.ID)
	}
	if item.Description != "add a pricing page" {
		t.Errorf("Description = %q", item.Description)
	}
}

func TestNextPending_EmptyQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	item, err := newTestStore(server.URL).NextPending(context.Background())
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if item != nil {
		t.Errorf("expected nil for empty queue, got item %d", item.ID)
	}
}

func TestNextApproved(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	if _, err := newTestStore(server.URL).NextApproved(context.Background()); err != nil {
		t.Fatalf("NextApproved failed: %v", err)
	}
	if !strings.Contains(gotQuery, "status=eq.approved") {
		t.Errorf("query should filter approved, got %s", gotQuery)
	}
}

func TestInsert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["status"] != "pending" {
			t.Errorf("status = %v, want pending", body["status"])
		}
		if body["description"] != "fix the footer" {
			t.Errorf("description = %v", body["description"])
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id": 42, "description": "fix the footer", "requester": "dana", "status": "pending", "created_at": "2026-01-10T08:00:00Z"}]`))
	}))
	defer server.Close()

	item, err := newTestStore(server.URL).Insert(context.Background(), "fix the footer", "dana")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if item.ID != 42 {
		t.Errorf("ID = %d, want 42", item.ID)
	}
}

func TestSetStatus(t *testing.T) {
	var gotQuery string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PATCH" {
			t.Errorf("Expected PATCH, got %s", r.Method)
		}
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestStore(server.URL).SetStatus(context.Background(), 7, domain.StatusBuilding, "agent running")
	if err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if gotQuery != "id=eq.7" {
		t.Errorf("query = %q, want id=eq.7", gotQuery)
	}
	if gotBody["status"] != "building" {
		t.Errorf("status = %v", gotBody["status"])
	}
	if gotBody["progress_message"] != "agent running" {
		t.Errorf("progress_message = %v", gotBody["progress_message"])
	}
	if _, ok := gotBody["started_at"]; ok {
		t.Error("started_at should only be stamped when moving to processing")
	}
}

func TestSetStatus_ProcessingStampsStartedAt(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestStore(server.URL).SetStatus(context.Background(), 7, domain.StatusProcessing, "picked up")
	if err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if _, ok := gotBody["started_at"]; !ok {
		t.Error("started_at should be stamped when moving to processing")
	}
}

func TestComplete(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestStore(server.URL).Complete(context.Background(), 7, Completion{
		Status:          domain.StatusCompleted,
		DeployDecision:  domain.DeployAutoMerged,
		BranchName:      "shipbot/pricing-page-20260110-7",
		CommitSHA:       "abc1234",
		MergeSHA:        "def5678",
		FilesCreated:    []string{"site/pricing.html"},
		Risk:            &domain.RiskAssessment{Decision: domain.DecisionAutoMerge, Reason: "only new files"},
		ProgressMessage: "merged to main",
		BuildSummary:    "added a pricing page",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if gotBody["status"] != "completed" {
		t.Errorf("status = %v", gotBody["status"])
	}
	if gotBody["deploy_decision"] != "auto_merged" {
		t.Errorf("deploy_decision = %v", gotBody["deploy_decision"])
	}
	if gotBody["commit_sha"] != "abc1234" {
		t.Errorf("commit_sha = %v", gotBody["commit_sha"])
	}
	if _, ok := gotBody["completed_at"]; !ok {
		t.Error("completed_at should be stamped for a terminal status")
	}
	risk, ok := gotBody["risk_assessment"].(map[string]any)
	if !ok {
		t.Fatal("risk_assessment should be an object")
	}
	if risk["decision"] != "auto_merge" {
		t.Errorf("risk decision = %v", risk["decision"])
	}
}

func TestComplete_ReviewKeepsCompletedAtUnset(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestStore(server.URL).Complete(context.Background(), 7, Completion{
		Status:         domain.StatusReview,
		DeployDecision: domain.DeployBranchedForReview,
		BranchName:     "shipbot/change-20260110-7",
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if _, ok := gotBody["completed_at"]; ok {
		t.Error("completed_at should stay unset while the item waits for review")
	}
}

func TestInFlight(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"id": 3, "description": "stuck item", "status": "building", "created_at": "2026-01-10T08:00:00Z"}]`))
	}))
	defer server.Close()

	items, err := newTestStore(server.URL).InFlight(context.Background())
	if err != nil {
		t.Fatalf("InFlight failed: %v", err)
	}
	if !strings.Contains(gotQuery, "status=in.(processing,building)") {
		t.Errorf("query = %q", gotQuery)
	}
	if len(items) != 1 || items[0].Status != domain.StatusBuilding {
		t.Errorf("items = %+v", items)
	}
}

func TestGet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := newTestStore(server.URL).Get(context.Background(), 999)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRetryOn5xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := newTestStore(server.URL).NextPending(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "malformed filter"}`))
	}))
	defer server.Close()

	_, err := newTestStore(server.URL).NextPending(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (client errors are not retried)", attempts)
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestRetriesExhausted(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestStore(server.URL).NextPending(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}
