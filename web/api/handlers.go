package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hearthlabs/shipbot/internal/domain"
	"github.com/hearthlabs/shipbot/internal/runlog"
	"github.com/hearthlabs/shipbot/internal/workstore"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ItemResponse is the wire form of one work item.
type ItemResponse struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Requester       string   `json:"requester,omitempty"`
	Status          string   `json:"status"`
	DeployDecision  string   `json:"deploy_decision,omitempty"`
	BranchName      string   `json:"branch_name,omitempty"`
	FilesCreated    []string `json:"files_created,omitempty"`
	FilesModified   []string `json:"files_modified,omitempty"`
	ProgressMessage string   `json:"progress_message,omitempty"`
	BuildSummary    string   `json:"build_summary,omitempty"`
	PageURL         string   `json:"page_url,omitempty"`
	CreatedAt       string   `json:"created_at"`
	StartedAt       *string  `json:"started_at,omitempty"`
	CompletedAt     *string  `json:"completed_at,omitempty"`
}

// CycleResponse is the wire form of one ledger cycle.
type CycleResponse struct {
	ID             int64   `json:"id"`
	ItemID         int64   `json:"item_id"`
	Outcome        string  `json:"outcome"`
	Decision       string  `json:"decision,omitempty"`
	DeployDecision string  `json:"deploy_decision,omitempty"`
	Branch         string  `json:"branch,omitempty"`
	MergeSHA       string  `json:"merge_sha,omitempty"`
	ReleaseLabel   string  `json:"release_label,omitempty"`
	ErrorKind      string  `json:"error_kind,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	FilesCreated   int     `json:"files_created"`
	FilesModified  int     `json:"files_modified"`
	TokensInput    int     `json:"tokens_input"`
	TokensOutput   int     `json:"tokens_output"`
	CostUSD        float64 `json:"cost_usd"`
	StartedAt      string  `json:"started_at"`
	Duration       string  `json:"duration"`
}

// StatusResponse is the at-a-glance pipeline summary.
type StatusResponse struct {
	InFlight  []ItemResponse `json:"in_flight"`
	LastCycle *CycleResponse `json:"last_cycle,omitempty"`
	Totals    TotalsResponse `json:"totals"`
}

// TotalsResponse carries ledger-wide counts.
type TotalsResponse struct {
	Cycles       int     `json:"cycles"`
	Completed    int     `json:"completed"`
	Review       int     `json:"review"`
	Failed       int     `json:"failed"`
	AutoMerged   int     `json:"auto_merged"`
	TokensInput  int64   `json:"tokens_input"`
	TokensOutput int64   `json:"tokens_output"`
	CostUSD      float64 `json:"cost_usd"`
}

// ItemDetailResponse is one item plus every cycle that worked on it.
type ItemDetailResponse struct {
	Item   ItemResponse    `json:"item"`
	Cycles []CycleResponse `json:"cycles,omitempty"`
}

func itemToResponse(item domain.WorkItem) ItemResponse {
	resp := ItemResponse{
		ID:              item.ID,
		Title:           item.Title(),
		Description:     item.Description,
		Requester:       item.Requester,
		Status:          string(item.Status),
		DeployDecision:  string(item.DeployDecision),
		BranchName:      item.BranchName,
		FilesCreated:    item.FilesCreated,
		FilesModified:   item.FilesModified,
		ProgressMessage: item.ProgressMessage,
		BuildSummary:    item.BuildSummary,
		PageURL:         item.PageURL,
		CreatedAt:       item.CreatedAt.Format(time.RFC3339),
	}
	if item.StartedAt != nil {
		t := item.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &t
	}
	if item.CompletedAt != nil {
		t := item.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &t
	}
	return resp
}

func cycleToResponse(c *runlog.Cycle) CycleResponse {
	return CycleResponse{
		ID:             c.ID,
		ItemID:         c.ItemID,
		Outcome:        string(c.Outcome),
		Decision:       string(c.Decision),
		DeployDecision: string(c.DeployDecision),
		Branch:         c.Branch,
		MergeSHA:       c.MergeSHA,
		ReleaseLabel:   c.ReleaseLabel,
		ErrorKind:      string(c.ErrorKind),
		ErrorMessage:   c.ErrorMessage,
		FilesCreated:   c.FilesCreated,
		FilesModified:  c.FilesModified,
		TokensInput:    c.TokensInput,
		TokensOutput:   c.TokensOutput,
		CostUSD:        c.CostUSD,
		StartedAt:      c.StartedAt.Format(time.RFC3339),
		Duration:       c.Duration().Round(time.Second).String(),
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		inFlight, err := s.items.InFlight(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := StatusResponse{InFlight: make([]ItemResponse, len(inFlight))}
		for i, item := range inFlight {
			resp.InFlight[i] = itemToResponse(item)
		}

		if s.history != nil {
			stats, err := s.history.Stats()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp.Totals = TotalsResponse{
				Cycles:       stats.Total,
				Completed:    stats.Completed,
				Review:       stats.Review,
				Failed:       stats.Failed,
				AutoMerged:   stats.AutoMerged,
				TokensInput:  stats.TokensInput,
				TokensOutput: stats.TokensOutput,
				CostUSD:      stats.CostUSD,
			}

			last, err := s.history.Recent(1)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if len(last) > 0 {
				c := cycleToResponse(last[0])
				resp.LastCycle = &c
			}
		}

		writeJSON(w, resp)
	}
}

func (s *Server) listItemsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		items, err := s.items.Recent(r.Context(), listLimit(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]ItemResponse, len(items))
		for i, item := range items {
			responses[i] = itemToResponse(item)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getItemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		raw := strings.TrimPrefix(r.URL.Path, "/api/items/")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "item id must be numeric")
			return
		}

		item, err := s.items.Get(r.Context(), id)
		if errors.Is(err, workstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := ItemDetailResponse{Item: itemToResponse(*item)}
		if s.history != nil {
			cycles, err := s.history.ForItem(id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			for _, c := range cycles {
				resp.Cycles = append(resp.Cycles, cycleToResponse(c))
			}
		}

		writeJSON(w, resp)
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if s.history == nil {
			writeJSON(w, []CycleResponse{})
			return
		}

		cycles, err := s.history.Recent(listLimit(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]CycleResponse, len(cycles))
		for i, c := range cycles {
			responses[i] = cycleToResponse(c)
		}

		writeJSON(w, responses)
	}
}

func listLimit(r *http.Request) int {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}
