package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/pipeline"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// NameSearchPipeline is the slice of the pipeline coordinator the
// name-search endpoints consume. *pipeline.Coordinator implements it.
type NameSearchPipeline interface {
	SubmitNameSearch(ctx context.Context, req pipeline.NameSearchRequest) (string, error)
	NameSearchStatus(ctx context.Context, userID, searchID string) (*zipcase.NameSearch, map[string]zipcase.SearchResult, error)
}

// NameSearchHandler handles party-name search endpoints.
type NameSearchHandler struct {
	pipeline NameSearchPipeline
}

// NewNameSearchHandler creates a new NameSearchHandler.
func NewNameSearchHandler(pipeline NameSearchPipeline) *NameSearchHandler {
	return &NameSearchHandler{pipeline: pipeline}
}

// NameSearchRequest is the request body for POST /name-search.
type NameSearchRequest struct {
	Name         string `json:"name"`
	DateOfBirth  string `json:"dateOfBirth,omitempty"`
	SoundsLike   bool   `json:"soundsLike,omitempty"`
	CriminalOnly bool   `json:"criminalOnly,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
}

// NameSearchResponse is the response body for the name-search endpoints.
// Results carry the per-case state of every case the search has
// discovered so far, keyed by case number. Success flips to true once
// the search itself has completed; Error carries the failure message
// when it has not.
type NameSearchResponse struct {
	SearchID string                          `json:"searchId"`
	Results  map[string]zipcase.SearchResult `json:"results"`
	Success  bool                            `json:"success"`
	Error    string                          `json:"error,omitempty"`
}

// Submit handles POST /name-search.
//
// The search is queued for asynchronous processing and its ID returned
// immediately with 202; cases are discovered and fetched in the
// background as the search progresses.
func (h *NameSearchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req NameSearchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	searchID, err := h.pipeline.SubmitNameSearch(r.Context(), pipeline.NameSearchRequest{
		Name:         req.Name,
		DateOfBirth:  req.DateOfBirth,
		SoundsLike:   req.SoundsLike,
		CriminalOnly: req.CriminalOnly,
		UserID:       userID,
		UserAgent:    req.UserAgent,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyName) {
			BadRequest(w, "Missing name parameter")
			return
		}
		logger.ErrorCtx(r.Context(), "Name search submit failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to submit name search")
		return
	}

	WriteJSONAccepted(w, NameSearchResponse{
		SearchID: searchID,
		Results:  map[string]zipcase.SearchResult{},
	})
}

// Get handles GET /name-search/{searchId}.
//
// Returns the search record joined with the current state of every case
// it has found. Clients poll until Success is true or Error is set.
func (h *NameSearchHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	searchID := chi.URLParam(r, "searchId")
	if searchID == "" {
		BadRequest(w, "Missing search ID")
		return
	}

	ns, results, err := h.pipeline.NameSearchStatus(r.Context(), userID, searchID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			NotFound(w, "Search not found")
			return
		}
		logger.ErrorCtx(r.Context(), "Name search lookup failed",
			"user_id", userID,
			"search_id", searchID,
			"error", err)
		InternalServerError(w, "Failed to look up name search")
		return
	}

	resp := NameSearchResponse{
		SearchID: ns.SearchID,
		Results:  results,
		Success:  ns.Status == zipcase.StatusComplete,
	}
	if ns.Status == zipcase.StatusFailed {
		resp.Error = ns.Message
	}

	WriteJSONOK(w, resp)
}
