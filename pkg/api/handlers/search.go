package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/pipeline"
	"github.com/zipcase/zipcase/pkg/portal"
	"github.com/zipcase/zipcase/pkg/userstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// SearchPipeline is the slice of the pipeline coordinator the search
// endpoints consume. *pipeline.Coordinator implements it.
type SearchPipeline interface {
	Search(ctx context.Context, req pipeline.SearchRequest) (map[string]zipcase.SearchResult, error)
	Status(ctx context.Context, userID string, caseNumbers []string) (map[string]zipcase.SearchResult, error)
}

// CredentialsReader reports whether a user has portal credentials on
// file. *userstore.Store implements it.
type CredentialsReader interface {
	GetCredentials(ctx context.Context, userID string) (*zipcase.PortalCredentials, error)
}

// SearchHandler handles case search and polling endpoints.
type SearchHandler struct {
	pipeline SearchPipeline
	users    CredentialsReader
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(pipeline SearchPipeline, users CredentialsReader) *SearchHandler {
	return &SearchHandler{pipeline: pipeline, users: users}
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Search    string `json:"search"`
	UserAgent string `json:"userAgent,omitempty"`
}

// SearchResponse is the response body for the search and status
// endpoints: per-case state keyed by case number.
type SearchResponse struct {
	Results map[string]zipcase.SearchResult `json:"results"`
}

// StatusRequest is the request body for POST /status.
type StatusRequest struct {
	CaseNumbers []string `json:"caseNumbers"`
}

// Search handles POST /search.
//
// Case numbers are extracted from the free-form search text, queued for
// asynchronous fetching, and the current per-case state is returned
// immediately with 202. Repeating a search is safe: fresh cases are
// returned as-is, stale and failed ones are re-queued.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Search == "" {
		BadRequest(w, "Missing search parameter")
		return
	}

	results, err := h.pipeline.Search(r.Context(), pipeline.SearchRequest{
		Input:     req.Search,
		UserID:    userID,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		logger.ErrorCtx(r.Context(), "Case search failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to process search")
		return
	}

	WriteJSONAccepted(w, SearchResponse{Results: results})
}

// Status handles POST /status.
//
// Returns the current state of the given cases without queueing
// anything. Unknown case numbers are simply absent from the response.
func (h *SearchHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if len(req.CaseNumbers) == 0 {
		BadRequest(w, "Missing caseNumbers parameter")
		return
	}

	results, err := h.pipeline.Status(r.Context(), userID, req.CaseNumbers)
	if err != nil {
		logger.ErrorCtx(r.Context(), "Case status lookup failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to look up case status")
		return
	}

	WriteJSONOK(w, SearchResponse{Results: results})
}

// GetCase handles GET /case/{caseNumber}.
//
// A synchronous-feeling wrapper over the async pipeline: the case is
// (re-)queued exactly like POST /search and its current state returned,
// 200 once the fetch has settled and 202 while work is still pending.
// Callers without stored portal credentials get 403 up front rather
// than a case doomed to fail.
func (h *SearchHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrUnauthorized(w, r)
	if !ok {
		return
	}

	caseNumber := chi.URLParam(r, "caseNumber")
	if caseNumber == "" {
		BadRequest(w, "Missing case number")
		return
	}

	if _, err := h.users.GetCredentials(r.Context(), userID); err != nil {
		if errors.Is(err, userstore.ErrNoCredentials) {
			Forbidden(w, "Portal credentials required")
			return
		}
		logger.ErrorCtx(r.Context(), "Credential lookup failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to look up credentials")
		return
	}

	results, err := h.pipeline.Search(r.Context(), pipeline.SearchRequest{
		Input:  caseNumber,
		UserID: userID,
	})
	if err != nil {
		logger.ErrorCtx(r.Context(), "Case fetch failed", "user_id", userID, "error", err)
		InternalServerError(w, "Failed to fetch case")
		return
	}

	result, found := results[zipcase.NormalizeCaseNumber(caseNumber)]
	if !found {
		// The input did not parse as a case number.
		BadRequest(w, "Invalid case number")
		return
	}

	status := result.ZipCase.FetchStatus
	if status.Status == zipcase.StatusFailed && status.Message == portal.InvalidCredentialsMessage {
		Unauthorized(w, portal.InvalidCredentialsMessage)
		return
	}

	if status.Status.Settled() {
		WriteJSONOK(w, result)
		return
	}
	WriteJSONAccepted(w, result)
}
