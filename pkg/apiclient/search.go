package apiclient

import (
	"net/http"
	"net/url"

	"github.com/zipcase/zipcase/pkg/zipcase"
)

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Search    string `json:"search"`
	UserAgent string `json:"userAgent,omitempty"`
}

// SearchResponse is the body of the search and status endpoints:
// per-case state keyed by canonical case number.
type SearchResponse struct {
	Results map[string]zipcase.SearchResult `json:"results"`
}

// CaseStatus is the state of a single case as reported by
// GET /case/{caseNumber}. Pending is true while the fetch is still in
// flight (the server answered 202).
type CaseStatus struct {
	Result  zipcase.SearchResult
	Pending bool
}

// Search submits free-form search text. Every recognizable case number
// in it is queued for fetching; the current per-case state comes back
// immediately.
func (c *Client) Search(search, userAgent string) (map[string]zipcase.SearchResult, error) {
	var resp SearchResponse
	if err := c.post("/search", SearchRequest{Search: search, UserAgent: userAgent}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Status polls the current state of the given cases without queueing
// anything. Unknown case numbers are absent from the result.
func (c *Client) Status(caseNumbers []string) (map[string]zipcase.SearchResult, error) {
	var resp SearchResponse
	body := struct {
		CaseNumbers []string `json:"caseNumbers"`
	}{CaseNumbers: caseNumbers}

	if err := c.post("/status", body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetCase queues a single case (when it still needs fetching) and
// returns its current state.
func (c *Client) GetCase(caseNumber string) (*CaseStatus, error) {
	var result zipcase.SearchResult
	status, err := c.do(http.MethodGet, "/case/"+url.PathEscape(caseNumber), nil, &result)
	if err != nil {
		return nil, err
	}
	return &CaseStatus{Result: result, Pending: status == http.StatusAccepted}, nil
}
