package apiclient

import (
	"net/url"

	"github.com/zipcase/zipcase/pkg/zipcase"
)

// NameSearchRequest is the body of POST /name-search.
type NameSearchRequest struct {
	Name         string `json:"name"`
	DateOfBirth  string `json:"dateOfBirth,omitempty"`
	SoundsLike   bool   `json:"soundsLike,omitempty"`
	CriminalOnly bool   `json:"criminalOnly,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
}

// NameSearchResult is the body of the name-search endpoints. Results
// carries the state of every case the search has discovered so far;
// Success turns true once the portal search itself has finished.
type NameSearchResult struct {
	SearchID string                          `json:"searchId"`
	Results  map[string]zipcase.SearchResult `json:"results"`
	Success  bool                            `json:"success"`
	Error    string                          `json:"error,omitempty"`
}

// NameSearch submits a party-name search and returns its search ID for
// polling.
func (c *Client) NameSearch(req NameSearchRequest) (*NameSearchResult, error) {
	var resp NameSearchResult
	if err := c.post("/name-search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetNameSearch polls a previously submitted name search.
func (c *Client) GetNameSearch(searchID string) (*NameSearchResult, error) {
	var resp NameSearchResult
	if err := c.get("/name-search/"+url.PathEscape(searchID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
