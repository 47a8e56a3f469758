package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/internal/telemetry"
)

const (
	smartSearchPath        = "/Portal/SmartSearch/SmartSearch/SmartSearch"
	smartSearchResultsPath = "/Portal/SmartSearch/SmartSearchResults"
	workspaceRefererPath   = "/Portal/Home/WorkspaceMode?p=0"

	// smartSearchTroubleMarker appears when the search backend is
	// degraded; such failures are transient and worth retrying later.
	smartSearchTroubleMarker = "Smart Search is having trouble processing your search"

	// criteriaCookie must be set by the criteria POST or the results
	// page renders empty.
	criteriaCookie = "SmartSearchCriteria"

	criminalCaseType = "Criminal and Infraction"
)

// Client runs searches and fetches against an authenticated session's
// cookie jar.
type Client struct {
	cfg     Config
	clock   clockwork.Clock
	metrics Metrics
}

// NewClient creates a portal search client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:   cfg.withDefaults(),
		clock: clockwork.NewRealClock(),
	}
}

// WithClock replaces the client's clock. Used by tests.
func (c *Client) WithClock(clock clockwork.Clock) *Client {
	c.clock = clock
	return c
}

// WithMetrics wires operation metrics.
func (c *Client) WithMetrics(metrics Metrics) *Client {
	c.metrics = metrics
	return c
}

// FetchCaseID resolves a case number to the portal's case ID through
// the Smart Search screens. A definitive empty result comes back as a
// non-system SearchError (see IsNotFound); everything else that goes
// wrong is a system error.
func (c *Client) FetchCaseID(ctx context.Context, jar *Jar, userAgent, caseNumber string) (string, error) {
	ctx, span := telemetry.StartPortalSpan(ctx, "search", telemetry.CaseNumber(caseNumber))
	defer span.End()

	start := c.clock.Now()
	caseID, err := c.fetchCaseID(ctx, jar, userAgent, caseNumber)
	c.observeSearch("case", err, c.clock.Since(start))
	if err != nil && !IsNotFound(err) {
		telemetry.RecordError(ctx, err)
	}
	return caseID, err
}

func (c *Client) fetchCaseID(ctx context.Context, jar *Jar, userAgent, caseNumber string) (string, error) {
	client := newHTTPClient(jar, c.cfg.Timeout)
	headers := c.headers(userAgent)

	form := url.Values{
		"caseCriteria.SearchCriteria": {caseNumber},
		"caseCriteria.SearchCases":    {"true"},
	}
	criteria, err := postForm(ctx, client, c.cfg.BaseURL+smartSearchPath, form, headers)
	if err != nil {
		return "", &SearchError{Message: fmt.Sprintf("search submission failed: %v", err), System: true}
	}
	if criteria.Status != 200 {
		return "", &SearchError{Message: fmt.Sprintf("search submission returned status %d", criteria.Status), System: true}
	}

	results, err := getPage(ctx, client, c.cfg.BaseURL+smartSearchResultsPath, headers)
	if err != nil {
		return "", &SearchError{Message: fmt.Sprintf("search results failed: %v", err), System: true}
	}
	if results.Status != 200 {
		return "", &SearchError{Message: fmt.Sprintf("search results returned status %d", results.Status), System: true}
	}
	if results.Contains(smartSearchTroubleMarker) {
		return "", &SearchError{Message: "the portal search backend is degraded", System: true}
	}

	caseID := firstCaseLinkID(results.Body)
	if caseID == "" {
		return "", &SearchError{Message: "no cases matched " + caseNumber, System: false}
	}

	logger.DebugCtx(ctx, "Resolved case number",
		"case_number", caseNumber,
		"case_id", caseID)
	return caseID, nil
}

// NameSearchParams describe one party-name search.
type NameSearchParams struct {
	// Name in the portal's surname-first form (zipcase.NormalizeName).
	Name string

	// DateOfBirth narrows the search when present, ISO-8601 date form.
	DateOfBirth string

	// SoundsLike enables the portal's phonetic match.
	SoundsLike bool

	// CriminalOnly restricts results to criminal cases and infractions.
	CriminalOnly bool
}

// NameSearchHit is one case discovered by a party-name search.
type NameSearchHit struct {
	CaseID     string
	CaseNumber string
}

// The results grid arrives as a kendoGrid initializer inlined in the
// page script; its data payload is the only JSON island we need.
var (
	kendoGridRe = regexp.MustCompile(`(?s)jQuery\("#Grid"\)\.kendoGrid\((.*?)\);`)
	kendoDataRe = regexp.MustCompile(`(?s)"data":\{"Data":.*?"Total":\d+\}\}`)
)

type kendoGridData struct {
	Data struct {
		Data []struct {
			CaseResults []struct {
				EncryptedCaseID string `json:"EncryptedCaseId"`
				CaseNumber      string `json:"CaseNumber"`
			} `json:"CaseResults"`
		} `json:"Data"`
		Total int `json:"Total"`
	} `json:"data"`
}

// FetchCasesByName runs a party-name search and returns the cases it
// discovered, de-duplicated by case number in portal result order. An
// empty slice is a legitimate outcome.
func (c *Client) FetchCasesByName(ctx context.Context, jar *Jar, userAgent string, params NameSearchParams) ([]NameSearchHit, error) {
	ctx, span := telemetry.StartPortalSpan(ctx, "name_search")
	defer span.End()

	start := c.clock.Now()
	hits, err := c.fetchCasesByName(ctx, jar, userAgent, params)
	c.observeSearch("name", err, c.clock.Since(start))
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return hits, err
}

func (c *Client) fetchCasesByName(ctx context.Context, jar *Jar, userAgent string, params NameSearchParams) ([]NameSearchHit, error) {
	client := newHTTPClient(jar, c.cfg.Timeout)
	headers := c.headers(userAgent)

	form := url.Values{
		"caseCriteria.SearchCriteria":    {params.Name},
		"caseCriteria.SearchByPartyName": {"true"},
		"caseCriteria.SearchCases":       {"true"},
	}
	if params.DateOfBirth != "" {
		form.Set("caseCriteria.DOBFrom", params.DateOfBirth)
		form.Set("caseCriteria.DOBTo", params.DateOfBirth)
	}
	if params.SoundsLike {
		form.Set("caseCriteria.UseSoundex", "true")
	}
	if params.CriminalOnly {
		form.Set("caseCriteria.CaseType", criminalCaseType)
	}

	criteria, err := postForm(ctx, client, c.cfg.BaseURL+smartSearchPath, form, headers)
	if err != nil {
		return nil, &SearchError{Message: fmt.Sprintf("name search submission failed: %v", err), System: true}
	}
	if criteria.Status != 200 {
		return nil, &SearchError{Message: fmt.Sprintf("name search submission returned status %d", criteria.Status), System: true}
	}

	// Without the criteria cookie the results page silently renders
	// empty, which would read as a false no-match.
	if !jar.Has(criteriaCookie) {
		return nil, &SearchError{Message: "portal did not acknowledge the search criteria", System: true}
	}

	resultHeaders := c.headers(userAgent)
	resultHeaders["Referer"] = c.cfg.BaseURL + workspaceRefererPath

	results, err := getPage(ctx, client, c.cfg.BaseURL+smartSearchResultsPath, resultHeaders)
	if err != nil {
		return nil, &SearchError{Message: fmt.Sprintf("name search results failed: %v", err), System: true}
	}
	if results.Status != 200 {
		return nil, &SearchError{Message: fmt.Sprintf("name search results returned status %d", results.Status), System: true}
	}
	if results.Contains(smartSearchTroubleMarker) {
		return nil, &SearchError{Message: "the portal search backend is degraded", System: true}
	}

	return parseNameSearchResults(results.Body)
}

// parseNameSearchResults digs the grid JSON out of the results page
// script and flattens it to hits.
func parseNameSearchResults(body []byte) ([]NameSearchHit, error) {
	grid := kendoGridRe.Find(body)
	if grid == nil {
		return nil, &SearchError{Message: "results page carried no grid", System: true}
	}
	data := kendoDataRe.Find(grid)
	if data == nil {
		return nil, &SearchError{Message: "results grid carried no data payload", System: true}
	}

	var parsed kendoGridData
	if err := json.Unmarshal(append([]byte("{"), data...), &parsed); err != nil {
		return nil, &SearchError{Message: fmt.Sprintf("results grid data unparseable: %v", err), System: true}
	}

	var hits []NameSearchHit
	seen := map[string]bool{}
	for _, row := range parsed.Data.Data {
		for _, result := range row.CaseResults {
			if result.EncryptedCaseID == "" || result.CaseNumber == "" {
				continue
			}
			if seen[result.CaseNumber] {
				continue
			}
			seen[result.CaseNumber] = true
			hits = append(hits, NameSearchHit{
				CaseID:     result.EncryptedCaseID,
				CaseNumber: result.CaseNumber,
			})
		}
	}
	return hits, nil
}

func (c *Client) headers(userAgent string) map[string]string {
	h := map[string]string{}
	if userAgent != "" {
		h["User-Agent"] = userAgent
	}
	return h
}

func (c *Client) observeSearch(kind string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case IsNotFound(err):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	c.metrics.ObserveSearch(kind, outcome, d)
}
