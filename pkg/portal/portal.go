// Package portal talks to the court portal: it authenticates users
// through the WS-Federation handshake, resolves case numbers to portal
// case IDs with the Smart Search screens, runs party-name searches, and
// fetches case detail JSON.
//
// The portal has no API contract. Everything here works the way a
// browser session does: one cookie jar per login, form POSTs, HTML
// scraping, and a bot-mitigation CDN in front of it all (pkg/portal/waf
// handles the interstitials). Error-page bodies are data, not
// exceptions: 4xx responses are surfaced to the parsers, only 5xx and
// transport failures are hard errors.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults for portal HTTP behavior.
const (
	DefaultTimeout     = 20 * time.Second
	DefaultCaseTimeout = 10 * time.Second
	DefaultSessionTTL  = 23 * time.Hour

	maxRedirects = 10
	maxBodyBytes = 10 << 20
)

// Config configures the portal clients.
type Config struct {
	// BaseURL is the portal root, e.g. https://portal.example.gov.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// CaseURL is the base URL of the case-detail JSON endpoint; the
	// portal case ID is appended as a path segment.
	CaseURL string `mapstructure:"case_url" validate:"omitempty,url"`

	// Timeout bounds each portal page request.
	Timeout time.Duration `mapstructure:"timeout"`

	// CaseTimeout bounds each case-detail request.
	CaseTimeout time.Duration `mapstructure:"case_timeout"`

	// SessionTTL caps how long an authenticated session is reused.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CaseTimeout <= 0 {
		c.CaseTimeout = DefaultCaseTimeout
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.CaseURL = strings.TrimRight(c.CaseURL, "/")
	return c
}

// ErrInvalidCredentials means the identity provider rejected the
// username/password pair. This is a user problem, not a system one.
var ErrInvalidCredentials = errors.New("portal rejected the stored credentials")

// InvalidCredentialsMessage is the user-facing text stamped on case
// records and API responses when authentication fails.
const InvalidCredentialsMessage = "Authentication failed: Invalid Email or password"

// SearchError is a portal search outcome that is not a result. System
// distinguishes transient backend degradation (retryable, the case goes
// to failed) from a definitive empty answer (the case goes to notFound).
type SearchError struct {
	Message string
	System  bool
}

func (e *SearchError) Error() string { return e.Message }

// IsSystemError classifies an error from a portal search: anything that
// is not an explicit non-system SearchError counts as a system error.
func IsSystemError(err error) bool {
	var se *SearchError
	if errors.As(err, &se) {
		return se.System
	}
	return err != nil
}

// IsNotFound reports whether the error is the definitive no-match
// outcome of a case search.
func IsNotFound(err error) bool {
	var se *SearchError
	return errors.As(err, &se) && !se.System
}

// Metrics observes portal operations. Implementations live in
// pkg/metrics; a nil Metrics disables observation.
type Metrics interface {
	// ObserveLogin records one authentication attempt.
	// Outcome is "success", "invalid_credentials" or "error".
	ObserveLogin(outcome string, d time.Duration)

	// ObserveChallenge records one bot-challenge solve attempt.
	ObserveChallenge(solved bool, d time.Duration)

	// ObserveSearch records one search or fetch against the portal.
	// Kind is "case", "name" or "summary"; outcome is "success",
	// "not_found" or "error".
	ObserveSearch(kind, outcome string, d time.Duration)
}

// newHTTPClient builds the browser-like client every portal interaction
// uses: shared jar, bounded redirects, one overall timeout.
func newHTTPClient(jar http.CookieJar, timeout time.Duration) *http.Client {
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// page is the outcome of one portal page load: final URL after
// redirects, status, and the full body.
type page struct {
	URL    *url.URL
	Status int
	Body   []byte
}

// Contains reports whether the body carries the given marker text.
func (p *page) Contains(marker string) bool {
	return strings.Contains(string(p.Body), marker)
}

// getPage GETs a portal URL. 4xx pages come back as data; 5xx and
// transport failures are errors.
func getPage(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return doPage(client, req, headers)
}

// postForm POSTs an URL-encoded form the way the portal's own pages do.
func postForm(ctx context.Context, client *http.Client, rawURL string, form url.Values, headers map[string]string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return doPage(client, req, headers)
}

func doPage(client *http.Client, req *http.Request, headers map[string]string) (*page, error) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read portal response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("portal returned status %d for %s", resp.StatusCode, req.URL.Path)
	}
	return &page{URL: resp.Request.URL, Status: resp.StatusCode, Body: body}, nil
}
