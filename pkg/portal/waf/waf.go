// Package waf detects and solves the bot-mitigation interstitials the
// portal's CDN periodically serves in place of real pages.
//
// Detection is a cheap local heuristic over the response; solving is
// delegated to an external provider behind the Solver interface, which
// returns an opaque token the caller installs as an `aws-waf-token`
// cookie before retrying the original request.
package waf

import (
	"bytes"
	"context"
	"net/http"
)

// Options carries per-solve hints for the provider.
type Options struct {
	// UserAgent is the browser identity the caller will replay the
	// solved token under. Providers fingerprint-match against it.
	UserAgent string
}

// Solver recognizes challenge pages and trades them for tokens.
type Solver interface {
	// Detect reports whether the response looks like a bot challenge.
	Detect(statusCode int, body []byte) bool

	// Solve submits the challenge page to the provider and returns the
	// token to install as the aws-waf-token cookie value.
	Solve(ctx context.Context, pageURL string, body []byte, opts Options) (string, error)
}

// challengeMarkers are substrings that only occur on the interstitial,
// never on real portal pages.
var challengeMarkers = [][]byte{
	[]byte("window.gokuProps"),
	[]byte("challenge.js"),
	[]byte("captcha.js"),
	[]byte("visualSolutionsRequired"),
	[]byte("awswaf.com"),
	[]byte("aws-waf-token"),
}

// Detect is the shared challenge heuristic: the CDN answers 405 to
// requests it wants to challenge, or serves an HTML shim referencing
// its challenge scripts.
func Detect(statusCode int, body []byte) bool {
	if statusCode == http.StatusMethodNotAllowed {
		return true
	}
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}
