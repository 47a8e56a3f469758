//go:build e2e

package e2e

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	portalUsername = "jane@example.com"
	portalPassword = "hunter2"
	portalCSRF     = "csrf-e2e"
	portalWResult  = "signed-token-e2e"
)

// courtPortal emulates the public court portal end to end: the
// WS-Federation login handshake (optionally behind a bot challenge),
// the Smart Search screens and the case-detail JSON API. Search
// criteria round-trip through the SmartSearchCriteria cookie, the same
// way the real portal keeps the results page stateless, so concurrent
// workers never trample each other's searches.
type courtPortal struct {
	srv *httptest.Server

	mu      sync.Mutex
	caseIDs map[string]string // canonical case number -> portal case ID
	details map[string]string // portal case ID -> detail JSON
	parties map[string][]partyHit

	// challenged serves the bot interstitial on the login page until an
	// aws-waf-token cookie arrives.
	challenged bool

	logins        int32
	challengeGETs int32
	detailGETs    int32
}

// partyHit is one row a party-name search returns.
type partyHit struct {
	CaseNumber string
	CaseID     string
}

func newCourtPortal(t *testing.T) *courtPortal {
	t.Helper()

	p := &courtPortal{
		caseIDs: map[string]string{},
		details: map[string]string{},
		parties: map[string][]partyHit{},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /Portal/Account/Login", func(w http.ResponseWriter, r *http.Request) {
		if p.challenged {
			if _, err := r.Cookie("aws-waf-token"); err != nil {
				atomic.AddInt32(&p.challengeGETs, 1)
				fmt.Fprint(w, `<html><script>window.gokuProps = {"key":"k","iv":"i","context":"c"};</script></html>`)
				return
			}
		}
		http.Redirect(w, r, "/idp/signin", http.StatusFound)
	})

	mux.HandleFunc("GET /idp/signin", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><form method="post"><input name="__RequestVerificationToken" type="hidden" value="%s"></form></html>`, portalCSRF)
	})

	mux.HandleFunc("POST /idp/signin", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.logins, 1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("__RequestVerificationToken") != portalCSRF {
			http.Error(w, "missing verification token", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("UserName") != portalUsername || r.PostForm.Get("Password") != portalPassword {
			fmt.Fprint(w, `<html><div class="validation-summary-errors">Invalid Email or password.</div></html>`)
			return
		}
		fmt.Fprintf(w, `<html><form action="/Portal"><input name="wresult" value="%s"></form></html>`, portalWResult)
	})

	mux.HandleFunc("POST /Portal", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("wa") != "wsignin1.0" || r.PostForm.Get("wresult") != portalWResult {
			fmt.Fprint(w, "<html>sign in</html>")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "FedAuth", Value: "fed-a", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "FedAuth1", Value: "fed-b", Path: "/"})
		fmt.Fprint(w, "<html>Welcome, Jane Doe</html>")
	})

	mux.HandleFunc("GET /Portal", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("FedAuth"); err == nil {
			fmt.Fprint(w, "<html>Welcome, Jane Doe</html>")
			return
		}
		fmt.Fprint(w, "<html>sign in</html>")
	})

	mux.HandleFunc("POST /Portal/SmartSearch/SmartSearch/SmartSearch", func(w http.ResponseWriter, r *http.Request) {
		if !signedIn(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// The criteria cookie carries the search so the results page can
		// render it back without server-side state.
		encoded := base64.RawURLEncoding.EncodeToString([]byte(r.PostForm.Encode()))
		http.SetCookie(w, &http.Cookie{Name: "SmartSearchCriteria", Value: encoded, Path: "/"})
	})

	mux.HandleFunc("GET /Portal/SmartSearch/SmartSearchResults", func(w http.ResponseWriter, r *http.Request) {
		if !signedIn(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		criteria, err := decodeCriteria(r)
		if err != nil {
			fmt.Fprint(w, "<html>Smart Search is having trouble processing your search. Please try again later.</html>")
			return
		}

		if criteria.Get("caseCriteria.SearchByPartyName") == "true" {
			p.renderPartyResults(w, criteria)
			return
		}
		p.renderCaseResults(w, criteria.Get("caseCriteria.SearchCriteria"))
	})

	mux.HandleFunc("GET /api/cases/{caseID}", func(w http.ResponseWriter, r *http.Request) {
		if !signedIn(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		atomic.AddInt32(&p.detailGETs, 1)

		p.mu.Lock()
		detail, ok := p.details[r.PathValue("caseID")]
		p.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, detail)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

// URL is the portal root; CaseURL is the detail API base.
func (p *courtPortal) URL() string     { return p.srv.URL }
func (p *courtPortal) CaseURL() string { return p.srv.URL + "/api/cases" }

// AddCase registers a case the smart search resolves and the detail API
// serves.
func (p *courtPortal) AddCase(caseNumber, caseID, detailJSON string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caseIDs[caseNumber] = caseID
	p.details[caseID] = detailJSON
}

// AddParty registers the hits a party-name search returns. The name is
// matched in the portal's surname-first form.
func (p *courtPortal) AddParty(name string, hits ...partyHit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parties[name] = hits
}

// Logins reports how many credential POSTs the identity provider has
// seen; session reuse keeps this flat.
func (p *courtPortal) Logins() int32 { return atomic.LoadInt32(&p.logins) }

func (p *courtPortal) renderCaseResults(w http.ResponseWriter, caseNumber string) {
	p.mu.Lock()
	caseID, ok := p.caseIDs[caseNumber]
	p.mu.Unlock()
	if !ok {
		fmt.Fprint(w, `<html><div class="no-results">No cases match your search.</div></html>`)
		return
	}
	fmt.Fprintf(w, `<html><a class="caseLink" data-caseid="%s">%s</a></html>`, caseID, caseNumber)
}

func (p *courtPortal) renderPartyResults(w http.ResponseWriter, criteria url.Values) {
	name := criteria.Get("caseCriteria.SearchCriteria")

	p.mu.Lock()
	hits := p.parties[name]
	p.mu.Unlock()

	rows := make([]string, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, fmt.Sprintf(`{"EncryptedCaseId":%q,"CaseNumber":%q}`, h.CaseID, h.CaseNumber))
	}
	grid := fmt.Sprintf(`{"columns":[{"field":"CaseNumber"}],"dataSource":{"data":{"Data":[{"CaseResults":[%s]}],"Total":%d}},"sortable":true}`,
		strings.Join(rows, ","), len(hits))

	fmt.Fprintf(w, `<html><script>
jQuery(function() {
jQuery("#Grid").kendoGrid(%s);
});
</script></html>`, grid)
}

// signedIn reports whether the request carries the federation cookies a
// live portal session holds.
func signedIn(r *http.Request) bool {
	_, err := r.Cookie("FedAuth")
	return err == nil
}

// decodeCriteria recovers the form submitted to the criteria endpoint
// from the round-tripped cookie.
func decodeCriteria(r *http.Request) (url.Values, error) {
	c, err := r.Cookie("SmartSearchCriteria")
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, err
	}
	return url.ParseQuery(string(raw))
}

// caseDetail builds a minimal, valid case-detail payload for tests that
// do not care about specific charges.
func caseDetail(style, court string) string {
	doc := map[string]any{
		"CaseSummaryHeader": map[string]string{
			"Style": style,
			"Court": court,
		},
		"Charges": []any{
			map[string]any{
				"ChargeOffense": map[string]string{
					"ChargeOffenseDescription": "SPEEDING",
					"Statute":                  "20-141(B)",
					"Degree":                   "IFR",
				},
				"FiledDate": "01/20/2024",
				"Dispositions": []any{
					map[string]string{
						"DispositionDate":            "03/01/2024",
						"DispositionTypeCode":        "GU",
						"DispositionTypeDescription": "Guilty - responsible",
					},
				},
			},
		},
		"Events": []any{
			map[string]string{"EventType": "CIT", "EventDate": "2024-01-15"},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err) // static input, cannot fail
	}
	return string(b)
}
