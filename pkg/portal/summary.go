package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/zipcase/zipcase/internal/telemetry"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// Portal event type codes that populate the arrest/citation fields.
const (
	eventTypeArrest   = "LPSD"
	eventTypeCitation = "CIT"
)

// caseDetail is the slice of the portal's case-detail JSON this service
// consumes. The endpoint returns far more; unknown fields are ignored.
type caseDetail struct {
	CaseSummaryHeader struct {
		Style string `json:"Style"`
		Court string `json:"Court"`
	} `json:"CaseSummaryHeader"`

	Charges []struct {
		ChargeOffense struct {
			ChargeOffenseDescription string `json:"ChargeOffenseDescription"`
			Statute                  string `json:"Statute"`
			Degree                   string `json:"Degree"`
		} `json:"ChargeOffense"`
		FiledDate    string `json:"FiledDate"`
		Dispositions []struct {
			DispositionDate            string `json:"DispositionDate"`
			DispositionTypeCode        string `json:"DispositionTypeCode"`
			DispositionTypeDescription string `json:"DispositionTypeDescription"`
		} `json:"Dispositions"`
	} `json:"Charges"`

	Events []struct {
		EventType string `json:"EventType"`
		EventDate string `json:"EventDate"`
	} `json:"Events"`
}

// FetchCaseSummary fetches the case-detail JSON for a resolved case ID
// and shapes it into a CaseSummary.
func (c *Client) FetchCaseSummary(ctx context.Context, jar *Jar, userAgent, caseID string) (*zipcase.CaseSummary, error) {
	ctx, span := telemetry.StartPortalSpan(ctx, "case_summary", telemetry.CaseID(caseID))
	defer span.End()

	start := c.clock.Now()
	summary, err := c.fetchCaseSummary(ctx, jar, userAgent, caseID)
	c.observeSearch("summary", err, c.clock.Since(start))
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return summary, err
}

func (c *Client) fetchCaseSummary(ctx context.Context, jar *Jar, userAgent, caseID string) (*zipcase.CaseSummary, error) {
	if c.cfg.CaseURL == "" {
		return nil, errors.New("no case detail endpoint configured")
	}

	client := newHTTPClient(jar, c.cfg.CaseTimeout)
	headers := c.headers(userAgent)
	headers["Accept"] = "application/json"

	detailURL := c.cfg.CaseURL + "/" + url.PathEscape(caseID)
	p, err := getPage(ctx, client, detailURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch case detail: %w", err)
	}
	if p.Status != 200 {
		return nil, fmt.Errorf("case detail returned status %d", p.Status)
	}

	var detail caseDetail
	if err := json.Unmarshal(p.Body, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode case detail: %w", err)
	}
	return summaryFromDetail(&detail), nil
}

// summaryFromDetail maps the portal payload onto the domain type. The
// charge list is always list-typed, even when empty.
func summaryFromDetail(detail *caseDetail) *zipcase.CaseSummary {
	summary := &zipcase.CaseSummary{
		CaseName: detail.CaseSummaryHeader.Style,
		Court:    detail.CaseSummaryHeader.Court,
		Charges:  make([]zipcase.Charge, 0, len(detail.Charges)),
	}

	for _, raw := range detail.Charges {
		charge := zipcase.Charge{
			Description:  raw.ChargeOffense.ChargeOffenseDescription,
			Statute:      raw.ChargeOffense.Statute,
			Degree:       raw.ChargeOffense.Degree,
			FileDate:     normalizeDate(raw.FiledDate),
			Dispositions: make([]zipcase.Disposition, 0, len(raw.Dispositions)),
		}
		for _, d := range raw.Dispositions {
			charge.Dispositions = append(charge.Dispositions, zipcase.Disposition{
				Date:        normalizeDate(d.DispositionDate),
				Code:        d.DispositionTypeCode,
				Description: d.DispositionTypeDescription,
			})
		}
		summary.Charges = append(summary.Charges, charge)
	}

	if date, kind, ok := earliestArrestOrCitation(detail); ok {
		summary.ArrestOrCitationDate = date.Format("2006-01-02")
		summary.ArrestOrCitationType = kind
	}
	return summary
}

// earliestArrestOrCitation scans the event log for the first arrest or
// citation, whichever happened soonest.
func earliestArrestOrCitation(detail *caseDetail) (time.Time, string, bool) {
	var (
		earliest time.Time
		kind     string
	)
	for _, e := range detail.Events {
		var label string
		switch e.EventType {
		case eventTypeArrest:
			label = "Arrest"
		case eventTypeCitation:
			label = "Citation"
		default:
			continue
		}
		when, ok := parseDate(e.EventDate)
		if !ok {
			continue
		}
		if earliest.IsZero() || when.Before(earliest) {
			earliest = when
			kind = label
		}
	}
	return earliest, kind, !earliest.IsZero()
}

// dateLayouts are the date renderings observed across portal payloads.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeDate rewrites a portal date into ISO-8601 date form, passing
// unrecognized values through untouched.
func normalizeDate(s string) string {
	if s == "" {
		return ""
	}
	if t, ok := parseDate(s); ok {
		return t.Format("2006-01-02")
	}
	return s
}
