package zipcase

import (
	"strings"
	"time"
)

// NameSearchTTL is how long finished name searches stay readable before
// the store may reap them. Name searches are ephemeral by design; cases
// they discover are persisted independently and never expire.
const NameSearchTTL = 24 * time.Hour

// NameSearch tracks one by-name portal search through the pipeline. Its
// lifecycle mirrors the case state machine but is much smaller: queued,
// processing, complete or failed, with the discovered case numbers
// accumulating on the record.
type NameSearch struct {
	SearchID string `json:"searchId"`

	// OriginalName is the name exactly as the user typed it.
	OriginalName string `json:"originalName"`

	// NormalizedName is the form submitted to the portal (see
	// NormalizeName).
	NormalizedName string `json:"normalizedName"`

	// DateOfBirth narrows the search when present, ISO-8601 date form.
	DateOfBirth string `json:"dateOfBirth,omitempty"`

	// SoundsLike enables the portal's phonetic match.
	SoundsLike bool `json:"soundsLike"`

	// CriminalOnly restricts the portal search to criminal cases and
	// infractions.
	CriminalOnly bool `json:"criminalOnly,omitempty"`

	// Cases holds the canonical case numbers discovered so far, in
	// portal result order, de-duplicated.
	Cases []string `json:"cases"`

	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NormalizeName rewrites a free-form person name into the surname-first
// form the portal's party search indexes: whitespace collapsed and, when
// the input is not already comma-separated, the last token moved to the
// front ("first middle last" becomes "last, first middle"). Single-token
// and already-normalized names pass through with whitespace cleanup
// only.
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	collapsed := strings.Join(fields, " ")
	if strings.Contains(collapsed, ",") || len(fields) < 2 {
		return collapsed
	}
	last := fields[len(fields)-1]
	rest := strings.Join(fields[:len(fields)-1], " ")
	return last + ", " + rest
}
