package zipcase

import (
	"errors"
	"fmt"
)

// CaseSummary is the human-facing digest of a case as fetched from the
// portal: the style-of-cause, the court, the charge sheet and the date
// the defendant entered the system (arrest or citation).
type CaseSummary struct {
	CaseName string   `json:"caseName"`
	Court    string   `json:"court"`
	Charges  []Charge `json:"charges"`

	// ArrestOrCitationDate is the date of the earliest arrest or
	// citation event on the case, ISO-8601 date form, empty when the
	// portal record carries neither event type.
	ArrestOrCitationDate string `json:"arrestOrCitationDate,omitempty"`

	// ArrestOrCitationType labels that earliest event: "Arrest" or
	// "Citation".
	ArrestOrCitationType string `json:"arrestOrCitationType,omitempty"`
}

// Charge is a single count on the charge sheet.
type Charge struct {
	Description  string        `json:"description"`
	Statute      string        `json:"statute,omitempty"`
	Degree       string        `json:"degree,omitempty"`
	FileDate     string        `json:"fileDate,omitempty"`
	Dispositions []Disposition `json:"dispositions"`
}

// Disposition is the outcome recorded against a charge.
type Disposition struct {
	Date        string `json:"date,omitempty"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// ErrCorruptSummary marks a stored summary that fails validation. The
// read path maps it to a reprocessing trigger rather than surfacing it
// to callers.
var ErrCorruptSummary = errors.New("corrupt case summary")

// Validate checks the well-formedness a complete case must guarantee: a
// non-empty case name, a non-empty court, and a charge list that is
// present (it may be empty, but must be a list, not absent). Anything
// else is reported as ErrCorruptSummary so callers can route the case
// into summary recovery.
func (s *CaseSummary) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: summary missing", ErrCorruptSummary)
	}
	if s.CaseName == "" {
		return fmt.Errorf("%w: empty case name", ErrCorruptSummary)
	}
	if s.Court == "" {
		return fmt.Errorf("%w: empty court", ErrCorruptSummary)
	}
	if s.Charges == nil {
		return fmt.Errorf("%w: charges is not a list", ErrCorruptSummary)
	}
	return nil
}
