package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zipcase/zipcase/pkg/queue"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// Kind discriminates the queue message variants.
type Kind string

const (
	KindCaseSearch Kind = "case-search"
	KindNameSearch Kind = "name-search"
	KindCaseData   Kind = "case-data"
	KindUnknown    Kind = ""
)

// SearchMessage is the body of a search-queue message. One struct
// carries both variants: MessageType discriminates, and Kind falls back
// to field presence for bodies written by senders that predate the tag
// (a case message has a caseNumber and no searchId; a name message has
// both a searchId and a name).
type SearchMessage struct {
	MessageType string `json:"messageType,omitempty"`

	// Case search.
	CaseNumber string `json:"caseNumber,omitempty"`

	// Name search.
	SearchID     string `json:"searchId,omitempty"`
	Name         string `json:"name,omitempty"`
	DateOfBirth  string `json:"dateOfBirth,omitempty"`
	SoundsLike   bool   `json:"soundsLike,omitempty"`
	CriminalOnly bool   `json:"criminalOnly,omitempty"`

	UserID    string    `json:"userId"`
	UserAgent string    `json:"userAgent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCaseSearchMessage builds a stage-one lookup for one case number.
func NewCaseSearchMessage(caseNumber, userID, userAgent string, now time.Time) SearchMessage {
	return SearchMessage{
		MessageType: string(KindCaseSearch),
		CaseNumber:  zipcase.NormalizeCaseNumber(caseNumber),
		UserID:      userID,
		UserAgent:   userAgent,
		Timestamp:   now,
	}
}

// NewNameSearchMessage builds a stage-one party-name search.
func NewNameSearchMessage(searchID string, ns *zipcase.NameSearch, userID, userAgent string, now time.Time) SearchMessage {
	return SearchMessage{
		MessageType:  string(KindNameSearch),
		SearchID:     searchID,
		Name:         ns.NormalizedName,
		DateOfBirth:  ns.DateOfBirth,
		SoundsLike:   ns.SoundsLike,
		CriminalOnly: ns.CriminalOnly,
		UserID:       userID,
		UserAgent:    userAgent,
		Timestamp:    now,
	}
}

// Kind resolves the variant from the discriminator, then from field
// presence.
func (m *SearchMessage) Kind() Kind {
	switch Kind(m.MessageType) {
	case KindCaseSearch, KindNameSearch:
		return Kind(m.MessageType)
	}
	if m.SearchID != "" && m.Name != "" {
		return KindNameSearch
	}
	if m.CaseNumber != "" && m.SearchID == "" {
		return KindCaseSearch
	}
	return KindUnknown
}

// QueueMessage encodes the body and assigns the FIFO coordinates: the
// group is the user (one user's searches run in sequence) and the dedup
// ID collapses repeat enqueues of the same case or search inside the
// queue's window.
func (m SearchMessage) QueueMessage() (queue.Message, error) {
	if m.UserID == "" {
		return queue.Message{}, errors.New("search message requires a user id")
	}

	var dedupID string
	switch m.Kind() {
	case KindCaseSearch:
		dedupID = zipcase.NormalizeCaseNumber(m.CaseNumber)
	case KindNameSearch:
		dedupID = m.SearchID
	default:
		return queue.Message{}, errors.New("search message is neither a case nor a name search")
	}

	body, err := json.Marshal(m)
	if err != nil {
		return queue.Message{}, fmt.Errorf("failed to encode search message: %w", err)
	}
	return queue.Message{Body: body, GroupID: m.UserID, DedupID: dedupID}, nil
}

// DecodeSearchMessage parses a search-queue body and rejects bodies
// that resolve to no known variant.
func DecodeSearchMessage(body []byte) (*SearchMessage, error) {
	var m SearchMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("failed to decode search message: %w", err)
	}
	if m.Kind() == KindUnknown {
		return nil, errors.New("search message is neither a case nor a name search")
	}
	if m.UserID == "" {
		return nil, errors.New("search message carries no user id")
	}
	return &m, nil
}

// CaseDataMessage is the body of a data-queue message: fetch the
// summary for one resolved case. Attempt is zero for first fetches and
// counts reprocessing rounds after a corrupt summary; it keeps retry
// enqueues from colliding with the original's dedup ID.
type CaseDataMessage struct {
	MessageType string    `json:"messageType,omitempty"`
	CaseNumber  string    `json:"caseNumber"`
	CaseID      string    `json:"caseId"`
	UserID      string    `json:"userId"`
	Attempt     int       `json:"attempt,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewCaseDataMessage builds a stage-two fetch for one resolved case.
func NewCaseDataMessage(caseNumber, caseID, userID string, now time.Time) CaseDataMessage {
	return CaseDataMessage{
		MessageType: string(KindCaseData),
		CaseNumber:  zipcase.NormalizeCaseNumber(caseNumber),
		CaseID:      caseID,
		UserID:      userID,
		Timestamp:   now,
	}
}

// NewCaseDataRetry builds one bounded reprocessing attempt for a case
// whose stored summary failed validation.
func NewCaseDataRetry(caseNumber, caseID, userID string, attempt int, now time.Time) CaseDataMessage {
	m := NewCaseDataMessage(caseNumber, caseID, userID, now)
	m.Attempt = attempt
	return m
}

// QueueMessage encodes the body with the data queue's FIFO coordinates:
// grouped by case ID so one case is fetched by at most one worker, and
// deduplicated by case number (suffixed with the attempt for retries).
func (m CaseDataMessage) QueueMessage() (queue.Message, error) {
	if m.CaseNumber == "" || m.CaseID == "" {
		return queue.Message{}, errors.New("case data message requires a case number and case id")
	}

	body, err := json.Marshal(m)
	if err != nil {
		return queue.Message{}, fmt.Errorf("failed to encode case data message: %w", err)
	}

	dedupID := zipcase.NormalizeCaseNumber(m.CaseNumber)
	if m.Attempt > 0 {
		dedupID += "#" + strconv.Itoa(m.Attempt)
	}
	return queue.Message{Body: body, GroupID: m.CaseID, DedupID: dedupID}, nil
}

// DecodeCaseDataMessage parses a data-queue body.
func DecodeCaseDataMessage(body []byte) (*CaseDataMessage, error) {
	var m CaseDataMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("failed to decode case data message: %w", err)
	}
	if m.MessageType != "" && Kind(m.MessageType) != KindCaseData {
		return nil, fmt.Errorf("message type %q does not belong on the data queue", m.MessageType)
	}
	if m.CaseNumber == "" || m.CaseID == "" || m.UserID == "" {
		return nil, errors.New("case data message requires a case number, case id and user id")
	}
	return &m, nil
}
