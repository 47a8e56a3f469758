// Package zipcase defines the core domain model for the case-lookup
// pipeline: case records and their fetch-status state machine, portal
// credentials and sessions, case summaries, and name searches.
//
// The package is persistence-agnostic. Stores (pkg/casestore,
// pkg/userstore) decide how these types are keyed and serialized; the
// pipeline (pkg/pipeline) decides how they move between states.
package zipcase

import (
	"time"
)

// Status enumerates the fetch-status state machine for a case.
//
// Transitions are driven by the pipeline:
//
//	queued -> processing -> found -> complete
//	                     -> notFound
//	                     -> failed
//	complete -> reprocessing -> complete | failed   (summary recovery)
//
// queued, notFound and failed records are re-dispatched when a user
// submits the case again; processing records older than the staleness
// window are reclaimed by workers.
type Status string

const (
	// StatusQueued means the case has been accepted and a search is
	// pending on the queue.
	StatusQueued Status = "queued"

	// StatusProcessing means a search worker currently owns the case.
	StatusProcessing Status = "processing"

	// StatusFound means the portal resolved the case number to a case ID
	// and the summary fetch is pending.
	StatusFound Status = "found"

	// StatusComplete means a validated summary is persisted.
	StatusComplete Status = "complete"

	// StatusFailed is a terminal-until-retried state carrying an error
	// message. A later user-initiated search re-queues the case.
	StatusFailed Status = "failed"

	// StatusNotFound means the portal returned zero results for the case
	// number. Like failed, a later search re-queues the case.
	StatusNotFound Status = "notFound"

	// StatusReprocessing means a stored summary was found corrupt and a
	// bounded re-fetch is in flight.
	StatusReprocessing Status = "reprocessing"
)

// RequiresCaseID reports whether records in this status must carry a
// portal case ID.
func (s Status) RequiresCaseID() bool {
	switch s {
	case StatusFound, StatusComplete, StatusReprocessing:
		return true
	}
	return false
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusFound, StatusComplete,
		StatusFailed, StatusNotFound, StatusReprocessing:
		return true
	}
	return false
}

// Settled reports whether the fetch has reached an outcome clients can
// stop polling for. Reprocessing is not settled: the summary is being
// refetched and the record will move again.
func (s Status) Settled() bool {
	switch s {
	case StatusComplete, StatusNotFound, StatusFailed:
		return true
	}
	return false
}

// FetchStatus is the tagged variant attached to a case record. Status
// selects the variant; Message is populated for failed, TryCount for
// reprocessing.
type FetchStatus struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	TryCount int    `json:"tryCount,omitempty"`
}

// Queued, Processing, Found, NotFound, Complete and Failed build the
// common variants. They keep call sites in the pipeline terse.
func Queued() FetchStatus     { return FetchStatus{Status: StatusQueued} }
func Processing() FetchStatus { return FetchStatus{Status: StatusProcessing} }
func Found() FetchStatus      { return FetchStatus{Status: StatusFound} }
func NotFound() FetchStatus   { return FetchStatus{Status: StatusNotFound} }
func Complete() FetchStatus   { return FetchStatus{Status: StatusComplete} }

// Failed builds the failed variant carrying a user-visible message.
func Failed(message string) FetchStatus {
	return FetchStatus{Status: StatusFailed, Message: message}
}

// Reprocessing builds the reprocessing variant carrying the retry count.
func Reprocessing(tryCount int) FetchStatus {
	return FetchStatus{Status: StatusReprocessing, TryCount: tryCount}
}

// Case is a single case record, keyed by the canonical (uppercase) case
// number. CaseID is empty until the search stage succeeds.
type Case struct {
	// CaseNumber is the canonical uppercase case number (see
	// ParseCaseNumbers for the accepted layouts).
	CaseNumber string `json:"caseNumber"`

	// CaseID is the opaque identifier the portal assigned to the case.
	CaseID string `json:"caseId,omitempty"`

	// FetchStatus is the current pipeline state.
	FetchStatus FetchStatus `json:"fetchStatus"`

	// LastUpdated is the time of the last state mutation. Stores stamp
	// it on save; it only moves forward.
	LastUpdated time.Time `json:"lastUpdated"`
}

// CheckInvariants verifies the record-level invariants that must hold
// after every write: states that imply a resolved case carry a CaseID,
// and the status is a known one.
func (c *Case) CheckInvariants() error {
	if !c.FetchStatus.Status.Valid() {
		return &InvariantError{CaseNumber: c.CaseNumber, Reason: "unknown status " + string(c.FetchStatus.Status)}
	}
	if c.FetchStatus.Status.RequiresCaseID() && c.CaseID == "" {
		return &InvariantError{CaseNumber: c.CaseNumber, Reason: "status " + string(c.FetchStatus.Status) + " requires a case ID"}
	}
	return nil
}

// InvariantError reports a case record that violates the state-machine
// invariants.
type InvariantError struct {
	CaseNumber string
	Reason     string
}

func (e *InvariantError) Error() string {
	return "case " + e.CaseNumber + ": " + e.Reason
}

// PortalCredentials are the user's portal username and password. The
// password field is populated only on the sensitive read path and is
// never serialized in plaintext at rest.
type PortalCredentials struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`

	// IsBad is set once the portal has rejected these credentials. While
	// set, the session manager refuses to attempt authentication.
	IsBad bool `json:"isBad"`
}

// PortalSession is a cached authenticated portal session: the serialized
// cookie jar plus an absolute expiry. Expiry is always enforced at the
// read site; storage-side TTL reaping is treated as best effort.
type PortalSession struct {
	// CookieJar is the JSON-serialized cookie jar (see pkg/portal).
	CookieJar string `json:"cookieJar"`

	// ExpiresAt is the absolute time after which the session must not be
	// reused.
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is unusable at the given instant.
func (s *PortalSession) Expired(now time.Time) bool {
	return s == nil || s.CookieJar == "" || !now.Before(s.ExpiresAt)
}

// SearchResult pairs a case record with its summary (when one exists and
// validates) for the request/poll surface.
type SearchResult struct {
	ZipCase     Case         `json:"zipCase"`
	CaseSummary *CaseSummary `json:"caseSummary,omitempty"`
}

// WebhookSettings is the per-user callback registration for completed
// case fetches. Delivery is handled by a separate system; this service
// only stores the registration.
type WebhookSettings struct {
	WebhookURL string `json:"webhookUrl"`

	// SharedSecret is echoed back on deliveries so the receiver can
	// authenticate them. Optional.
	SharedSecret string `json:"sharedSecret,omitempty"`
}
