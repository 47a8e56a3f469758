// Package pipeline implements the two-stage case fetch: a coordinator
// that turns user input into queued work, a search worker that resolves
// case numbers to portal case IDs, and a data worker that fetches case
// summaries.
//
// Stage one consumes the search queue (per-user FIFO groups, so one
// user's lookups never hammer the portal in parallel); stage two
// consumes the data queue (per-case groups, so two workers never fetch
// the same case at once). Every worker step starts with a state read
// and ends with a state-guarded write, which is what makes queue
// redelivery safe: duplicate deliveries short-circuit instead of
// repeating portal work.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/zipcase/zipcase/pkg/portal"
	"github.com/zipcase/zipcase/pkg/userstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// Defaults for the pipeline tunables.
const (
	// DefaultProcessingStaleAfter is how old a processing stamp must be
	// before a search worker assumes its owner died and reclaims the
	// case.
	DefaultProcessingStaleAfter = 5 * time.Minute

	// DefaultDataDedupWindow is how recent a found stamp must be for a
	// data worker to treat an already-summarized delivery as a
	// poll-driven duplicate.
	DefaultDataDedupWindow = time.Minute

	// DefaultSummaryMaxTries bounds the re-fetch budget for summaries
	// the portal keeps returning in an unusable shape.
	DefaultSummaryMaxTries = 3

	// DefaultRecoveryTimeout bounds one corrupt-summary recovery
	// dispatch, which runs detached from any request context.
	DefaultRecoveryTimeout = 30 * time.Second
)

// Config carries the pipeline tunables. Zero values take the defaults
// above.
type Config struct {
	// ProcessingStaleAfter is the stuck-processing reclaim bound.
	ProcessingStaleAfter time.Duration `mapstructure:"processing_stale_after"`

	// DataDedupWindow suppresses duplicate summary fetches for cases
	// whose found transition is this recent.
	DataDedupWindow time.Duration `mapstructure:"data_dedup_window"`

	// SummaryMaxTries is the reprocessing budget per corrupt summary.
	SummaryMaxTries int `mapstructure:"summary_max_tries"`

	// RecoveryTimeout bounds one corrupt-summary recovery dispatch.
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`
}

func (c Config) withDefaults() Config {
	if c.ProcessingStaleAfter <= 0 {
		c.ProcessingStaleAfter = DefaultProcessingStaleAfter
	}
	if c.DataDedupWindow <= 0 {
		c.DataDedupWindow = DefaultDataDedupWindow
	}
	if c.SummaryMaxTries <= 0 {
		c.SummaryMaxTries = DefaultSummaryMaxTries
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return c
}

// CorruptSummaryMessage is stamped on a case once its reprocessing
// budget is exhausted.
const CorruptSummaryMessage = "summary repeatedly corrupt"

// SessionProvider resolves an authenticated portal session for a user.
// *portal.SessionManager implements it.
type SessionProvider interface {
	GetOrCreate(ctx context.Context, userID string) (*zipcase.PortalSession, error)
}

// PortalClient is the slice of the portal HTML client the workers
// consume. *portal.Client implements it.
type PortalClient interface {
	FetchCaseID(ctx context.Context, jar *portal.Jar, userAgent, caseNumber string) (string, error)
	FetchCasesByName(ctx context.Context, jar *portal.Jar, userAgent string, params portal.NameSearchParams) ([]portal.NameSearchHit, error)
	FetchCaseSummary(ctx context.Context, jar *portal.Jar, userAgent, caseID string) (*zipcase.CaseSummary, error)
}

// Metrics observes pipeline activity. Implementations live in
// pkg/metrics; a nil Metrics disables observation.
type Metrics interface {
	// ObserveDispatch records coordinator enqueues to a stage queue.
	// Stage is "search" or "data".
	ObserveDispatch(stage string, messages int)

	// ObserveTask records one worker execution. Stage is "search" or
	// "data"; outcome is "completed", "skipped", "not_found" or
	// "failed".
	ObserveTask(stage, outcome string, d time.Duration)
}

// Task outcomes reported to Metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeNotFound  = "not_found"
	OutcomeFailed    = "failed"
)

// failureMessage renders an error the way case records report it.
// Credential problems collapse onto the canonical user-facing text so
// the UI can match on it; everything else keeps its own message.
func failureMessage(err error) string {
	if errors.Is(err, portal.ErrInvalidCredentials) ||
		errors.Is(err, userstore.ErrCredentialsMarkedBad) {
		return portal.InvalidCredentialsMessage
	}
	return err.Error()
}
