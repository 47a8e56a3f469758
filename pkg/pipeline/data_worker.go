package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/internal/telemetry"
	"github.com/zipcase/zipcase/pkg/casestore"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/portal"
	"github.com/zipcase/zipcase/pkg/queue"
	"github.com/zipcase/zipcase/pkg/userstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// DataWorker consumes the data queue: it fetches the case-detail JSON
// for a resolved case, persists the summary and completes the case.
//
// Summaries the portal returns in an unusable shape get a bounded
// reprocessing budget; once it runs out the case fails with
// CorruptSummaryMessage rather than looping forever.
type DataWorker struct {
	cfg      Config
	cases    *casestore.Store
	users    *userstore.Store
	sessions SessionProvider
	portal   PortalClient
	dataQ    queue.Queue
	clock    clockwork.Clock
	metrics  Metrics
}

// NewDataWorker wires stage two. The worker re-enqueues onto its own
// queue for reprocessing rounds, hence the dataQ dependency.
func NewDataWorker(cfg Config, cases *casestore.Store, users *userstore.Store, sessions SessionProvider, client PortalClient, dataQ queue.Queue) *DataWorker {
	return &DataWorker{
		cfg:      cfg.withDefaults(),
		cases:    cases,
		users:    users,
		sessions: sessions,
		portal:   client,
		dataQ:    dataQ,
		clock:    clockwork.NewRealClock(),
	}
}

// WithClock replaces the worker's clock. Used by tests.
func (w *DataWorker) WithClock(clock clockwork.Clock) *DataWorker {
	w.clock = clock
	return w
}

// WithMetrics wires operation metrics.
func (w *DataWorker) WithMetrics(metrics Metrics) *DataWorker {
	w.metrics = metrics
	return w
}

// Handle implements Handler for the data queue.
func (w *DataWorker) Handle(ctx context.Context, msg queue.ReceivedMessage) error {
	dm, err := DecodeCaseDataMessage(msg.Body)
	if err != nil {
		logger.WarnCtx(ctx, "Dropping undecodable data message",
			"message_id", msg.ID,
			"error", err)
		return nil
	}

	start := w.clock.Now()
	caseNumber := zipcase.NormalizeCaseNumber(dm.CaseNumber)

	ctx, span := telemetry.StartStageSpan(ctx, "data",
		telemetry.CaseNumber(caseNumber),
		telemetry.CaseID(dm.CaseID),
		telemetry.UserID(dm.UserID))
	defer span.End()

	c, err := w.cases.GetCase(ctx, caseNumber)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		c = &zipcase.Case{CaseNumber: caseNumber}
	case err != nil:
		return fmt.Errorf("failed to read case %s: %w", caseNumber, err)
	}
	if c.CaseID == "" {
		c.CaseID = dm.CaseID
	}

	switch c.FetchStatus.Status {
	case zipcase.StatusComplete:
		if w.hasValidSummary(ctx, caseNumber) {
			logger.DebugCtx(ctx, "Case already complete, dropping data message",
				"case_number", caseNumber)
			w.observe(OutcomeSkipped, start)
			return nil
		}
		// Complete with a corrupt or missing summary: re-fetch below.

	case zipcase.StatusFound:
		// A found stamp this fresh with the summary already stored
		// means another delivery just finished the work; this one is a
		// poll-driven duplicate.
		if w.clock.Since(c.LastUpdated) < w.cfg.DataDedupWindow && w.hasValidSummary(ctx, caseNumber) {
			logger.DebugCtx(ctx, "Summary already fetched, dropping duplicate data message",
				"case_number", caseNumber)
			w.observe(OutcomeSkipped, start)
			return nil
		}
	}

	jar, ua, err := w.openSession(ctx, dm.UserID)
	if err != nil {
		w.observe(OutcomeFailed, start)
		return w.saveStatus(ctx, c, zipcase.Failed(failureMessage(err)))
	}

	summary, err := w.portal.FetchCaseSummary(ctx, jar, ua, dm.CaseID)
	if err != nil {
		logger.WarnCtx(ctx, "Case summary fetch failed",
			"case_number", caseNumber,
			"case_id", dm.CaseID,
			"error", err)
		telemetry.RecordError(ctx, err)
		w.observe(OutcomeFailed, start)
		return w.saveStatus(ctx, c, zipcase.Failed(err.Error()))
	}

	if vErr := summary.Validate(); vErr != nil {
		return w.retryCorrupt(ctx, c, dm, vErr, start)
	}

	if err := w.cases.SaveSummary(ctx, caseNumber, summary); err != nil {
		return fmt.Errorf("failed to store summary %s: %w", caseNumber, err)
	}
	if err := w.saveStatus(ctx, c, zipcase.Complete()); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "Case complete",
		"case_number", caseNumber,
		"case_id", dm.CaseID)
	w.observe(OutcomeCompleted, start)
	return nil
}

// retryCorrupt spends one round of the reprocessing budget on a case
// whose fetched summary failed validation, or fails the case once the
// budget is gone.
func (w *DataWorker) retryCorrupt(ctx context.Context, c *zipcase.Case, dm *CaseDataMessage, vErr error, start time.Time) error {
	tries := 1
	if c.FetchStatus.Status == zipcase.StatusReprocessing {
		tries = c.FetchStatus.TryCount + 1
	}

	if tries > w.cfg.SummaryMaxTries {
		logger.ErrorCtx(ctx, "Summary repeatedly corrupt, giving up",
			"case_number", c.CaseNumber,
			"case_id", c.CaseID,
			"tries", tries-1,
			"error", vErr)
		w.observe(OutcomeFailed, start)
		return w.saveStatus(ctx, c, zipcase.Failed(CorruptSummaryMessage))
	}

	logger.WarnCtx(ctx, "Fetched summary is corrupt, scheduling another attempt",
		"case_number", c.CaseNumber,
		"case_id", c.CaseID,
		"attempt", tries,
		"error", vErr)
	if err := w.saveStatus(ctx, c, zipcase.Reprocessing(tries)); err != nil {
		return err
	}

	qm, err := NewCaseDataRetry(c.CaseNumber, c.CaseID, dm.UserID, tries, w.clock.Now().UTC()).QueueMessage()
	if err != nil {
		return err
	}
	if err := w.dataQ.Send(ctx, qm); err != nil {
		// The reprocessing state is persisted; the next poll that
		// observes it re-enqueues stage two.
		logger.ErrorCtx(ctx, "Failed to enqueue summary reprocessing",
			"case_number", c.CaseNumber,
			"error", err)
	}
	w.observe(OutcomeFailed, start)
	return nil
}

// hasValidSummary reports whether a summary that passes validation is
// already stored for the case.
func (w *DataWorker) hasValidSummary(ctx context.Context, caseNumber string) bool {
	_, err := w.cases.GetSummary(ctx, caseNumber)
	return err == nil
}

// openSession resolves the user's portal session and sticky user agent.
func (w *DataWorker) openSession(ctx context.Context, userID string) (*portal.Jar, string, error) {
	sess, err := w.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		logger.WarnCtx(ctx, "Portal session unavailable",
			"user_id", userID,
			"error", err)
		return nil, "", err
	}

	jar, err := portal.RestoreJar(sess.CookieJar)
	if err != nil {
		logger.WarnCtx(ctx, "Stored session cookie jar is unreadable",
			"user_id", userID,
			"error", err)
		return nil, "", err
	}

	ua, err := w.users.EnsureUserAgent(ctx, userID)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to resolve user agent, continuing without",
			"user_id", userID,
			"error", err)
		ua = ""
	}
	return jar, ua, nil
}

// saveStatus applies one status transition. Persistence failures
// propagate so the message redelivers; everything else settles.
func (w *DataWorker) saveStatus(ctx context.Context, c *zipcase.Case, status zipcase.FetchStatus) error {
	c.FetchStatus = status
	if err := w.cases.SaveCase(ctx, c); err != nil {
		return fmt.Errorf("failed to save case %s: %w", c.CaseNumber, err)
	}
	return nil
}

func (w *DataWorker) observe(outcome string, start time.Time) {
	if w.metrics != nil {
		w.metrics.ObserveTask("data", outcome, w.clock.Since(start))
	}
}
