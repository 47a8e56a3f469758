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

// SearchWorker consumes the search queue. Case messages resolve a case
// number to a portal case ID and hand the case to stage two; name
// messages run a party-name search and hand every discovered case to
// stage two directly, since the portal returns their IDs in the
// results grid.
//
// Every portal outcome, including hard failures, is translated into a
// state transition. A non-nil return is reserved for infrastructure
// errors where redelivery is the right recovery.
type SearchWorker struct {
	cfg      Config
	cases    *casestore.Store
	users    *userstore.Store
	sessions SessionProvider
	portal   PortalClient
	dataQ    queue.Queue
	clock    clockwork.Clock
	metrics  Metrics
}

// NewSearchWorker wires stage one.
func NewSearchWorker(cfg Config, cases *casestore.Store, users *userstore.Store, sessions SessionProvider, client PortalClient, dataQ queue.Queue) *SearchWorker {
	return &SearchWorker{
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
func (w *SearchWorker) WithClock(clock clockwork.Clock) *SearchWorker {
	w.clock = clock
	return w
}

// WithMetrics wires operation metrics.
func (w *SearchWorker) WithMetrics(metrics Metrics) *SearchWorker {
	w.metrics = metrics
	return w
}

// Handle implements Handler for the search queue.
func (w *SearchWorker) Handle(ctx context.Context, msg queue.ReceivedMessage) error {
	sm, err := DecodeSearchMessage(msg.Body)
	if err != nil {
		logger.WarnCtx(ctx, "Dropping undecodable search message",
			"message_id", msg.ID,
			"error", err)
		return nil
	}

	switch sm.Kind() {
	case KindNameSearch:
		return w.handleNameSearch(ctx, sm)
	default:
		return w.handleCaseSearch(ctx, sm)
	}
}

func (w *SearchWorker) handleCaseSearch(ctx context.Context, msg *SearchMessage) error {
	caseNumber := zipcase.NormalizeCaseNumber(msg.CaseNumber)
	start := w.clock.Now()

	ctx, span := telemetry.StartStageSpan(ctx, "search",
		telemetry.CaseNumber(caseNumber),
		telemetry.UserID(msg.UserID))
	defer span.End()

	c, err := w.cases.GetCase(ctx, caseNumber)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		// Dispatch normally persists the record first; tolerate a
		// message that arrived without one.
		c = &zipcase.Case{CaseNumber: caseNumber}
	case err != nil:
		return fmt.Errorf("failed to read case %s: %w", caseNumber, err)
	}

	switch status := c.FetchStatus.Status; {
	case (status == zipcase.StatusFound || status == zipcase.StatusComplete) && c.CaseID != "":
		// Redelivery of settled work.
		logger.DebugCtx(ctx, "Case already resolved, dropping search message",
			"case_number", caseNumber,
			"status", string(status))
		w.observe("search", OutcomeSkipped, start)
		return nil

	case status == zipcase.StatusProcessing:
		if age := w.clock.Since(c.LastUpdated); age < w.cfg.ProcessingStaleAfter {
			logger.DebugCtx(ctx, "Case is being processed elsewhere, dropping search message",
				"case_number", caseNumber,
				"age", age.String())
			w.observe("search", OutcomeSkipped, start)
			return nil
		}
		logger.WarnCtx(ctx, "Reclaiming stale processing case",
			"case_number", caseNumber,
			"last_updated", c.LastUpdated)
	}

	c.FetchStatus = zipcase.Processing()
	if err := w.cases.SaveCase(ctx, c); err != nil {
		return fmt.Errorf("failed to mark case %s processing: %w", caseNumber, err)
	}

	jar, ua, err := w.openSession(ctx, msg.UserID, msg.UserAgent)
	if err != nil {
		w.observe("search", OutcomeFailed, start)
		return w.saveStatus(ctx, c, zipcase.Failed(failureMessage(err)))
	}

	caseID, err := w.portal.FetchCaseID(ctx, jar, ua, caseNumber)
	switch {
	case portal.IsNotFound(err):
		logger.InfoCtx(ctx, "Case not found on portal", "case_number", caseNumber)
		w.observe("search", OutcomeNotFound, start)
		return w.saveStatus(ctx, c, zipcase.NotFound())

	case err != nil:
		logger.WarnCtx(ctx, "Case search failed",
			"case_number", caseNumber,
			"error", err)
		telemetry.RecordError(ctx, err)
		w.observe("search", OutcomeFailed, start)
		return w.saveStatus(ctx, c, zipcase.Failed(err.Error()))
	}

	c.CaseID = caseID
	if err := w.saveStatus(ctx, c, zipcase.Found()); err != nil {
		return err
	}

	qm, err := NewCaseDataMessage(caseNumber, caseID, msg.UserID, w.clock.Now().UTC()).QueueMessage()
	if err != nil {
		return err
	}
	if err := w.dataQ.Send(ctx, qm); err != nil {
		// The case is already found; the next poll that observes it
		// re-enqueues stage two.
		logger.ErrorCtx(ctx, "Failed to enqueue case data fetch",
			"case_number", caseNumber,
			"case_id", caseID,
			"error", err)
	}

	logger.InfoCtx(ctx, "Resolved case on portal",
		"case_number", caseNumber,
		"case_id", caseID)
	w.observe("search", OutcomeCompleted, start)
	return nil
}

func (w *SearchWorker) handleNameSearch(ctx context.Context, msg *SearchMessage) error {
	start := w.clock.Now()

	ctx, span := telemetry.StartStageSpan(ctx, "search",
		telemetry.SearchID(msg.SearchID),
		telemetry.UserID(msg.UserID))
	defer span.End()

	ns, err := w.cases.GetNameSearch(ctx, msg.SearchID)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		// Expired or never persisted; there is no record to progress.
		logger.WarnCtx(ctx, "Dropping name search with no record", "search_id", msg.SearchID)
		return nil
	case err != nil:
		return fmt.Errorf("failed to read name search %s: %w", msg.SearchID, err)
	}

	if ns.Status == zipcase.StatusComplete || ns.Status == zipcase.StatusFailed {
		logger.DebugCtx(ctx, "Name search already settled, dropping message",
			"search_id", ns.SearchID,
			"status", string(ns.Status))
		w.observe("search", OutcomeSkipped, start)
		return nil
	}

	ns.Status = zipcase.StatusProcessing
	if err := w.cases.SaveNameSearch(ctx, ns); err != nil {
		return fmt.Errorf("failed to mark name search %s processing: %w", ns.SearchID, err)
	}

	jar, ua, err := w.openSession(ctx, msg.UserID, msg.UserAgent)
	if err != nil {
		w.observe("search", OutcomeFailed, start)
		return w.failNameSearch(ctx, ns, failureMessage(err))
	}

	hits, err := w.portal.FetchCasesByName(ctx, jar, ua, portal.NameSearchParams{
		Name:         msg.Name,
		DateOfBirth:  msg.DateOfBirth,
		SoundsLike:   msg.SoundsLike,
		CriminalOnly: msg.CriminalOnly,
	})
	if err != nil {
		logger.WarnCtx(ctx, "Name search failed",
			"search_id", ns.SearchID,
			"error", err)
		telemetry.RecordError(ctx, err)
		w.observe("search", OutcomeFailed, start)
		return w.failNameSearch(ctx, ns, err.Error())
	}

	caseNumbers, dataMsgs, err := w.adoptHits(ctx, msg.UserID, hits)
	if err != nil {
		return err
	}

	ns.Cases = caseNumbers
	ns.Status = zipcase.StatusComplete
	ns.Message = ""
	if err := w.cases.SaveNameSearch(ctx, ns); err != nil {
		return fmt.Errorf("failed to complete name search %s: %w", ns.SearchID, err)
	}

	if len(dataMsgs) > 0 {
		if err := w.dataQ.SendBatch(ctx, dataMsgs); err != nil {
			// Found states are persisted; polls re-enqueue stage two.
			logger.ErrorCtx(ctx, "Failed to enqueue data fetches for name search",
				"search_id", ns.SearchID,
				"count", len(dataMsgs),
				"error", err)
		}
	}

	logger.InfoCtx(ctx, "Name search complete",
		"search_id", ns.SearchID,
		"count", len(caseNumbers))
	w.observe("search", OutcomeCompleted, start)
	return nil
}

// adoptHits persists a found record for every case the portal returned
// (unless it is already complete with an intact summary) and builds the
// stage-two messages for them.
func (w *SearchWorker) adoptHits(ctx context.Context, userID string, hits []portal.NameSearchHit) ([]string, []queue.Message, error) {
	if len(hits) == 0 {
		return []string{}, nil, nil
	}

	caseNumbers := make([]string, 0, len(hits))
	byNumber := make(map[string]portal.NameSearchHit, len(hits))
	for _, hit := range hits {
		n := zipcase.NormalizeCaseNumber(hit.CaseNumber)
		if n == "" || hit.CaseID == "" {
			continue
		}
		if _, ok := byNumber[n]; ok {
			continue
		}
		byNumber[n] = hit
		caseNumbers = append(caseNumbers, n)
	}

	existing, err := w.cases.GetSearchResults(ctx, userID, caseNumbers)
	if err != nil {
		return nil, nil, err
	}

	now := w.clock.Now().UTC()
	var dataMsgs []queue.Message
	for _, n := range caseNumbers {
		if r, ok := existing[n]; ok &&
			r.ZipCase.FetchStatus.Status == zipcase.StatusComplete && r.CaseSummary != nil {
			continue
		}

		c := zipcase.Case{CaseNumber: n, CaseID: byNumber[n].CaseID, FetchStatus: zipcase.Found()}
		if err := w.cases.SaveCase(ctx, &c); err != nil {
			return nil, nil, err
		}

		qm, err := NewCaseDataMessage(n, c.CaseID, userID, now).QueueMessage()
		if err != nil {
			return nil, nil, err
		}
		dataMsgs = append(dataMsgs, qm)
	}
	return caseNumbers, dataMsgs, nil
}

// openSession resolves the user's portal session and user agent. The
// message's user-agent hint wins so one search sticks to the browser
// identity that authenticated it.
func (w *SearchWorker) openSession(ctx context.Context, userID, userAgentHint string) (*portal.Jar, string, error) {
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

	ua := userAgentHint
	if ua == "" {
		if ua, err = w.users.EnsureUserAgent(ctx, userID); err != nil {
			logger.WarnCtx(ctx, "Failed to resolve user agent, continuing without",
				"user_id", userID,
				"error", err)
			ua = ""
		}
	}
	return jar, ua, nil
}

// saveStatus applies one status transition. Persistence failures
// propagate so the message redelivers; everything else settles.
func (w *SearchWorker) saveStatus(ctx context.Context, c *zipcase.Case, status zipcase.FetchStatus) error {
	c.FetchStatus = status
	if err := w.cases.SaveCase(ctx, c); err != nil {
		return fmt.Errorf("failed to save case %s: %w", c.CaseNumber, err)
	}
	return nil
}

func (w *SearchWorker) failNameSearch(ctx context.Context, ns *zipcase.NameSearch, msg string) error {
	ns.Status = zipcase.StatusFailed
	ns.Message = msg
	if err := w.cases.SaveNameSearch(ctx, ns); err != nil {
		return fmt.Errorf("failed to fail name search %s: %w", ns.SearchID, err)
	}
	return nil
}

func (w *SearchWorker) observe(stage, outcome string, start time.Time) {
	if w.metrics != nil {
		w.metrics.ObserveTask(stage, outcome, w.clock.Since(start))
	}
}
