package pipeline

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/casestore"
	"github.com/zipcase/zipcase/pkg/queue"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// Recovery re-dispatches complete cases whose stored summary no longer
// validates. The case store invokes it from the read path on its own
// goroutine (see casestore.CorruptSummaryHandler), so it budgets a
// detached context per dispatch and reports failures only to the log.
//
// A case already reprocessing is left alone until its retry budget is
// spent, at which point it fails with CorruptSummaryMessage. The poll
// that detected the corruption meanwhile sees found or reprocessing,
// never a complete case with unusable data.
type Recovery struct {
	cfg   Config
	cases *casestore.Store
	dataQ queue.Queue
	clock clockwork.Clock
}

// NewRecovery wires the corrupt-summary dispatcher.
func NewRecovery(cfg Config, cases *casestore.Store, dataQ queue.Queue) *Recovery {
	return &Recovery{
		cfg:   cfg.withDefaults(),
		cases: cases,
		dataQ: dataQ,
		clock: clockwork.NewRealClock(),
	}
}

// WithClock replaces the dispatcher's clock. Used by tests.
func (r *Recovery) WithClock(clock clockwork.Clock) *Recovery {
	r.clock = clock
	return r
}

// RecoverCorruptSummary implements casestore.CorruptSummaryHandler.
func (r *Recovery) RecoverCorruptSummary(caseNumber, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RecoveryTimeout)
	defer cancel()

	c, err := r.cases.GetCase(ctx, caseNumber)
	if err != nil {
		logger.Warn("Failed to read case for summary recovery",
			"case_number", caseNumber,
			"error", err)
		return
	}

	switch c.FetchStatus.Status {
	case zipcase.StatusComplete:
		if c.CaseID == "" {
			// Nothing for stage two to fetch; the next search poll
			// requeues stage one for this record.
			logger.Warn("Complete case with corrupt summary has no case id",
				"case_number", caseNumber)
			return
		}
		c.FetchStatus = zipcase.Reprocessing(1)

	case zipcase.StatusReprocessing:
		if c.FetchStatus.TryCount < r.cfg.SummaryMaxTries {
			// A retry is already in flight; let it land.
			return
		}
		logger.Error("Summary repeatedly corrupt, giving up",
			"case_number", caseNumber,
			"tries", c.FetchStatus.TryCount)
		c.FetchStatus = zipcase.Failed(CorruptSummaryMessage)
		if err := r.cases.SaveCase(ctx, c); err != nil {
			logger.Error("Failed to fail corrupt case",
				"case_number", caseNumber,
				"error", err)
		}
		return

	default:
		// Only settled statuses reach the hook; anything else means the
		// pipeline is already on it.
		return
	}

	if err := r.cases.SaveCase(ctx, c); err != nil {
		logger.Error("Failed to mark case for reprocessing",
			"case_number", caseNumber,
			"error", err)
		return
	}

	qm, err := NewCaseDataRetry(caseNumber, c.CaseID, userID, c.FetchStatus.TryCount, r.clock.Now().UTC()).QueueMessage()
	if err != nil {
		logger.Error("Failed to build reprocessing message",
			"case_number", caseNumber,
			"error", err)
		return
	}
	if err := r.dataQ.Send(ctx, qm); err != nil {
		logger.Error("Failed to enqueue summary reprocessing",
			"case_number", caseNumber,
			"error", err)
		return
	}

	logger.Info("Scheduled summary reprocessing",
		"case_number", caseNumber,
		"case_id", c.CaseID,
		"attempt", c.FetchStatus.TryCount)
}
