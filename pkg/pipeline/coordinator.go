package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/internal/telemetry"
	"github.com/zipcase/zipcase/pkg/casestore"
	"github.com/zipcase/zipcase/pkg/queue"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// ErrEmptyName is returned when a name search is submitted without a
// name.
var ErrEmptyName = errors.New("name search requires a name")

// Coordinator turns user requests into persisted case state and queued
// work. It owns the ingest classification: given the current state of
// each requested case it decides which stage to (re)dispatch, performs
// all store mutations first and enqueues second, so queue-delivered
// work always finds a matching record.
type Coordinator struct {
	cfg      Config
	cases    *casestore.Store
	sessions SessionProvider
	searchQ  queue.Queue
	dataQ    queue.Queue
	clock    clockwork.Clock
	metrics  Metrics
}

// NewCoordinator wires the ingest path.
func NewCoordinator(cfg Config, cases *casestore.Store, sessions SessionProvider, searchQ, dataQ queue.Queue) *Coordinator {
	return &Coordinator{
		cfg:      cfg.withDefaults(),
		cases:    cases,
		sessions: sessions,
		searchQ:  searchQ,
		dataQ:    dataQ,
		clock:    clockwork.NewRealClock(),
	}
}

// WithClock replaces the coordinator's clock. Used by tests.
func (co *Coordinator) WithClock(clock clockwork.Clock) *Coordinator {
	co.clock = clock
	return co
}

// WithMetrics wires operation metrics.
func (co *Coordinator) WithMetrics(metrics Metrics) *Coordinator {
	co.metrics = metrics
	return co
}

// SearchRequest is one user-initiated case lookup. Input is free-form
// text; every recognizable case number in it is processed.
type SearchRequest struct {
	Input     string
	UserID    string
	UserAgent string
}

// NameSearchRequest is one user-initiated party-name search.
type NameSearchRequest struct {
	Name         string
	DateOfBirth  string
	SoundsLike   bool
	CriminalOnly bool
	UserID       string
	UserAgent    string
}

// action is the classified disposition for a single case within one
// Search call.
type action struct {
	// result is the state returned to the caller, post-mutation.
	result zipcase.SearchResult

	// save, when non-nil, is persisted before any enqueue.
	save *zipcase.Case

	stageOne bool
	stageTwo bool
}

// Search parses the input, classifies every case against its current
// state and dispatches the work each one still needs. The returned map
// is keyed by canonical case number and reflects state after any
// mutations. Empty input returns an empty map and has no side effects.
func (co *Coordinator) Search(ctx context.Context, req SearchRequest) (map[string]zipcase.SearchResult, error) {
	caseNumbers := dedupe(zipcase.ParseCaseNumbers(req.Input))
	results := make(map[string]zipcase.SearchResult, len(caseNumbers))
	if len(caseNumbers) == 0 {
		return results, nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanPipelineClassify)
	defer span.End()
	telemetry.SetAttributes(ctx,
		telemetry.UserID(req.UserID),
		telemetry.BatchSize(len(caseNumbers)))

	existing, err := co.cases.GetSearchResults(ctx, req.UserID, caseNumbers)
	if err != nil {
		return nil, err
	}

	actions := make(map[string]action, len(caseNumbers))
	var dispatch []string
	for _, n := range caseNumbers {
		var current *zipcase.SearchResult
		if r, ok := existing[n]; ok {
			current = &r
		}
		act := classify(current, n)
		actions[n] = act
		if act.stageOne || act.stageTwo {
			dispatch = append(dispatch, n)
		}
	}

	// Everything that will be dispatched needs portal access, so the
	// session is resolved once, up front. When it cannot be, every case
	// that would have been dispatched fails in one pass and nothing is
	// enqueued.
	if len(dispatch) > 0 {
		if _, err := co.sessions.GetOrCreate(ctx, req.UserID); err != nil {
			return co.failDispatch(ctx, req.UserID, caseNumbers, dispatch, actions, err)
		}
	}

	// Mutations first, messages second.
	now := co.clock.Now().UTC()
	var stageOne, stageTwo []queue.Message
	for _, n := range caseNumbers {
		act := actions[n]
		if act.save != nil {
			if err := co.cases.SaveCase(ctx, act.save); err != nil {
				return nil, err
			}
			act.result.ZipCase = *act.save
		}

		if act.stageOne {
			qm, err := NewCaseSearchMessage(n, req.UserID, req.UserAgent, now).QueueMessage()
			if err != nil {
				return nil, err
			}
			stageOne = append(stageOne, qm)
		}
		if act.stageTwo {
			qm, err := NewCaseDataMessage(n, act.result.ZipCase.CaseID, req.UserID, now).QueueMessage()
			if err != nil {
				return nil, err
			}
			stageTwo = append(stageTwo, qm)
		}
		results[n] = act.result
	}

	if err := co.send(ctx, "search", co.searchQ, stageOne); err != nil {
		return nil, err
	}
	if err := co.send(ctx, "data", co.dataQ, stageTwo); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "Dispatched case search",
		"user_id", req.UserID,
		"count", len(caseNumbers),
		"stage_one", len(stageOne),
		"stage_two", len(stageTwo))
	return results, nil
}

// Status is the read-only poll surface: one batched read, no
// classification, no mutation, no enqueue. Client polling must never
// thrash case state.
func (co *Coordinator) Status(ctx context.Context, userID string, caseNumbers []string) (map[string]zipcase.SearchResult, error) {
	normalized := make([]string, 0, len(caseNumbers))
	for _, n := range caseNumbers {
		if n = zipcase.NormalizeCaseNumber(n); n != "" {
			normalized = append(normalized, n)
		}
	}
	normalized = dedupe(normalized)
	if len(normalized) == 0 {
		return map[string]zipcase.SearchResult{}, nil
	}
	return co.cases.GetSearchResults(ctx, userID, normalized)
}

// SubmitNameSearch persists a queued name-search record and dispatches
// it. The search ID is returned immediately; callers poll
// NameSearchStatus for progress. A session failure settles the record
// as failed without enqueueing, mirroring the case path.
func (co *Coordinator) SubmitNameSearch(ctx context.Context, req NameSearchRequest) (string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", ErrEmptyName
	}

	ns := &zipcase.NameSearch{
		SearchID:       uuid.NewString(),
		OriginalName:   req.Name,
		NormalizedName: zipcase.NormalizeName(req.Name),
		DateOfBirth:    req.DateOfBirth,
		SoundsLike:     req.SoundsLike,
		CriminalOnly:   req.CriminalOnly,
		Status:         zipcase.StatusQueued,
	}

	if _, err := co.sessions.GetOrCreate(ctx, req.UserID); err != nil {
		ns.Status = zipcase.StatusFailed
		ns.Message = failureMessage(err)
		logger.WarnCtx(ctx, "Portal session unavailable, failing name search",
			"user_id", req.UserID,
			"search_id", ns.SearchID,
			"error", err)
		if saveErr := co.cases.SaveNameSearch(ctx, ns); saveErr != nil {
			return "", saveErr
		}
		return ns.SearchID, nil
	}

	if err := co.cases.SaveNameSearch(ctx, ns); err != nil {
		return "", err
	}

	qm, err := NewNameSearchMessage(ns.SearchID, ns, req.UserID, req.UserAgent, co.clock.Now().UTC()).QueueMessage()
	if err != nil {
		return "", err
	}
	if err := co.send(ctx, "search", co.searchQ, []queue.Message{qm}); err != nil {
		return "", err
	}

	logger.InfoCtx(ctx, "Dispatched name search",
		"user_id", req.UserID,
		"search_id", ns.SearchID)
	return ns.SearchID, nil
}

// NameSearchStatus returns the name-search record and the joined state
// of every case it has discovered so far.
func (co *Coordinator) NameSearchStatus(ctx context.Context, userID, searchID string) (*zipcase.NameSearch, map[string]zipcase.SearchResult, error) {
	ns, err := co.cases.GetNameSearch(ctx, searchID)
	if err != nil {
		return nil, nil, err
	}

	results, err := co.cases.GetSearchResults(ctx, userID, ns.Cases)
	if err != nil {
		return nil, nil, err
	}
	return ns, results, nil
}

// classify maps one case's observed state to its action, following the
// ingest table: terminal-and-intact cases are left alone, resolved
// cases go straight to stage two, and everything else is (re)queued for
// stage one.
func classify(current *zipcase.SearchResult, caseNumber string) action {
	if current == nil {
		c := zipcase.Case{CaseNumber: caseNumber, FetchStatus: zipcase.Queued()}
		return action{result: zipcase.SearchResult{ZipCase: c}, save: &c, stageOne: true}
	}

	c := current.ZipCase
	switch c.FetchStatus.Status {
	case zipcase.StatusQueued:
		// Already queued; re-enqueue in case the message was lost. The
		// queue's dedup window collapses the usual duplicate.
		return action{result: *current, stageOne: true}

	case zipcase.StatusProcessing, zipcase.StatusNotFound, zipcase.StatusFailed:
		c.FetchStatus = zipcase.Queued()
		return action{result: zipcase.SearchResult{ZipCase: c}, save: &c, stageOne: true}

	case zipcase.StatusFound, zipcase.StatusReprocessing:
		if c.CaseID == "" {
			// The record claims resolution but lost its case ID; only a
			// fresh stage-one search can recover it.
			return action{result: *current, stageOne: true}
		}
		return action{result: *current, stageTwo: true}

	case zipcase.StatusComplete:
		switch {
		case c.CaseID == "":
			c.FetchStatus = zipcase.Queued()
			return action{result: zipcase.SearchResult{ZipCase: c}, save: &c, stageOne: true}
		case current.CaseSummary != nil:
			return action{result: *current}
		default:
			c.FetchStatus = zipcase.Found()
			return action{result: zipcase.SearchResult{ZipCase: c}, save: &c, stageTwo: true}
		}
	}

	// Unknown status on a stored record; requeue rather than wedge.
	c.FetchStatus = zipcase.Queued()
	return action{result: zipcase.SearchResult{ZipCase: c}, save: &c, stageOne: true}
}

// failDispatch marks every would-be-dispatched case failed with the
// session error and returns the full result set without enqueueing
// anything.
func (co *Coordinator) failDispatch(ctx context.Context, userID string, caseNumbers, dispatch []string, actions map[string]action, sessionErr error) (map[string]zipcase.SearchResult, error) {
	msg := failureMessage(sessionErr)
	logger.WarnCtx(ctx, "Portal session unavailable, failing dispatch",
		"user_id", userID,
		"count", len(dispatch),
		"error", sessionErr)

	results := make(map[string]zipcase.SearchResult, len(caseNumbers))
	for _, n := range dispatch {
		c := actions[n].result.ZipCase
		c.CaseNumber = n
		c.FetchStatus = zipcase.Failed(msg)
		if err := co.cases.SaveCase(ctx, &c); err != nil {
			return nil, err
		}
		results[n] = zipcase.SearchResult{ZipCase: c}
	}
	for _, n := range caseNumbers {
		if _, ok := results[n]; !ok {
			results[n] = actions[n].result
		}
	}
	return results, nil
}

// send batch-enqueues one stage's messages.
func (co *Coordinator) send(ctx context.Context, stage string, q queue.Queue, msgs []queue.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := q.SendBatch(ctx, msgs); err != nil {
		logger.ErrorCtx(ctx, "Failed to enqueue pipeline work",
			"stage", stage,
			"count", len(msgs),
			"error", err)
		return err
	}
	if co.metrics != nil {
		co.metrics.ObserveDispatch(stage, len(msgs))
	}
	return nil
}

// dedupe removes repeats while preserving first-appearance order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
