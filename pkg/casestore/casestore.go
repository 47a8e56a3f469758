// Package casestore persists case pipeline state: the case record, its
// summary, and name-search records.
//
// Key layout (one kvstore record per row):
//
//	CASE#<upper(caseNumber)> / ID        the Case record
//	CASE#<upper(caseNumber)> / SUMMARY   the CaseSummary
//	NAMESEARCH#<searchId> / ID           the NameSearch record (24h TTL)
//
// GetSearchResults performs the read that backs both the search
// response and the poll surface: one batched read across the ID and
// SUMMARY rows of every requested case, joined in memory. Summaries
// that fail validation are reported as absent, a complete case without
// a usable summary reads as found, and for complete cases the
// corruption is handed to the recovery hook on a separate goroutine so
// reads stay fast.
package casestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/zipcase/zipcase/internal/logger"
	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

// Sort keys under CASE#<caseNumber>.
const (
	skCaseID  = "ID"
	skSummary = "SUMMARY"
)

// CorruptSummaryHandler is invoked (asynchronously) when a read finds a
// complete case whose stored summary fails validation. Implementations
// re-dispatch the case through the data stage on behalf of the user
// whose read detected the corruption.
type CorruptSummaryHandler interface {
	RecoverCorruptSummary(caseNumber, userID string)
}

// CorruptSummaryHandlerFunc adapts a function to the handler interface.
type CorruptSummaryHandlerFunc func(caseNumber, userID string)

// RecoverCorruptSummary calls f.
func (f CorruptSummaryHandlerFunc) RecoverCorruptSummary(caseNumber, userID string) {
	f(caseNumber, userID)
}

func caseKey(caseNumber, sk string) kvstore.Key {
	return kvstore.Key{PK: "CASE#" + zipcase.NormalizeCaseNumber(caseNumber), SK: sk}
}

func nameSearchKey(searchID string) kvstore.Key {
	return kvstore.Key{PK: "NAMESEARCH#" + searchID, SK: skCaseID}
}

// Store reads and writes case pipeline state.
type Store struct {
	kv       kvstore.Store
	clock    clockwork.Clock
	recovery CorruptSummaryHandler
}

// New creates a case store over the given backend.
func New(kv kvstore.Store) *Store {
	return &Store{
		kv:    kv,
		clock: clockwork.NewRealClock(),
	}
}

// WithClock replaces the store's clock. Used by tests.
func (s *Store) WithClock(clock clockwork.Clock) *Store {
	s.clock = clock
	return s
}

// SetRecoveryHook wires the corrupt-summary dispatcher. Reads work
// without one; corruption is then only logged.
func (s *Store) SetRecoveryHook(h CorruptSummaryHandler) {
	s.recovery = h
}

// GetCase returns the case record, or kvstore.ErrNotFound.
func (s *Store) GetCase(ctx context.Context, caseNumber string) (*zipcase.Case, error) {
	doc, err := s.kv.Get(ctx, caseKey(caseNumber, skCaseID))
	if err != nil {
		return nil, err
	}

	var c zipcase.Case
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("failed to decode case %s: %w", caseNumber, err)
	}
	return &c, nil
}

// SaveCase stamps LastUpdated and persists the record. Records that
// violate the state-machine invariants are refused.
func (s *Store) SaveCase(ctx context.Context, c *zipcase.Case) error {
	c.CaseNumber = zipcase.NormalizeCaseNumber(c.CaseNumber)
	c.LastUpdated = s.clock.Now().UTC()

	if err := c.CheckInvariants(); err != nil {
		return err
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode case %s: %w", c.CaseNumber, err)
	}
	if err := s.kv.Put(ctx, caseKey(c.CaseNumber, skCaseID), doc); err != nil {
		return fmt.Errorf("failed to store case %s: %w", c.CaseNumber, err)
	}
	return nil
}

// GetSummary returns the stored summary, or kvstore.ErrNotFound. A
// summary that fails validation is returned along with
// zipcase.ErrCorruptSummary so callers can decide whether to surface
// or repair it.
func (s *Store) GetSummary(ctx context.Context, caseNumber string) (*zipcase.CaseSummary, error) {
	doc, err := s.kv.Get(ctx, caseKey(caseNumber, skSummary))
	if err != nil {
		return nil, err
	}

	var summary zipcase.CaseSummary
	if err := json.Unmarshal(doc, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary %s: %w", caseNumber, err)
	}
	if err := summary.Validate(); err != nil {
		return &summary, err
	}
	return &summary, nil
}

// SaveSummary persists the summary after validating it; feeding the
// store a corrupt summary is a programming error upstream.
func (s *Store) SaveSummary(ctx context.Context, caseNumber string, summary *zipcase.CaseSummary) error {
	if err := summary.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary %s: %w", caseNumber, err)
	}
	if err := s.kv.Put(ctx, caseKey(caseNumber, skSummary), doc); err != nil {
		return fmt.Errorf("failed to store summary %s: %w", caseNumber, err)
	}
	return nil
}

// GetSearchResults batch-reads the ID and SUMMARY rows for the given
// case numbers and joins them. Case numbers with no ID record are
// omitted. A summary that fails validation is reported as absent; when
// its case reads complete, the recovery hook is scheduled on behalf of
// userID, the user whose request triggered the read. A complete case
// with no valid summary to attach is returned as found; the stored
// record is never mutated by a read.
func (s *Store) GetSearchResults(ctx context.Context, userID string, caseNumbers []string) (map[string]zipcase.SearchResult, error) {
	if len(caseNumbers) == 0 {
		return map[string]zipcase.SearchResult{}, nil
	}

	keys := make([]kvstore.Key, 0, len(caseNumbers)*2)
	for _, n := range caseNumbers {
		keys = append(keys, caseKey(n, skCaseID), caseKey(n, skSummary))
	}

	docs, err := s.kv.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to batch read cases: %w", err)
	}

	results := make(map[string]zipcase.SearchResult, len(caseNumbers))
	for _, n := range caseNumbers {
		canonical := zipcase.NormalizeCaseNumber(n)

		caseDoc, ok := docs[caseKey(canonical, skCaseID)]
		if !ok {
			continue
		}
		var c zipcase.Case
		if err := json.Unmarshal(caseDoc, &c); err != nil {
			return nil, fmt.Errorf("failed to decode case %s: %w", canonical, err)
		}

		result := zipcase.SearchResult{ZipCase: c}
		if summaryDoc, ok := docs[caseKey(canonical, skSummary)]; ok {
			var summary zipcase.CaseSummary
			if err := json.Unmarshal(summaryDoc, &summary); err != nil {
				return nil, fmt.Errorf("failed to decode summary %s: %w", canonical, err)
			}
			if vErr := summary.Validate(); vErr == nil {
				result.CaseSummary = &summary
			} else {
				s.scheduleRecovery(canonical, userID, &c, vErr)
			}
		}

		// A complete case is only complete together with a valid
		// summary. When the summary row is corrupt or missing, the
		// stored status stays untouched but the read reports the case
		// as found, so pollers keep waiting for the data stage instead
		// of rendering a complete case with no data.
		if result.ZipCase.FetchStatus.Status == zipcase.StatusComplete && result.CaseSummary == nil {
			result.ZipCase.FetchStatus = zipcase.Found()
		}
		results[canonical] = result
	}
	return results, nil
}

// scheduleRecovery hands a corrupt complete case to the recovery hook
// without blocking the read path.
func (s *Store) scheduleRecovery(caseNumber, userID string, c *zipcase.Case, vErr error) {
	if c.FetchStatus.Status != zipcase.StatusComplete && c.FetchStatus.Status != zipcase.StatusReprocessing {
		return
	}

	logger.Warn("Stored summary is corrupt",
		"case_number", caseNumber,
		"status", string(c.FetchStatus.Status),
		"error", vErr)

	if s.recovery == nil {
		return
	}
	go s.recovery.RecoverCorruptSummary(caseNumber, userID)
}

// GetNameSearch returns the name-search record, or kvstore.ErrNotFound
// (absent or past its TTL).
func (s *Store) GetNameSearch(ctx context.Context, searchID string) (*zipcase.NameSearch, error) {
	doc, err := s.kv.Get(ctx, nameSearchKey(searchID))
	if err != nil {
		return nil, err
	}

	var ns zipcase.NameSearch
	if err := json.Unmarshal(doc, &ns); err != nil {
		return nil, fmt.Errorf("failed to decode name search %s: %w", searchID, err)
	}
	return &ns, nil
}

// SaveNameSearch stamps LastUpdated and persists the record with the
// name-search TTL.
func (s *Store) SaveNameSearch(ctx context.Context, ns *zipcase.NameSearch) error {
	if ns.SearchID == "" {
		return errors.New("name search requires a search id")
	}
	ns.LastUpdated = s.clock.Now().UTC()

	doc, err := json.Marshal(ns)
	if err != nil {
		return fmt.Errorf("failed to encode name search %s: %w", ns.SearchID, err)
	}
	if err := s.kv.PutWithTTL(ctx, nameSearchKey(ns.SearchID), doc, zipcase.NameSearchTTL); err != nil {
		return fmt.Errorf("failed to store name search %s: %w", ns.SearchID, err)
	}
	return nil
}
