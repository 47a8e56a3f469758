package casestore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipcase/zipcase/pkg/kvstore"
	"github.com/zipcase/zipcase/pkg/kvstore/memory"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

func newTestStore(t *testing.T) (*Store, *memory.MemoryStore, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	kv := memory.NewMemoryStoreWithClock(clock)
	t.Cleanup(func() { _ = kv.Close() })

	return New(kv).WithClock(clock), kv, clock
}

func validSummary() *zipcase.CaseSummary {
	return &zipcase.CaseSummary{
		CaseName: "State v. Smith",
		Court:    "Wake County District Court",
		Charges: []zipcase.Charge{
			{
				Description:  "Speeding",
				Statute:      "20-141(B)",
				Dispositions: []zipcase.Disposition{},
			},
		},
		ArrestOrCitationDate: "2024-01-15",
	}
}

func TestCaseRoundTrip(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	err := store.SaveCase(ctx, &zipcase.Case{
		CaseNumber:  "22cr123456-789",
		FetchStatus: zipcase.Queued(),
	})
	require.NoError(t, err)

	// Reads accept any casing; the stored record is canonical.
	got, err := store.GetCase(ctx, "22CR123456-789")
	require.NoError(t, err)
	assert.Equal(t, "22CR123456-789", got.CaseNumber)
	assert.Equal(t, zipcase.StatusQueued, got.FetchStatus.Status)
	assert.Equal(t, clock.Now().UTC(), got.LastUpdated)
}

func TestSaveCaseStampsLastUpdated(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	c := &zipcase.Case{CaseNumber: "22CR123456-789", FetchStatus: zipcase.Queued()}
	require.NoError(t, store.SaveCase(ctx, c))
	first := c.LastUpdated

	clock.Advance(90 * time.Second)
	c.FetchStatus = zipcase.Processing()
	require.NoError(t, store.SaveCase(ctx, c))

	got, err := store.GetCase(ctx, "22CR123456-789")
	require.NoError(t, err)
	assert.Equal(t, first.Add(90*time.Second), got.LastUpdated)
}

func TestSaveCaseRefusesInvariantViolation(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	// found requires a case ID.
	err := store.SaveCase(ctx, &zipcase.Case{
		CaseNumber:  "22CR123456-789",
		FetchStatus: zipcase.Found(),
	})
	require.Error(t, err)

	var invErr *zipcase.InvariantError
	assert.ErrorAs(t, err, &invErr)

	_, err = store.GetCase(ctx, "22CR123456-789")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestGetCaseNotFound(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.GetCase(context.Background(), "99CR999999-000")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestSummaryRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSummary(ctx, "22CR123456-789", validSummary()))

	got, err := store.GetSummary(ctx, "22cr123456-789")
	require.NoError(t, err)
	assert.Equal(t, "State v. Smith", got.CaseName)
	assert.Len(t, got.Charges, 1)
}

func TestSaveSummaryRejectsCorrupt(t *testing.T) {
	store, _, _ := newTestStore(t)

	bad := validSummary()
	bad.Court = ""
	err := store.SaveSummary(context.Background(), "22CR123456-789", bad)
	assert.ErrorIs(t, err, zipcase.ErrCorruptSummary)
}

func TestGetSummaryReportsCorruption(t *testing.T) {
	store, kv, _ := newTestStore(t)
	ctx := context.Background()

	// Write a summary with no case name behind the store's back, the
	// way a partial portal response would have left it.
	doc, err := json.Marshal(&zipcase.CaseSummary{Court: "Somewhere", Charges: []zipcase.Charge{}})
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, caseKey("22CR123456-789", skSummary), doc))

	got, err := store.GetSummary(ctx, "22CR123456-789")
	assert.ErrorIs(t, err, zipcase.ErrCorruptSummary)
	require.NotNil(t, got)
	assert.Equal(t, "Somewhere", got.Court)
}

func TestGetSearchResultsJoinsCasesAndSummaries(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	complete := &zipcase.Case{
		CaseNumber:  "22CR111111-111",
		CaseID:      "abc123",
		FetchStatus: zipcase.Complete(),
	}
	require.NoError(t, store.SaveCase(ctx, complete))
	require.NoError(t, store.SaveSummary(ctx, complete.CaseNumber, validSummary()))

	pending := &zipcase.Case{
		CaseNumber:  "22CR222222-222",
		FetchStatus: zipcase.Queued(),
	}
	require.NoError(t, store.SaveCase(ctx, pending))

	results, err := store.GetSearchResults(ctx, "user-1", []string{
		"22cr111111-111",
		"22CR222222-222",
		"22CR333333-333", // never requested before
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	withSummary := results["22CR111111-111"]
	assert.Equal(t, zipcase.StatusComplete, withSummary.ZipCase.FetchStatus.Status)
	require.NotNil(t, withSummary.CaseSummary)
	assert.Equal(t, "State v. Smith", withSummary.CaseSummary.CaseName)

	noSummary := results["22CR222222-222"]
	assert.Equal(t, zipcase.StatusQueued, noSummary.ZipCase.FetchStatus.Status)
	assert.Nil(t, noSummary.CaseSummary)

	_, ok := results["22CR333333-333"]
	assert.False(t, ok)
}

func TestGetSearchResultsEmptyInput(t *testing.T) {
	store, _, _ := newTestStore(t)

	results, err := store.GetSearchResults(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCorruptSummaryHiddenAndRecoveryScheduled(t *testing.T) {
	store, kv, _ := newTestStore(t)
	ctx := context.Background()

	type dispatch struct{ caseNumber, userID string }
	recovered := make(chan dispatch, 1)
	store.SetRecoveryHook(CorruptSummaryHandlerFunc(func(caseNumber, userID string) {
		recovered <- dispatch{caseNumber, userID}
	}))

	c := &zipcase.Case{
		CaseNumber:  "22CR444444-444",
		CaseID:      "def456",
		FetchStatus: zipcase.Complete(),
	}
	require.NoError(t, store.SaveCase(ctx, c))

	doc, err := json.Marshal(&zipcase.CaseSummary{CaseName: "State v. Jones"}) // no court, no charges
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, caseKey(c.CaseNumber, skSummary), doc))

	results, err := store.GetSearchResults(ctx, "user-1", []string{c.CaseNumber})
	require.NoError(t, err)

	result := results["22CR444444-444"]
	assert.Nil(t, result.CaseSummary, "corrupt summary must read as absent")
	assert.Equal(t, zipcase.StatusFound, result.ZipCase.FetchStatus.Status,
		"complete without a usable summary must read as found")

	// The downgrade is read-side only; the stored record stays complete
	// so the data stage can settle it again.
	stored, err := store.GetCase(ctx, c.CaseNumber)
	require.NoError(t, err)
	assert.Equal(t, zipcase.StatusComplete, stored.FetchStatus.Status)

	select {
	case d := <-recovered:
		assert.Equal(t, "22CR444444-444", d.caseNumber)
		assert.Equal(t, "user-1", d.userID)
	case <-time.After(2 * time.Second):
		t.Fatal("recovery hook was not invoked")
	}
}

func TestCompleteCaseWithMissingSummaryReadsAsFound(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	// A complete record whose summary row vanished (TTL, partial
	// write) must not present as complete with no data.
	c := &zipcase.Case{
		CaseNumber:  "22CR714844-590",
		CaseID:      "mno345",
		FetchStatus: zipcase.Complete(),
	}
	require.NoError(t, store.SaveCase(ctx, c))

	results, err := store.GetSearchResults(ctx, "user-1", []string{c.CaseNumber})
	require.NoError(t, err)

	result := results["22CR714844-590"]
	assert.Nil(t, result.CaseSummary)
	assert.Equal(t, zipcase.StatusFound, result.ZipCase.FetchStatus.Status)

	stored, err := store.GetCase(ctx, c.CaseNumber)
	require.NoError(t, err)
	assert.Equal(t, zipcase.StatusComplete, stored.FetchStatus.Status)
}

func TestCorruptSummaryRecoveryOnlyForSettledCases(t *testing.T) {
	store, kv, _ := newTestStore(t)
	ctx := context.Background()

	recovered := make(chan string, 1)
	store.SetRecoveryHook(CorruptSummaryHandlerFunc(func(caseNumber, userID string) {
		recovered <- caseNumber
	}))

	// A found case has not finished stage two yet; a leftover corrupt
	// summary row is the data worker's problem, not the read path's.
	c := &zipcase.Case{
		CaseNumber:  "22CR555555-555",
		CaseID:      "ghi789",
		FetchStatus: zipcase.Found(),
	}
	require.NoError(t, store.SaveCase(ctx, c))

	doc, err := json.Marshal(&zipcase.CaseSummary{CaseName: "State v. Lee"})
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, caseKey(c.CaseNumber, skSummary), doc))

	results, err := store.GetSearchResults(ctx, "user-1", []string{c.CaseNumber})
	require.NoError(t, err)
	assert.Nil(t, results["22CR555555-555"].CaseSummary)

	select {
	case caseNumber := <-recovered:
		t.Fatalf("unexpected recovery dispatch for %s", caseNumber)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCorruptSummaryRecoveryFiresForReprocessingCases(t *testing.T) {
	store, kv, _ := newTestStore(t)
	ctx := context.Background()

	recovered := make(chan string, 1)
	store.SetRecoveryHook(CorruptSummaryHandlerFunc(func(caseNumber, userID string) {
		recovered <- caseNumber
	}))

	// Reprocessing cases stay visible to the hook so it can cap the
	// retry budget once tryCount runs out.
	c := &zipcase.Case{
		CaseNumber:  "22CR666666-666",
		CaseID:      "jkl012",
		FetchStatus: zipcase.Reprocessing(3),
	}
	require.NoError(t, store.SaveCase(ctx, c))

	doc, err := json.Marshal(&zipcase.CaseSummary{CaseName: "State v. Lee"})
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, caseKey(c.CaseNumber, skSummary), doc))

	_, err = store.GetSearchResults(ctx, "user-1", []string{c.CaseNumber})
	require.NoError(t, err)

	select {
	case caseNumber := <-recovered:
		assert.Equal(t, "22CR666666-666", caseNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("recovery hook was not invoked")
	}
}

func TestNameSearchRoundTrip(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	ns := &zipcase.NameSearch{
		SearchID:       "f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
		OriginalName:   "John Smith",
		NormalizedName: zipcase.NormalizeName("John Smith"),
		Status:         zipcase.StatusQueued,
	}
	require.NoError(t, store.SaveNameSearch(ctx, ns))

	got, err := store.GetNameSearch(ctx, ns.SearchID)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", got.OriginalName)
	assert.Equal(t, "Smith, John", got.NormalizedName)
	assert.Equal(t, clock.Now().UTC(), got.LastUpdated)
}

func TestNameSearchRequiresID(t *testing.T) {
	store, _, _ := newTestStore(t)

	err := store.SaveNameSearch(context.Background(), &zipcase.NameSearch{OriginalName: "John Smith"})
	assert.Error(t, err)
}

func TestNameSearchExpires(t *testing.T) {
	store, _, clock := newTestStore(t)
	ctx := context.Background()

	ns := &zipcase.NameSearch{
		SearchID:       "f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
		OriginalName:   "John Smith",
		NormalizedName: "Smith, John",
		Status:         zipcase.StatusComplete,
	}
	require.NoError(t, store.SaveNameSearch(ctx, ns))

	clock.Advance(zipcase.NameSearchTTL + time.Minute)

	_, err := store.GetNameSearch(ctx, ns.SearchID)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}
