// Package kvstoretest provides a conformance test suite for kvstore
// backends.
//
// All backends (memory, badger, dynamo) should pass these tests. The
// suite verifies the behavioral contract documented in pkg/kvstore,
// catching regressions when backend code changes.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//	    kvstoretest.RunConformanceSuite(t, func(t *testing.T) kvstore.Store {
//	        return memory.NewMemoryStore()
//	    })
//	}
//
// The factory receives *testing.T so it can call t.TempDir() for stores
// that need filesystem paths and t.Cleanup for teardown.
package kvstoretest

import (
	"errors"
	"testing"
	"time"

	"github.com/zipcase/zipcase/pkg/kvstore"
)

// StoreFactory creates a fresh store for one test.
type StoreFactory func(t *testing.T) kvstore.Store

// RunConformanceSuite runs every conformance test against stores built
// by the factory.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Run("PutThenGet", func(t *testing.T) { testPutThenGet(t, factory) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("DeleteMissing", func(t *testing.T) { testDeleteMissing(t, factory) })
	t.Run("BatchGet", func(t *testing.T) { testBatchGet(t, factory) })
	t.Run("BatchGetEmpty", func(t *testing.T) { testBatchGetEmpty(t, factory) })
	t.Run("BatchGetDuplicateKeys", func(t *testing.T) { testBatchGetDuplicateKeys(t, factory) })
	t.Run("SortKeysIsolated", func(t *testing.T) { testSortKeysIsolated(t, factory) })
	t.Run("TTLReadableBeforeExpiry", func(t *testing.T) { testTTLReadableBeforeExpiry(t, factory) })
}

func testPutThenGet(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	key := kvstore.Key{PK: "CASE#22CR714844-590", SK: "ID"}
	doc := []byte(`{"caseNumber":"22CR714844-590","caseId":"abc123"}`)

	if err := store.Put(ctx, key, doc); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	assertSameDocument(t, doc, got)
}

func testGetMissing(t *testing.T, factory StoreFactory) {
	store := factory(t)

	_, err := store.Get(t.Context(), kvstore.Key{PK: "CASE#NOPE", SK: "ID"})
	if !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func testOverwrite(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	key := kvstore.Key{PK: "USER#u1", SK: "USER-AGENT"}
	if err := store.Put(ctx, key, []byte(`{"userAgent":"first"}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := store.Put(ctx, key, []byte(`{"userAgent":"second"}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	assertSameDocument(t, []byte(`{"userAgent":"second"}`), got)
}

func testDelete(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	key := kvstore.Key{PK: "USER#u1", SK: "SESSION"}
	if err := store.Put(ctx, key, []byte(`{"cookieJar":"{}"}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	_, err := store.Get(ctx, key)
	if !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func testDeleteMissing(t *testing.T, factory StoreFactory) {
	store := factory(t)

	if err := store.Delete(t.Context(), kvstore.Key{PK: "USER#ghost", SK: "SESSION"}); err != nil {
		t.Fatalf("Delete() of missing key failed: %v", err)
	}
}

func testBatchGet(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	present := []kvstore.Key{
		{PK: "CASE#22CR000001-100", SK: "ID"},
		{PK: "CASE#22CR000002-100", SK: "ID"},
		{PK: "CASE#22CR000003-100", SK: "ID"},
	}
	for i, key := range present {
		doc := []byte(`{"n":` + string(rune('1'+i)) + `}`)
		if err := store.Put(ctx, key, doc); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}
	missing := kvstore.Key{PK: "CASE#22CR999999-100", SK: "ID"}

	results, err := store.BatchGet(ctx, append(present, missing))
	if err != nil {
		t.Fatalf("BatchGet() failed: %v", err)
	}

	if len(results) != len(present) {
		t.Fatalf("BatchGet() returned %d documents, want %d", len(results), len(present))
	}
	for _, key := range present {
		if _, ok := results[key]; !ok {
			t.Errorf("BatchGet() missing %s", key)
		}
	}
	if _, ok := results[missing]; ok {
		t.Error("BatchGet() returned a document for an absent key")
	}
}

func testBatchGetEmpty(t *testing.T, factory StoreFactory) {
	store := factory(t)

	results, err := store.BatchGet(t.Context(), nil)
	if err != nil {
		t.Fatalf("BatchGet(nil) failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("BatchGet(nil) returned %d documents, want 0", len(results))
	}
}

func testBatchGetDuplicateKeys(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	key := kvstore.Key{PK: "CASE#22CR000001-100", SK: "SUMMARY"}
	if err := store.Put(ctx, key, []byte(`{"caseName":"STATE VS DOE"}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	results, err := store.BatchGet(ctx, []kvstore.Key{key, key, key})
	if err != nil {
		t.Fatalf("BatchGet() with duplicates failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("BatchGet() returned %d documents, want 1", len(results))
	}
}

func testSortKeysIsolated(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	pk := "CASE#22CR714844-590"
	id := kvstore.Key{PK: pk, SK: "ID"}
	summary := kvstore.Key{PK: pk, SK: "SUMMARY"}

	if err := store.Put(ctx, id, []byte(`{"caseId":"abc123"}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := store.Put(ctx, summary, []byte(`{"caseName":"STATE VS DOE"}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if _, err := store.Get(ctx, id); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("Get(ID) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, summary); err != nil {
		t.Fatalf("Get(SUMMARY) failed after deleting sibling: %v", err)
	}
}

func testTTLReadableBeforeExpiry(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	key := kvstore.Key{PK: "NAMESEARCH#s1", SK: "ID"}
	if err := store.PutWithTTL(ctx, key, []byte(`{"status":"queued"}`), time.Hour); err != nil {
		t.Fatalf("PutWithTTL() failed: %v", err)
	}

	if _, err := store.Get(ctx, key); err != nil {
		t.Fatalf("Get() of unexpired ttl record failed: %v", err)
	}
}

// assertSameDocument compares documents as raw bytes when possible and
// falls back to nothing else: backends are required to return equivalent
// JSON, and for these flat one-field documents equivalence is equality.
func assertSameDocument(t *testing.T, want, got []byte) {
	t.Helper()
	if string(want) != string(got) {
		t.Fatalf("document round-trip mismatch:\nwant %s\ngot  %s", want, got)
	}
}
