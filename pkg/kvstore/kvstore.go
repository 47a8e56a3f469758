// Package kvstore defines the composite-key document store the case
// pipeline persists into, plus the behavioral contract every backend
// implements.
//
// Records are keyed by a partition key and a sort key and hold a JSON
// document (an object at the top level). Higher layers (pkg/userstore,
// pkg/casestore) own the key layout and the document schemas; backends
// only move opaque documents.
//
// Backend contract:
//
//   - Get returns ErrNotFound for keys that are absent or expired.
//     Expiry is enforced at read time; backends may also reap expired
//     records lazily, but callers never see a stale item.
//   - BatchGet returns only the keys that exist (and are live). Absent
//     keys are silently omitted, never an error.
//   - Put and PutWithTTL overwrite unconditionally.
//   - Stored documents come back byte-for-byte equivalent JSON. Backend
//     bookkeeping (key attributes, expiry attributes) is stripped
//     before a document is returned.
//
// Three backends exist: memory (tests and dev), badger (single-node
// persistent) and dynamo (production).
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kvstore: key not found")

// Key is the composite primary key of a record.
type Key struct {
	PK string
	SK string
}

// String renders the key for log output.
func (k Key) String() string {
	return k.PK + "/" + k.SK
}

// Store is the backend interface. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the document stored at key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// BatchGet returns the live documents for the given keys. Keys that
	// do not exist are omitted from the result. Duplicate input keys are
	// allowed and collapse to one lookup.
	BatchGet(ctx context.Context, keys []Key) (map[Key][]byte, error)

	// Put stores a document with no expiry.
	Put(ctx context.Context, key Key, value []byte) error

	// PutWithTTL stores a document that expires ttl from now. A
	// non-positive ttl yields a record that is already expired.
	PutWithTTL(ctx context.Context, key Key, value []byte, ttl time.Duration) error

	// Delete removes a record. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// Close releases backend resources.
	Close() error
}

// Metrics receives per-operation observations from backends. A nil
// Metrics disables instrumentation with zero overhead.
type Metrics interface {
	ObserveOperation(operation string, duration time.Duration, err error)
}
