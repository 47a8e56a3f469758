// Package badger implements the kvstore contract on BadgerDB for
// single-node deployments that need persistence without DynamoDB.
//
// Composite keys map to flat Badger keys ("i:<PK>:<SK>"); PK and SK
// values never contain the separator, so the mapping is unambiguous.
// Expiry rides on Badger's native entry TTL, which hides expired keys
// from reads and reclaims them during compaction.
package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/zipcase/zipcase/pkg/kvstore"
)

const prefixItem = "i:"

// Config holds BadgerDB store configuration.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory keeps all data off disk. Used by tests.
	InMemory bool `mapstructure:"in_memory"`
}

// BadgerStore implements kvstore.Store on a BadgerDB database.
type BadgerStore struct {
	db *badgerdb.DB
}

// NewBadgerStore opens (or creates) the database at cfg.Path.
func NewBadgerStore(ctx context.Context, cfg Config) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger store requires path to be set")
	}

	opts := badgerdb.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// keyItem maps a composite key to a flat Badger key.
func keyItem(key kvstore.Key) []byte {
	return []byte(prefixItem + key.PK + ":" + key.SK)
}

// Get returns the document stored at key, or kvstore.ErrNotFound.
// Badger hides expired entries, so no explicit ttl check is needed.
func (s *BadgerStore) Get(ctx context.Context, key kvstore.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyItem(key))
		if err == badgerdb.ErrKeyNotFound {
			return kvstore.ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// BatchGet returns the live documents for the given keys in one read
// transaction.
func (s *BadgerStore) BatchGet(ctx context.Context, keys []kvstore.Key) (map[kvstore.Key][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make(map[kvstore.Key][]byte, len(keys))
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(keyItem(key))
			if err == badgerdb.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			results[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Put stores a document with no expiry.
func (s *BadgerStore) Put(ctx context.Context, key kvstore.Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyItem(key), value)
	})
}

// PutWithTTL stores a document that expires ttl from now.
func (s *BadgerStore) PutWithTTL(ctx context.Context, key kvstore.Key, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry(keyItem(key), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Delete removes a record. Deleting an absent key is not an error.
func (s *BadgerStore) Delete(ctx context.Context, key kvstore.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(keyItem(key))
	})
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
