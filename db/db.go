// Package db wraps the local badger key-value store. It holds the listing
// cache and small scalar settings; the matching engine itself never touches
// it. Relay state is the durable record for sessions.
package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ziflex/lecho/v3"
)

type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store under dataDir.
func Open(dataDir string, logger *lecho.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dataDir).
		WithLogger(badgerLogger{logger}).
		WithNumVersionsToKeep(1)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("db: opening badger store at %s: %w", dataDir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get unmarshals the JSON value stored under key into v. The boolean reports
// whether the key existed.
func (s *Store) Get(key string, v interface{}) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return false, fmt.Errorf("db: reading %s: %w", key, err)
	}
	return found, nil
}

// Set stores v as JSON under key.
func (s *Store) Set(key string, v interface{}) error {
	return s.SetWithTTL(key, v, 0)
}

// SetWithTTL stores v as JSON under key; with a non-zero ttl badger drops the
// entry after it elapses.
func (s *Store) SetWithTTL(key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("db: encoding %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), raw)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("db: writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("db: deleting %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key under prefix.
func (s *Store) DeletePrefix(prefix string) error {
	if err := s.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("db: dropping prefix %s: %w", prefix, err)
	}
	return nil
}

// ListingsKey is the cache key for a (vertical, cell) listing query result.
func (s *Store) ListingsKey(vertical, cell string) string {
	return fmt.Sprintf("listings/%s/%s", vertical, cell)
}

// ListingsPrefix covers every cell's cache entry for a vertical.
func (s *Store) ListingsPrefix(vertical string) string {
	return fmt.Sprintf("listings/%s/", vertical)
}

// SettingKey namespaces small scalar settings (e.g. a cached API key).
func (s *Store) SettingKey(name string) string {
	return "settings/" + name
}

// badgerLogger adapts lecho to badger's logger interface.
type badgerLogger struct {
	logger *lecho.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }
