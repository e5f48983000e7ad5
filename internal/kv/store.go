// Package kv wraps a bbolt database as the embedded key/value store
// standing in for the browser's IndexedDB in the spec this module
// implements (the host process here has no browser). It backs both the
// Manager's own registry persistence and the BrowserKV storage slot,
// mirroring how the teacher's internal/db.Store wrapped a single SQLite
// file with Open/Close/WithTx.
package kv

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Store is a single bbolt database opened at a fixed path, with buckets
// created on demand.
type Store struct {
	db *bolt.DB
}

// Open opens or creates a bbolt database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create kv directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open kv store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes key->value into bucket, creating the bucket if necessary.
func (s *Store) Put(bucket, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

// Get reads key from bucket. ok is false when the bucket or key is absent.
func (s *Store) Get(bucket, key string) (value []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v != nil {
			ok = true
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, ok, err
}

// Delete removes key from bucket. Deleting a missing key is a no-op.
func (s *Store) Delete(bucket, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Record pairs a key with its stored bytes, used by List.
type Record struct {
	Key   string
	Value []byte
}

// List returns every record in bucket. An absent bucket yields an empty
// (not nil-error) result, matching Get's absent-bucket behavior.
func (s *Store) List(bucket string) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out = append(out, Record{Key: string(k), Value: append([]byte(nil), v...)})
			return nil
		})
	})
	return out, err
}

// DeleteBucket drops every key in bucket in one transaction.
func (s *Store) DeleteBucket(bucket string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(bucket)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(bucket))
	})
}
