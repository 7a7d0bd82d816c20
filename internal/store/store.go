// Package store adapts a durable key-value store (go.etcd.io/bbolt)
// to the shape the protocol core needs: a single bucket, opened and
// closed around every individual mutation so that at most one
// transaction is ever in flight and state is durable before the next
// fragment is processed. Callers never hold the store open across
// fragment or sync-cycle processing.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// bucketName is the single bucket every Store uses; callers partition
// keys themselves (e.g. "sent" for the sender, hex archive hashes for
// the receiver).
var bucketName = []byte("diodesync")

// openTimeout bounds how long Open waits to acquire bbolt's exclusive
// file lock, so a stuck holder fails fast instead of hanging a sync
// cycle or fragment forever.
const openTimeout = 5 * time.Second

// Store is a thin handle over a bbolt database file. It does not keep
// the underlying file open between calls: Get and Put each open,
// transact, and close.
type Store struct {
	path string
}

// Open returns a Store bound to the database file at path. The file
// is created on first use if it does not exist.
func Open(path string) *Store {
	return &Store{path: path}
}

// Get returns the value stored under key, or nil if the key is
// absent.
func (s *Store) Get(key string) ([]byte, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", s.path, err)
	}
	defer db.Close()

	var val []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			val = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	return val, nil
}

// Put writes value under key, creating the bucket if necessary.
func (s *Store) Put(key string, value []byte) error {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("store: open %s: %w", s.path, err)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

// Delete removes key, if present.
func (s *Store) Delete(key string) error {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("store: open %s: %w", s.path, err)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}
