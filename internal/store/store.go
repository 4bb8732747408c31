// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the C3 persistent store (spec.md §4.3): a single
// bbolt file providing ACID transactions across three logical tables —
// status, package_index, and audit_log. Every operation round-trips through
// a single db.View/db.Update transaction, so callers never observe a
// partial write.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PyRo1121/omg-sub003/internal/model"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketStatus       = []byte("status")
	bucketPackageIndex = []byte("package_index")
	bucketAuditLog     = []byte("audit_log")

	keyCurrent  = []byte("current")
	keySnapshot = []byte("snapshot")
)

// ErrNotFound indicates the requested key has never been written.
var ErrNotFound = errors.New("store: not found")

// Store wraps a single bbolt database file and exposes the three logical
// tables the core needs. All operations are safe for concurrent use —
// bbolt serializes writers internally and lets readers run against a
// consistent snapshot.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt file at path and ensures all
// three buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketStatus, bucketPackageIndex, bucketAuditLog} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file handle and lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveStatus persists the current StatusResult snapshot (spec.md §4.3).
func (s *Store) SaveStatus(status model.StatusResult) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("store: marshal status: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStatus).Put(keyCurrent, payload)
	})
}

// LoadStatus returns the last persisted StatusResult, or ErrNotFound if the
// daemon has never completed a status refresh.
func (s *Store) LoadStatus() (model.StatusResult, error) {
	var status model.StatusResult
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketStatus).Get(keyCurrent)
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &status)
	})
	if err != nil {
		return model.StatusResult{}, err
	}
	return status, nil
}

// IndexSnapshot is the persisted form of the package index: the flattened
// by-name map plus the source database's mtime, used to decide whether a
// restart can reuse the snapshot instead of re-enumerating (spec.md §4.3).
type IndexSnapshot struct {
	SourceMtime time.Time                             `json:"source_mtime"`
	Packages    map[string]model.DetailedPackageInfo `json:"packages"`
}

// SaveIndexSnapshot persists a full package index snapshot keyed by the
// backend database's on-disk mtime.
func (s *Store) SaveIndexSnapshot(snap IndexSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal index snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPackageIndex).Put(keySnapshot, payload)
	})
}

// LoadIndexSnapshot returns the last persisted index snapshot, or
// ErrNotFound if none has ever been written.
func (s *Store) LoadIndexSnapshot() (IndexSnapshot, error) {
	var snap IndexSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketPackageIndex).Get(keySnapshot)
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &snap)
	})
	if err != nil {
		return IndexSnapshot{}, err
	}
	return snap, nil
}

// AuditEntry is one append-only audit_log record. The store only provides
// the transactional substrate; a collaborator decides what goes in Payload
// (spec.md §4.3: "write-delegated to a collaborator").
type AuditEntry struct {
	Sequence  uint64    `json:"sequence"`
	Recorded  time.Time `json:"recorded"`
	Payload   []byte    `json:"payload"`
}

// AppendAudit appends entry to the audit log, assigning it the next
// sequence number in a single transaction.
func (s *Store) AppendAudit(payload []byte) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuditLog)
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = next
		entry := AuditEntry{Sequence: seq, Recorded: time.Now(), Payload: payload}
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), raw)
	})
	return seq, err
}

// AuditEntries returns every audit log entry in sequence order.
func (s *Store) AuditEntries() ([]AuditEntry, error) {
	var entries []AuditEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuditLog).ForEach(func(k, v []byte) error {
			var entry AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

func sequenceKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}
