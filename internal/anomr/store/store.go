// Package store keeps scored anomaly records in a bbolt database.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/vaibhaw-/anomr/internal/anomr/model"
)

var bAnoms = []byte("anomalies")

type Store struct{ db *bolt.DB }

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bAnoms)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// key sorts records by bucket start, then by id.
func key(r model.Record) []byte {
	return []byte(r.BucketStart.UTC().Format("2006-01-02T15:04:05.000000000Z") + "/" + r.ID)
}

// Put stores r, assigning an ID when it has none, and returns the ID.
func (s *Store) Put(r model.Record) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	j, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bAnoms).Put(key(r), j)
	})
	if err != nil {
		return "", fmt.Errorf("put record: %w", err)
	}
	return r.ID, nil
}

// List returns up to limit records, newest bucket first. limit <= 0 means all.
func (s *Store) List(limit int) ([]model.Record, error) {
	out := []model.Record{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bAnoms).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r model.Record
			if json.Unmarshal(v, &r) != nil {
				continue
			}
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bAnoms).Stats().KeyN
		return nil
	})
	return n, err
}
