package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTunnels = []byte("tunnels")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// Open opens (or creates) the state file at path
func Open(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTunnels); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketTunnels, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutTunnel upserts the record for t.Role
func (s *BoltStore) PutTunnel(t *Tunnel) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTunnels)
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return b.Put([]byte(t.Role), data)
	})
}

// DeleteTunnel removes the record for role; absent is not an error
func (s *BoltStore) DeleteTunnel(role string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTunnels).Delete([]byte(role))
	})
}

// ListTunnels returns every recorded tunnel ordered by role
func (s *BoltStore) ListTunnels() ([]*Tunnel, error) {
	var tunnels []*Tunnel
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTunnels)
		return b.ForEach(func(k, v []byte) error {
			var t Tunnel
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to decode tunnel %s: %w", k, err)
			}
			tunnels = append(tunnels, &t)
			return nil
		})
	})
	return tunnels, err
}

// MemoryStore is an in-process Store for tests and dry runs
type MemoryStore struct {
	tunnels map[string]Tunnel
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tunnels: make(map[string]Tunnel)}
}

func (m *MemoryStore) PutTunnel(t *Tunnel) error {
	m.tunnels[t.Role] = *t
	return nil
}

func (m *MemoryStore) DeleteTunnel(role string) error {
	delete(m.tunnels, role)
	return nil
}

func (m *MemoryStore) ListTunnels() ([]*Tunnel, error) {
	out := make([]*Tunnel, 0, len(m.tunnels))
	for _, t := range m.tunnels {
		t := t
		out = append(out, &t)
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
