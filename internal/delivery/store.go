// Package delivery provides the idempotency record store for notification
// dispatch. A record for (user, local date, type) means "this notification has
// already been attempted today"; claiming it is a single atomic check-and-set
// so concurrent scheduler workers race safely.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is the idempotency record store.
type Store interface {
	// Claim atomically creates the record for the key if absent. It returns
	// true for exactly one caller per key; every other caller sees false.
	// The record expires after ttl, by which time the key's local date has
	// rolled over anyway.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Exists reports whether the record is present. Read-only; the evaluator
	// uses it to avoid emitting jobs that dispatch would discard. Claim is
	// still the only authority under races.
	Exists(ctx context.Context, key string) (bool, error)
}

// Key builds the per-user-per-day record key.
func Key(userID, localDate, notifType string) string {
	return fmt.Sprintf("delivered:%s:%s:%s", userID, localDate, notifType)
}

// MemoryStore is a process-local Store for single-worker deployments and
// tests. Multi-worker setups need the redis-backed store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]time.Time)}
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, ok := s.records[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.records[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.records[key]
	return ok && time.Now().Before(expiry), nil
}
