// Package otp issues and verifies one-time login codes over a dual-tier
// store: a shared redis tier plus an in-process fallback used when redis is
// unreachable. The fallback is per-process, so under a multi-process
// deployment a code issued during a redis outage is only verifiable on the
// process that issued it. Degradation is logged with tier=local.
package otp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoEntry is returned by a store when the key holds no active code.
var ErrNoEntry = errors.New("otp: no entry")

// Entry is the stored state for one subject's active code.
type Entry struct {
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// Store is one tier of code storage.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, key string, e Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LocalStore is the in-process fallback tier. Expiry runs on a timer per key
// so stale entries do not accumulate while redis is down.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	timers  map[string]*time.Timer
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		entries: make(map[string]Entry),
		timers:  make(map[string]*time.Timer),
	}
}

func (s *LocalStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNoEntry
	}
	return e, nil
}

func (s *LocalStore) Put(_ context.Context, key string, e Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.entries[key] = e
	s.timers[key] = time.AfterFunc(ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.entries, key)
		delete(s.timers, key)
	})
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
	delete(s.entries, key)
	return nil
}
