package otp

import (
	"context"
	"errors"
	"time"

	"notification-engine/internal/logging"
)

// TieredStore tries the durable tier first and degrades to the local tier
// when the durable one is unreachable. Durable-tier outages are logged, never
// surfaced to the caller.
type TieredStore struct {
	durable Store
	local   Store
	logger  *logging.Logger
}

func NewTieredStore(durable, local Store, logger *logging.Logger) *TieredStore {
	return &TieredStore{durable: durable, local: local, logger: logger}
}

// Get reads the durable tier first, then the local fallback. The returned
// Store is the tier that supplied the entry, so attempt-counter updates go
// back to the right place.
func (t *TieredStore) Get(ctx context.Context, key string) (Entry, Store, error) {
	e, err := t.durable.Get(ctx, key)
	if err == nil {
		return e, t.durable, nil
	}
	if !errors.Is(err, ErrNoEntry) {
		t.logger.Warnf("otp: durable tier read failed, trying tier=local: %v", err)
	}
	e, lerr := t.local.Get(ctx, key)
	if lerr == nil {
		return e, t.local, nil
	}
	if errors.Is(err, ErrNoEntry) && errors.Is(lerr, ErrNoEntry) {
		return Entry{}, nil, ErrNoEntry
	}
	if errors.Is(lerr, ErrNoEntry) {
		// Durable tier down and nothing local either.
		return Entry{}, nil, ErrNoEntry
	}
	return Entry{}, nil, lerr
}

// Put writes to the durable tier, falling back to local on failure.
func (t *TieredStore) Put(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	if err := t.durable.Put(ctx, key, e, ttl); err != nil {
		t.logger.Warnf("otp: durable tier write failed, storing tier=local: %v", err)
		return t.local.Put(ctx, key, e, ttl)
	}
	return nil
}

// Delete removes the key from both tiers so a consumed or dead code can never
// resurface from either side.
func (t *TieredStore) Delete(ctx context.Context, key string) error {
	derr := t.durable.Delete(ctx, key)
	lerr := t.local.Delete(ctx, key)
	if derr != nil {
		t.logger.Warnf("otp: durable tier delete failed: %v", derr)
	}
	return lerr
}
