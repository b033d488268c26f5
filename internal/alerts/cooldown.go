package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CooldownTracker remembers when each rule last fired. State is process-local
// and mutated only by the evaluator, but guarded anyway so a future parallel
// evaluator cannot corrupt it.
type CooldownTracker struct {
	mu        sync.Mutex
	lastFired map[uuid.UUID]time.Time
}

func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{lastFired: make(map[uuid.UUID]time.Time)}
}

// Allow reports whether a rule may fire at now. A rule that last fired at T
// is blocked strictly before T+cooldown and allowed at or after it.
func (c *CooldownTracker) Allow(ruleID uuid.UUID, cooldown time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastFired[ruleID]
	if !ok {
		return true
	}
	return !now.Before(last.Add(cooldown))
}

// MarkFired records a successful trigger evaluation.
func (c *CooldownTracker) MarkFired(ruleID uuid.UUID, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFired[ruleID] = at
}

// LastFired returns when the rule last fired, if ever.
func (c *CooldownTracker) LastFired(ruleID uuid.UUID) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.lastFired[ruleID]
	return t, ok
}
