package engine

import (
	"sync"
	"time"
)

// Cooldown keeps a recently-executed pair from being re-attempted while its
// quotes are effectively unchanged. Checking and recording are split: a pair
// enters cooldown only after an execution attempt, so pure rejections
// (same-venue, thin edge) stay eligible for the next quote refresh. Safe for
// concurrent use.
type Cooldown struct {
	seen map[string]time.Time // pair id -> last execution attempt
	ttl  time.Duration
	mu   sync.Mutex
}

// NewCooldown creates a Cooldown with the given window.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Active reports whether the pair attempted execution within the window.
func (c *Cooldown) Active(pairID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.seen[pairID]
	return ok && time.Since(last) < c.ttl
}

// Touch records an execution attempt for the pair.
func (c *Cooldown) Touch(pairID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[pairID] = time.Now()
}

// Sweep drops expired entries. Call periodically to bound memory.
func (c *Cooldown) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, id)
		}
	}
}
