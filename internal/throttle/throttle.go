// Package throttle implements a drop-during-cooldown rate limiter.
//
// A Gate admits one event and then rejects every event until its cooldown
// has elapsed. Rejected events are gone: nothing is queued and nothing is
// sent late.
package throttle

import (
	"sync"
	"time"

	"github.com/mikey-austin/vigil/internal/adapters/clock"
)

// Cooldowns used by the two peers.
const (
	TimeUpdateCooldown = 500 * time.Millisecond
	PullCooldown       = 2000 * time.Millisecond
)

// Gate admits at most one event per cooldown window.
type Gate struct {
	mu       sync.Mutex
	clock    clock.Clock
	cooldown time.Duration
	until    time.Time
	dropped  int64
}

// New creates a gate. A nil clock uses the wall clock.
func New(cooldown time.Duration, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Gate{clock: clk, cooldown: cooldown}
}

// Allow reports whether an event may pass now. A passing event starts a new
// cooldown; an event arriving during cooldown is dropped.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if now.Before(g.until) {
		g.dropped++
		return false
	}
	g.until = now.Add(g.cooldown)
	return true
}

// Reset ends any running cooldown so the next event passes.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.until = time.Time{}
}

// Dropped returns how many events were rejected so far.
func (g *Gate) Dropped() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}
