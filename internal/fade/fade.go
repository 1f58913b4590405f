// Package fade ramps a scalar (volume or opacity) linearly toward 0 or 1.
//
// An Engine holds at most one ramp per target. Starting a ramp on a target
// replaces the previous ramp on that target; the replaced ramp never ticks
// again. The engine does not own a lock: it borrows the owner's, and every
// tick runs with that lock held, so set and done callbacks see the same
// serialization as the owner's other state changes.
package fade

import (
	"math"
	"sync"
	"time"

	"github.com/mikey-austin/vigil/internal/adapters/clock"
)

// Target names the scalar being ramped.
type Target string

const (
	Volume  Target = "volume"
	Opacity Target = "opacity"
)

// Ramp shape.
const (
	Duration = 1000 * time.Millisecond
	Steps    = 10
	Tick     = Duration / Steps
	Step     = 1.0 / Steps
)

const epsilon = 1e-9

// State is a target's position in the Idle/Ramping cycle.
type State int

const (
	Idle State = iota
	Ramping
)

type ramp struct {
	target    Target
	to        float64
	value     float64
	remaining int
	set       func(float64)
	done      func()
	timer     clock.Timer
}

// Engine schedules ramps on a clock.
type Engine struct {
	clock clock.Clock
	lock  sync.Locker
	tick  time.Duration
	ramps map[Target]*ramp
}

// NewEngine creates an engine. lock must be the owner's lock: Start, CancelAll
// and State are called with it held, and ticks acquire it.
func NewEngine(clk clock.Clock, lock sync.Locker) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{clock: clk, lock: lock, tick: Tick, ramps: map[Target]*ramp{}}
}

// Start begins a ramp of target from its current value toward to. set is
// called with each new value; done, if non-nil, runs once the ramp reaches
// to. A ramp cancelled before completion never calls done. Caller holds the
// lock.
func (e *Engine) Start(target Target, from float64, to float64, set func(float64), done func()) {
	e.cancelLocked(target)

	r := &ramp{
		target:    target,
		to:        clamp(to),
		value:     clamp(from),
		remaining: Steps,
		set:       set,
		done:      done,
	}
	e.ramps[target] = r
	e.schedule(r)
}

// CancelAll stops every running ramp, leaving each value where it is.
// Caller holds the lock.
func (e *Engine) CancelAll() {
	for target := range e.ramps {
		e.cancelLocked(target)
	}
}

// State reports whether target is ramping. Caller holds the lock.
func (e *Engine) State(target Target) State {
	if _, ok := e.ramps[target]; ok {
		return Ramping
	}
	return Idle
}

func (e *Engine) cancelLocked(target Target) {
	r, ok := e.ramps[target]
	if !ok {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	delete(e.ramps, target)
}

func (e *Engine) schedule(r *ramp) {
	r.timer = e.clock.AfterFunc(e.tick, func() {
		e.lock.Lock()
		defer e.lock.Unlock()
		e.step(r)
	})
}

func (e *Engine) step(r *ramp) {
	if e.ramps[r.target] != r {
		// Replaced or cancelled after the timer fired.
		return
	}

	if r.value < r.to {
		r.value = math.Min(r.to, r.value+Step)
	} else if r.value > r.to {
		r.value = math.Max(r.to, r.value-Step)
	}
	r.value = clamp(r.value)
	r.remaining--

	finished := math.Abs(r.value-r.to) < epsilon || r.remaining <= 0
	if finished {
		r.value = r.to
		delete(e.ramps, r.target)
	}
	if r.set != nil {
		r.set(r.value)
	}
	if !finished {
		e.schedule(r)
		return
	}
	if r.done != nil {
		r.done()
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
