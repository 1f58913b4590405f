package media

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/mikey-austin/vigil/internal/adapters/clock"
)

// SimTick is the simulated native time-update rate, four per second.
const SimTick = 250 * time.Millisecond

// DefaultSimDuration is used when SimOptions.Durations has no entry.
const DefaultSimDuration = 300 * time.Second

// SimOptions configures a simulated element.
type SimOptions struct {
	Clock clock.Clock
	// Durations maps a source to its length.
	Durations map[string]time.Duration
	// RejectPlay makes every Play fail, as an autoplay policy would.
	RejectPlay bool
}

// Sim is a clock-driven element with no real output. It is used by tests,
// headless hosts, and the console's muted preview.
type Sim struct {
	emitter
	mu         sync.Mutex
	clock      clock.Clock
	durations  map[string]time.Duration
	rejectPlay bool

	src        string
	loads      uint64
	position   float64
	duration   float64
	playing    bool
	volume     float64
	opacity    float64
	fullscreen bool
	timer      clock.Timer
	gen        int
	closed     bool
}

// NewSim creates a simulated element.
func NewSim(opts SimOptions) *Sim {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Sim{
		emitter:    newEmitter(),
		clock:      clk,
		durations:  opts.Durations,
		rejectPlay: opts.RejectPlay,
		volume:     1,
		opacity:    1,
	}
}

func (s *Sim) Load(src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.src = src
	s.loads++
	s.position = 0
	s.playing = false
	s.duration = s.durationFor(src).Seconds()
	s.emit(s.eventLocked(EventMetadataLoaded))
	s.emit(s.eventLocked(EventTimeUpdate))
	return nil
}

func (s *Sim) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == "" {
		return ErrNoSource
	}
	if s.rejectPlay {
		return ErrPlayRejected
	}
	if s.playing {
		return nil
	}
	if s.position >= s.duration {
		s.position = 0
	}
	s.playing = true
	s.scheduleLocked()
	return nil
}

func (s *Sim) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return nil
	}
	s.playing = false
	s.stopLocked()
	s.emit(s.eventLocked(EventTimeUpdate))
	return nil
}

func (s *Sim) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == "" {
		return ErrNoSource
	}
	s.position = math.Max(0, math.Min(seconds, s.duration))
	s.emit(s.eventLocked(EventTimeUpdate))
	return nil
}

func (s *Sim) SetVolume(v float64) error {
	s.mu.Lock()
	s.volume = clampUnit(v)
	s.mu.Unlock()
	return nil
}

func (s *Sim) SetOpacity(v float64) error {
	s.mu.Lock()
	s.opacity = clampUnit(v)
	s.mu.Unlock()
	return nil
}

func (s *Sim) RequestFullscreen(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fullscreen == on {
		return nil
	}
	s.fullscreen = on
	s.emit(s.eventLocked(EventFullscreenChange))
	return nil
}

func (s *Sim) Events() <-chan Event {
	return s.events
}

// Run blocks until ctx ends. Ticks are scheduled on the clock by Play.
func (s *Sim) Run(ctx context.Context) error {
	<-ctx.Done()
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
	return nil
}

// Levels returns the current volume and opacity.
func (s *Sim) Levels() (volume float64, opacity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume, s.opacity
}

// Playing reports whether the element is advancing.
func (s *Sim) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Source returns the loaded source.
func (s *Sim) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

func (s *Sim) durationFor(src string) time.Duration {
	if d, ok := s.durations[src]; ok {
		return d
	}
	return DefaultSimDuration
}

func (s *Sim) scheduleLocked() {
	if s.closed {
		return
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(SimTick, func() { s.tick(gen) })
}

func (s *Sim) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Sim) tick(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || gen != s.gen {
		return
	}
	s.position += SimTick.Seconds()
	if s.position >= s.duration {
		s.position = s.duration
		s.playing = false
		s.timer = nil
		s.emit(s.eventLocked(EventTimeUpdate))
		s.emit(s.eventLocked(EventEnded))
		return
	}
	s.emit(s.eventLocked(EventTimeUpdate))
	s.scheduleLocked()
}

func (s *Sim) eventLocked(t EventType) Event {
	return Event{
		Type:        t,
		Src:         s.src,
		Load:        s.loads,
		CurrentTime: s.position,
		Duration:    s.duration,
		Playing:     s.playing,
		Fullscreen:  s.fullscreen,
	}
}
