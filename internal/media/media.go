// Package media provides the rendering surfaces a controller drives.
//
// An Element accepts commands and reports what actually happened through its
// event stream: the controller learns about metadata, playback progress and
// fullscreen transitions only from events, never from command return values.
package media

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoSource     = errors.New("no media source loaded")
	ErrPlayRejected = errors.New("playback rejected")
)

// EventType names a native media notification.
type EventType int

const (
	EventMetadataLoaded EventType = iota
	EventTimeUpdate
	EventFullscreenChange
	EventEnded
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventMetadataLoaded:
		return "metadata-loaded"
	case EventTimeUpdate:
		return "time-update"
	case EventFullscreenChange:
		return "fullscreen-change"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one notification from an element. Load is the number of
// successful Load calls the element had seen when the event was produced, so
// late events from a replaced load can be discarded even when the same source
// is loaded again.
type Event struct {
	Type        EventType
	Src         string
	Load        uint64
	CurrentTime float64
	Duration    float64
	Playing     bool
	Fullscreen  bool
	Err         error
}

// Element is a playable, dimmable surface.
type Element interface {
	// Load swaps the source and rewinds to 0 without starting playback.
	// Every successful Load advances the element's load generation.
	Load(src string) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetVolume(v float64) error
	SetOpacity(v float64) error
	// RequestFullscreen asks for a fullscreen transition. The outcome is
	// reported as an EventFullscreenChange.
	RequestFullscreen(on bool) error
	Events() <-chan Event
	// Run drives the element's native events until ctx ends.
	Run(ctx context.Context) error
	Close() error
}

const eventBuffer = 64

// emitter is a non-blocking event sink. Events that find the buffer full are
// lost, the way a busy page misses time-update callbacks.
type emitter struct {
	events chan Event
}

func newEmitter() emitter {
	return emitter{events: make(chan Event, eventBuffer)}
}

func (e emitter) emit(ev Event) bool {
	select {
	case e.events <- ev:
		return true
	default:
		return false
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
