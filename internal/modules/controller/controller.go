package controller

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/mikey-austin/vigil/internal/adapters/clock"
	"github.com/mikey-austin/vigil/internal/catalog"
	"github.com/mikey-austin/vigil/internal/fade"
	"github.com/mikey-austin/vigil/internal/media"
	"github.com/mikey-austin/vigil/internal/throttle"
	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

// ErrVideoNotFound is returned by ChangeVideo for an id not in the catalog.
var ErrVideoNotFound = errors.New("video not found")

// Sink receives outbound snapshots. Send is called with the controller's
// lock held and must not block.
type Sink interface {
	Send(env vigil.Envelope) error
}

// Controller owns the media element and the authoritative playback state.
// All state changes, fade ticks and media events are serialized on one lock.
type Controller struct {
	log     *zap.Logger
	mu      sync.Mutex
	element media.Element
	catalog *catalog.Catalog
	sink    Sink
	fades   *fade.Engine
	push    *throttle.Gate
	state   vigil.PlaybackState
	current vigil.VideoDescriptor
	// loads counts successful element loads; media events carrying another
	// generation belong to a replaced load.
	loads uint64
}

// NewController creates a controller. Nothing is loaded until ChangeVideo.
func NewController(log *zap.Logger, element media.Element, cat *catalog.Catalog, sink Sink, clk clock.Clock) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	c := &Controller{
		log:     log,
		element: element,
		catalog: cat,
		sink:    sink,
		push:    throttle.New(throttle.TimeUpdateCooldown, clk),
		state:   vigil.PlaybackState{Volume: 1, Opacity: 1},
	}
	c.fades = fade.NewEngine(clk, &c.mu)
	return c
}

// State returns a copy of the playback state.
func (c *Controller) State() vigil.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the loaded video.
func (c *Controller) Current() vigil.VideoDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Videos returns the catalog.
func (c *Controller) Videos() []vigil.VideoDescriptor {
	return c.catalog.List()
}

// Play starts playback. A rejected play is logged and leaves the state not
// playing.
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playLocked()
}

// Pause stops playback.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked()
}

// Seek moves to seconds clamped to [0, duration]. Playing state is kept.
func (c *Controller) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	if seconds > c.state.Duration {
		seconds = c.state.Duration
	}
	if err := c.element.Seek(seconds); err != nil {
		c.log.Warn("seek failed", zap.Float64("time", seconds), zap.Error(err))
		return
	}
	c.state.CurrentTime = seconds
}

// ChangeVideo loads the video with id, rewound and paused. The push gate is
// reopened so the new source's first time update always reaches the console.
func (c *Controller) ChangeVideo(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	video, ok := c.catalog.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrVideoNotFound, id)
	}
	if err := c.element.Load(video.Src); err != nil {
		return fmt.Errorf("load %s: %w", video.ID, err)
	}
	c.loads++
	c.push.Reset()
	c.current = video
	c.state.CurrentVideoID = video.ID
	c.state.CurrentTime = 0
	c.state.Duration = 0
	c.state.IsPlaying = false
	c.log.Info("video changed", zap.String("video_id", video.ID), zap.String("title", video.Title))
	return nil
}

// FadeIn ramps volume and opacity to 1.
func (c *Controller) FadeIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonHoldLocked()
	c.fades.Start(fade.Volume, c.state.Volume, 1, c.setVolumeLocked, nil)
	c.fades.Start(fade.Opacity, c.state.Opacity, 1, c.setOpacityLocked, nil)
}

// FadeOut ramps volume and opacity to 0.
func (c *Controller) FadeOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonHoldLocked()
	c.fades.Start(fade.Volume, c.state.Volume, 0, c.setVolumeLocked, nil)
	c.fades.Start(fade.Opacity, c.state.Opacity, 0, c.setOpacityLocked, nil)
}

// Hold ramps opacity to 0 and pauses once the ramp completes. Volume is not
// touched.
func (c *Controller) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.IsOnHold = true
	c.fades.Start(fade.Opacity, c.state.Opacity, 0, c.setOpacityLocked, c.pauseLocked)
}

// Release resumes playback, then ramps opacity back to 1.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.IsOnHold = false
	c.playLocked()
	c.fades.Start(fade.Opacity, c.state.Opacity, 1, c.setOpacityLocked, nil)
}

// abandonHoldLocked clears the hold flag when a hold ramp is about to be
// replaced by another opacity fade; the replaced ramp never pauses. A hold
// that already completed stays in place until Release.
func (c *Controller) abandonHoldLocked() {
	if c.state.IsOnHold && c.fades.State(fade.Opacity) == fade.Ramping {
		c.state.IsOnHold = false
	}
}

// Stop cancels running fades. The controller must not be used afterwards.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fades.CancelAll()
	c.log.Debug("controller stopped", zap.Int64("time_updates_dropped", c.push.Dropped()))
}

// ToggleFullscreen asks the element to flip fullscreen. The state follows
// the element's fullscreen-change event.
func (c *Controller) ToggleFullscreen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.element.RequestFullscreen(!c.state.IsFullscreen); err != nil {
		c.log.Warn("fullscreen request failed", zap.Error(err))
	}
}

// Apply executes a decoded intent. Failures are logged, never returned.
func (c *Controller) Apply(intent vigil.Intent) {
	switch intent.Type {
	case vigil.IntentPlay:
		c.Play()
	case vigil.IntentPause:
		c.Pause()
	case vigil.IntentFadeIn:
		c.FadeIn()
	case vigil.IntentFadeOut:
		c.FadeOut()
	case vigil.IntentHold:
		c.Hold()
	case vigil.IntentRelease:
		c.Release()
	case vigil.IntentToggleFullscreen:
		c.ToggleFullscreen()
	case vigil.IntentChangeVideo:
		if err := c.ChangeVideo(intent.VideoID); err != nil {
			c.log.Warn("change video ignored", zap.Error(err))
		}
	case vigil.IntentSeekTo:
		c.Seek(intent.Time)
	case vigil.IntentRequestSnapshot:
		c.sendSourceSnapshot()
	default:
		c.log.Warn("unknown intent", zap.String("type", string(intent.Type)))
	}
}

// HandleEnvelope is the inbound channel handler.
func (c *Controller) HandleEnvelope(env vigil.Envelope) {
	intent, err := env.Intent()
	if err != nil {
		c.log.Debug("ignoring envelope", zap.Error(err))
		return
	}
	c.log.Debug("intent", zap.String("type", string(intent.Type)), zap.String("from", env.From))
	c.Apply(intent)
}

// HandleMediaEvent folds a native media event into the state. Events from a
// load other than the latest one are stale and dropped, including events
// queued before the current source was loaded again.
func (c *Controller) HandleMediaEvent(ev media.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Load != c.loads {
		return
	}
	switch ev.Type {
	case media.EventMetadataLoaded:
		c.state.Duration = ev.Duration
	case media.EventTimeUpdate:
		c.state.CurrentTime = ev.CurrentTime
		if ev.Duration > 0 {
			c.state.Duration = ev.Duration
		}
		c.emitTimeUpdateLocked()
	case media.EventFullscreenChange:
		c.state.IsFullscreen = ev.Fullscreen
	case media.EventEnded:
		c.state.IsPlaying = false
		c.state.CurrentTime = ev.CurrentTime
	case media.EventError:
		c.log.Warn("media error", zap.Error(ev.Err))
	}
}

func (c *Controller) playLocked() {
	if c.state.IsPlaying {
		return
	}
	if err := c.element.Play(); err != nil {
		c.log.Warn("play rejected", zap.String("video_id", c.state.CurrentVideoID), zap.Error(err))
		c.state.IsPlaying = false
		return
	}
	c.state.IsPlaying = true
}

func (c *Controller) pauseLocked() {
	if err := c.element.Pause(); err != nil {
		c.log.Warn("pause failed", zap.Error(err))
	}
	c.state.IsPlaying = false
}

func (c *Controller) setVolumeLocked(v float64) {
	c.state.Volume = v
	if err := c.element.SetVolume(v); err != nil {
		c.log.Debug("set volume failed", zap.Error(err))
	}
}

func (c *Controller) setOpacityLocked(v float64) {
	c.state.Opacity = v
	if err := c.element.SetOpacity(v); err != nil {
		c.log.Debug("set opacity failed", zap.Error(err))
	}
}

func (c *Controller) emitTimeUpdateLocked() {
	if c.sink == nil || !c.push.Allow() {
		return
	}
	env := vigil.NewTimeUpdate(vigil.TimeUpdate{
		VideoID:     c.state.CurrentVideoID,
		CurrentTime: c.state.CurrentTime,
		Duration:    c.state.Duration,
		IsPlaying:   c.state.IsPlaying,
	})
	if err := c.sink.Send(env); err != nil {
		c.log.Debug("time update not sent", zap.Error(err))
	}
}

func (c *Controller) sendSourceSnapshot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink == nil {
		return
	}
	env := vigil.NewVideoSrcResponse(vigil.VideoSrcResponse{
		Src:         c.current.Src,
		Thumbnail:   c.current.Thumbnail,
		Title:       c.current.Title,
		CurrentTime: c.state.CurrentTime,
		IsPlaying:   c.state.IsPlaying,
	})
	if err := c.sink.Send(env); err != nil {
		c.log.Debug("snapshot not sent", zap.Error(err))
	}
}
