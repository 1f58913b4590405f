//go:build gstreamer

package media

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
)

// GStreamerOptions configures a GStreamer element.
type GStreamerOptions struct {
	// Pipeline is a launch template; {url} and {volume} are substituted.
	Pipeline string
	Poll     time.Duration
	Muted    bool
}

// DefaultPipeline plays any URI through playbin.
const DefaultPipeline = "playbin uri={url} volume={volume}"

// GStreamer renders through a local GStreamer pipeline.
type GStreamer struct {
	emitter
	mu         sync.Mutex
	template   string
	poll       time.Duration
	muted      bool
	src        string
	loads      uint64
	current    *gst.Element
	volume     float64
	opacity    float64
	fullscreen bool
	announced  bool
	playing    bool
}

var gstInitOnce sync.Once

// NewGStreamer creates a GStreamer element.
func NewGStreamer(opts GStreamerOptions) (*GStreamer, error) {
	if strings.TrimSpace(opts.Pipeline) == "" {
		opts.Pipeline = DefaultPipeline
	}
	if opts.Poll == 0 {
		opts.Poll = 250 * time.Millisecond
	}
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
	return &GStreamer{
		emitter:  newEmitter(),
		template: opts.Pipeline,
		poll:     opts.Poll,
		muted:    opts.Muted,
		volume:   1,
		opacity:  1,
	}, nil
}

func (g *GStreamer) Load(src string) error {
	if src == "" {
		return ErrNoSource
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil {
		_ = g.current.SetState(gst.StateNull)
		g.current = nil
	}
	launch := strings.ReplaceAll(g.template, "{url}", src)
	launch = strings.ReplaceAll(launch, "{volume}", "0.00")
	pipeline, err := gst.ParseLaunch(launch)
	if err != nil {
		return err
	}
	if err := pipeline.SetState(gst.StatePaused); err != nil {
		return err
	}
	_ = pipeline.SetProperty("volume", g.effectiveVolumeLocked())
	g.current = pipeline
	g.src = src
	g.loads++
	g.announced = false
	g.playing = false
	return nil
}

func (g *GStreamer) Play() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return ErrNoSource
	}
	if err := g.current.SetState(gst.StatePlaying); err != nil {
		return errors.Join(ErrPlayRejected, err)
	}
	g.playing = true
	return nil
}

func (g *GStreamer) Pause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return nil
	}
	g.playing = false
	return g.current.SetState(gst.StatePaused)
}

func (g *GStreamer) Seek(seconds float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return ErrNoSource
	}
	positionNS := int64(seconds * float64(time.Second))
	if !g.current.SeekSimple(positionNS, gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit) {
		return errors.New("gstreamer seek failed")
	}
	return nil
}

func (g *GStreamer) SetVolume(v float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.volume = clampUnit(v)
	if g.current != nil {
		_ = g.current.SetProperty("volume", g.effectiveVolumeLocked())
	}
	return nil
}

// SetOpacity is tracked only; playbin's default sink has no alpha control.
func (g *GStreamer) SetOpacity(v float64) error {
	g.mu.Lock()
	g.opacity = clampUnit(v)
	g.mu.Unlock()
	return nil
}

func (g *GStreamer) RequestFullscreen(on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fullscreen == on {
		return nil
	}
	g.fullscreen = on
	g.emit(Event{Type: EventFullscreenChange, Src: g.src, Load: g.loads, Fullscreen: on, Playing: g.playing})
	return nil
}

func (g *GStreamer) Events() <-chan Event {
	return g.events
}

// Run queries the pipeline position at the poll rate.
func (g *GStreamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.pollOnce()
		}
	}
}

func (g *GStreamer) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil {
		_ = g.current.SetState(gst.StateNull)
		g.current = nil
	}
	return nil
}

func (g *GStreamer) pollOnce() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return
	}
	okPos, pos := g.current.QueryPosition(gst.FormatTime)
	okDur, dur := g.current.QueryDuration(gst.FormatTime)
	if !okPos {
		return
	}
	ev := Event{
		Src:         g.src,
		Load:        g.loads,
		CurrentTime: time.Duration(pos).Seconds(),
		Playing:     g.playing,
		Fullscreen:  g.fullscreen,
	}
	if okDur {
		ev.Duration = time.Duration(dur).Seconds()
	}
	if !g.announced && ev.Duration > 0 {
		g.announced = true
		g.emit(withType(ev, EventMetadataLoaded))
	}
	g.emit(withType(ev, EventTimeUpdate))
	if g.playing && ev.Duration > 0 && ev.CurrentTime >= ev.Duration {
		g.playing = false
		ev.Playing = false
		g.emit(withType(ev, EventEnded))
	}
}

func (g *GStreamer) effectiveVolumeLocked() float64 {
	if g.muted {
		return 0
	}
	return g.volume
}
