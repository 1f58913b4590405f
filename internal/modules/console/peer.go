// Package console implements the remote control console: a peer that mirrors
// the controller's state from snapshots and sends intents back. It never
// touches the controller's media; everything it shows is a possibly stale
// copy.
package console

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mikey-austin/vigil/internal/adapters/clock"
	"github.com/mikey-austin/vigil/internal/channel"
	"github.com/mikey-austin/vigil/internal/media"
	"github.com/mikey-austin/vigil/internal/throttle"
	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

// PendingSelectionTTL bounds how long a console-issued video change masks
// time updates for the previous video.
const PendingSelectionTTL = 3 * time.Second

var (
	ErrUnknownVideo    = errors.New("unknown video")
	ErrUnknownDuration = errors.New("duration not known yet")
	ErrNoPreview       = errors.New("no preview element")
)

// MirroredState is the console's best-effort copy of the playback state
// plus its own UI flags.
type MirroredState struct {
	CurrentVideoID string    `json:"currentVideoId"`
	CurrentTime    float64   `json:"currentTime"`
	Duration       float64   `json:"duration"`
	IsPlaying      bool      `json:"isPlaying"`
	Src            string    `json:"src,omitempty"`
	Thumbnail      string    `json:"thumbnail,omitempty"`
	Title          string    `json:"title,omitempty"`
	Highlighted    string    `json:"highlighted,omitempty"`
	PreviewEnabled bool      `json:"previewEnabled"`
	LastUpdate     time.Time `json:"lastUpdate"`
	Updates        int64     `json:"updates"`
}

// Options configures a Peer.
type Options struct {
	Clock clock.Clock
	// Videos is the catalog, if known. SelectVideo rejects other ids.
	Videos []vigil.VideoDescriptor
	// Preview is an element used for live preview. It should be muted.
	Preview media.Element
}

type pendingSelection struct {
	id string
	at time.Time
}

// Peer is a remote console bound to one channel.
type Peer struct {
	log     *zap.Logger
	clock   clock.Clock
	ch      channel.Channel
	pull    *throttle.Gate
	preview media.Element

	mu           sync.Mutex
	videos       []vigil.VideoDescriptor
	state        MirroredState
	pending      *pendingSelection
	previewSrc   string
	previewVideo string
	onChange     func(MirroredState)
	closed       bool
}

// NewPeer creates a console peer and installs its inbound handler on ch.
func NewPeer(log *zap.Logger, ch channel.Channel, opts Options) *Peer {
	if log == nil {
		log = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	p := &Peer{
		log:     log,
		clock:   clk,
		ch:      ch,
		pull:    throttle.New(throttle.PullCooldown, clk),
		preview: opts.Preview,
		videos:  opts.Videos,
	}
	ch.OnReceive(p.HandleEnvelope)
	return p
}

// OnChange registers a callback run after every mirrored state change.
func (p *Peer) OnChange(f func(MirroredState)) {
	p.mu.Lock()
	p.onChange = f
	p.mu.Unlock()
}

// SetVideos replaces the known catalog.
func (p *Peer) SetVideos(videos []vigil.VideoDescriptor) {
	p.mu.Lock()
	p.videos = videos
	p.mu.Unlock()
}

// Videos returns the known catalog.
func (p *Peer) Videos() []vigil.VideoDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]vigil.VideoDescriptor, len(p.videos))
	copy(out, p.videos)
	return out
}

// State returns a copy of the mirrored state.
func (p *Peer) State() MirroredState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Open reports whether the console is still open.
func (p *Peer) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// ControllerLive reports whether the controller is believed to be listening.
func (p *Peer) ControllerLive() bool {
	return p.ch.PeerOpen()
}

func (p *Peer) Play() error             { return p.send(vigil.Intent{Type: vigil.IntentPlay}) }
func (p *Peer) Pause() error            { return p.send(vigil.Intent{Type: vigil.IntentPause}) }
func (p *Peer) FadeIn() error           { return p.send(vigil.Intent{Type: vigil.IntentFadeIn}) }
func (p *Peer) FadeOut() error          { return p.send(vigil.Intent{Type: vigil.IntentFadeOut}) }
func (p *Peer) Hold() error             { return p.send(vigil.Intent{Type: vigil.IntentHold}) }
func (p *Peer) Release() error          { return p.send(vigil.Intent{Type: vigil.IntentRelease}) }
func (p *Peer) ToggleFullscreen() error { return p.send(vigil.Intent{Type: vigil.IntentToggleFullscreen}) }

// SelectVideo asks the controller to switch videos. Until a time update for
// id arrives, or the selection expires, updates for other videos are
// treated as stale.
func (p *Peer) SelectVideo(id string) error {
	p.mu.Lock()
	if len(p.videos) > 0 && !containsVideo(p.videos, id) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownVideo, id)
	}
	p.pending = &pendingSelection{id: id, at: p.clock.Now()}
	p.mu.Unlock()
	return p.send(vigil.Intent{Type: vigil.IntentChangeVideo, VideoID: id})
}

// SeekTo asks the controller to seek. The mirror is not changed until the
// controller confirms with a time update.
func (p *Peer) SeekTo(seconds float64) error {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	return p.send(vigil.Intent{Type: vigil.IntentSeekTo, Time: seconds})
}

// SeekAt maps a pointer position on a progress bar of the given width to a
// time and seeks there.
func (p *Peer) SeekAt(x, width float64) (float64, error) {
	p.mu.Lock()
	duration := p.state.Duration
	p.mu.Unlock()
	if width <= 0 || duration <= 0 {
		return 0, ErrUnknownDuration
	}
	fraction := math.Max(0, math.Min(1, x/width))
	target := fraction * duration
	return target, p.SeekTo(target)
}

// RequestSnapshot pulls a videoSrcResponse. Pulls inside the cooldown are
// dropped and report false.
func (p *Peer) RequestSnapshot() (bool, error) {
	if !p.pull.Allow() {
		return false, nil
	}
	return true, p.send(vigil.Intent{Type: vigil.IntentRequestSnapshot})
}

// EnablePreview turns on local mirroring through the preview element.
func (p *Peer) EnablePreview() error {
	if p.preview == nil {
		return ErrNoPreview
	}
	p.mu.Lock()
	p.state.PreviewEnabled = true
	p.previewSrc = ""
	p.previewVideo = ""
	onChange, state := p.onChange, p.state
	p.mu.Unlock()
	if onChange != nil {
		onChange(state)
	}
	_, err := p.RequestSnapshot()
	return err
}

// DisablePreview stops the preview element.
func (p *Peer) DisablePreview() {
	p.mu.Lock()
	p.state.PreviewEnabled = false
	onChange, state := p.onChange, p.state
	p.mu.Unlock()
	if p.preview != nil {
		_ = p.preview.Pause()
	}
	if onChange != nil {
		onChange(state)
	}
}

// HandleEnvelope applies an inbound snapshot to the mirror.
func (p *Peer) HandleEnvelope(env vigil.Envelope) {
	switch vigil.SnapshotType(env.Type) {
	case vigil.SnapshotTimeUpdate:
		update, err := env.TimeUpdate()
		if err != nil {
			p.log.Debug("bad time update", zap.Error(err))
			return
		}
		p.applyTimeUpdate(update)
	case vigil.SnapshotVideoSrcResponse:
		resp, err := env.VideoSrcResponse()
		if err != nil {
			p.log.Debug("bad snapshot", zap.Error(err))
			return
		}
		p.applySourceSnapshot(resp)
	default:
		p.log.Debug("ignoring envelope", zap.String("kind", string(env.Kind)), zap.String("type", env.Type))
	}
}

// Close closes the console. The mirror is discarded.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.state = MirroredState{}
	p.mu.Unlock()
	if p.preview != nil {
		_ = p.preview.Close()
	}
	return p.ch.Close()
}

func (p *Peer) applyTimeUpdate(update vigil.TimeUpdate) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	now := p.clock.Now()
	if p.pending != nil {
		switch {
		case update.VideoID == p.pending.id:
			p.pending = nil
		case now.Sub(p.pending.at) < PendingSelectionTTL:
			p.mu.Unlock()
			p.log.Debug("stale time update", zap.String("video_id", update.VideoID))
			return
		default:
			p.pending = nil
		}
	}

	p.state.CurrentVideoID = update.VideoID
	p.state.CurrentTime = update.CurrentTime
	p.state.Duration = update.Duration
	p.state.IsPlaying = update.IsPlaying
	p.state.Highlighted = update.VideoID
	p.state.LastUpdate = now
	p.state.Updates++

	refresh := false
	if p.state.PreviewEnabled && p.preview != nil {
		if p.previewVideo != update.VideoID {
			refresh = true
		} else {
			p.syncPreviewLocked(update.IsPlaying)
		}
	}
	onChange, state := p.onChange, p.state
	p.mu.Unlock()

	if refresh {
		if _, err := p.RequestSnapshot(); err != nil {
			p.log.Debug("preview refresh failed", zap.Error(err))
		}
	}
	if onChange != nil {
		onChange(state)
	}
}

func (p *Peer) applySourceSnapshot(resp vigil.VideoSrcResponse) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.state.Src = resp.Src
	p.state.Thumbnail = resp.Thumbnail
	p.state.Title = resp.Title
	p.state.CurrentTime = resp.CurrentTime
	p.state.IsPlaying = resp.IsPlaying
	p.state.LastUpdate = p.clock.Now()

	if p.state.PreviewEnabled && p.preview != nil && resp.Src != "" {
		if p.previewSrc != resp.Src {
			if err := p.preview.Load(resp.Src); err != nil {
				p.log.Warn("preview load failed", zap.Error(err))
			} else {
				p.previewSrc = resp.Src
			}
		}
		p.previewVideo = p.state.CurrentVideoID
		if err := p.preview.Seek(resp.CurrentTime); err != nil {
			p.log.Debug("preview seek failed", zap.Error(err))
		}
		p.syncPreviewLocked(resp.IsPlaying)
	}
	onChange, state := p.onChange, p.state
	p.mu.Unlock()
	if onChange != nil {
		onChange(state)
	}
}

func (p *Peer) syncPreviewLocked(playing bool) {
	var err error
	if playing {
		err = p.preview.Play()
	} else {
		err = p.preview.Pause()
	}
	if err != nil {
		p.log.Debug("preview sync failed", zap.Error(err))
	}
}

func (p *Peer) send(intent vigil.Intent) error {
	if !p.Open() {
		return channel.ErrClosed
	}
	if err := p.ch.Send(vigil.NewIntent(intent)); err != nil {
		return fmt.Errorf("send %s: %w", intent.Type, err)
	}
	return nil
}

func containsVideo(videos []vigil.VideoDescriptor, id string) bool {
	for _, v := range videos {
		if v.ID == id {
			return true
		}
	}
	return false
}
