package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// VLCOptions configures a VLC element.
type VLCOptions struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	// Poll is the status polling interval, which acts as the native
	// time-update rate.
	Poll time.Duration
	// Muted keeps VLC at zero volume regardless of SetVolume, for previews.
	Muted  bool
	Logger *zap.Logger
}

// VLC drives a VLC instance through its HTTP remote control interface.
// VLC has no notion of surface opacity, so opacity is tracked but not
// rendered: a hold dims nothing on screen. Volume and fullscreen are real.
type VLC struct {
	emitter
	log      *zap.Logger
	baseURL  string
	http     *http.Client
	username string
	password string
	poll     time.Duration
	muted    bool

	mu         sync.Mutex
	src        string
	loads      uint64
	opacity    float64
	dimWarned  bool
	announced  bool
	fullscreen bool
	wasPlaying bool
}

type vlcStatus struct {
	State      string  `json:"state"`
	Time       int64   `json:"time"`
	Length     int64   `json:"length"`
	Position   float64 `json:"position"`
	Fullscreen vlcBool `json:"fullscreen"`
}

// vlcBool accepts both the boolean and the 0/1 encodings VLC versions use.
type vlcBool bool

func (b *vlcBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}

// NewVLC creates a VLC element.
func NewVLC(opts VLCOptions) (*VLC, error) {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		return nil, errors.New("base_url required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Poll == 0 {
		opts.Poll = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &VLC{
		emitter:  newEmitter(),
		log:      opts.Logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: opts.Timeout},
		username: opts.Username,
		password: opts.Password,
		poll:     opts.Poll,
		muted:    opts.Muted,
		opacity:  1,
	}, nil
}

func (v *VLC) Load(src string) error {
	if src == "" {
		return ErrNoSource
	}
	_, _ = v.request(url.Values{"command": []string{"pl_stop"}})
	_, _ = v.request(url.Values{"command": []string{"pl_empty"}})
	if _, err := v.request(url.Values{
		"command": []string{"in_enqueue"},
		"input":   []string{src},
	}); err != nil {
		return err
	}
	if v.muted {
		_ = v.SetVolume(0)
	}
	v.mu.Lock()
	v.src = src
	v.loads++
	v.announced = false
	v.wasPlaying = false
	v.mu.Unlock()
	return nil
}

func (v *VLC) Play() error {
	v.mu.Lock()
	src := v.src
	v.mu.Unlock()
	if src == "" {
		return ErrNoSource
	}
	if _, err := v.request(url.Values{"command": []string{"pl_play"}}); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayRejected, err)
	}
	return nil
}

func (v *VLC) Pause() error {
	status, err := v.status()
	if err != nil {
		return err
	}
	if status.State != "playing" {
		return nil
	}
	// pl_pause toggles, so only send it while playing.
	_, err = v.request(url.Values{"command": []string{"pl_pause"}})
	return err
}

func (v *VLC) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	_, err := v.request(url.Values{
		"command": []string{"seek"},
		"val":     []string{strconv.FormatInt(int64(seconds), 10)},
	})
	return err
}

func (v *VLC) SetVolume(volume float64) error {
	volume = clampUnit(volume)
	if v.muted {
		volume = 0
	}
	level := int(volume*256 + 0.5)
	_, err := v.request(url.Values{
		"command": []string{"volume"},
		"val":     []string{strconv.Itoa(level)},
	})
	return err
}

func (v *VLC) SetOpacity(opacity float64) error {
	v.mu.Lock()
	v.opacity = clampUnit(opacity)
	warn := v.opacity < 1 && !v.dimWarned
	if warn {
		v.dimWarned = true
	}
	v.mu.Unlock()
	if warn {
		v.log.Warn("vlc cannot dim the picture; opacity changes are not shown", zap.Float64("opacity", opacity))
	}
	return nil
}

func (v *VLC) RequestFullscreen(on bool) error {
	v.mu.Lock()
	current := v.fullscreen
	v.mu.Unlock()
	if current == on {
		return nil
	}
	// fullscreen toggles; the change is observed by the next poll.
	_, err := v.request(url.Values{"command": []string{"fullscreen"}})
	return err
}

func (v *VLC) Events() <-chan Event {
	return v.events
}

// Run polls VLC's status and turns changes into events.
func (v *VLC) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v.pollOnce()
		}
	}
}

func (v *VLC) Close() error {
	v.http.CloseIdleConnections()
	return nil
}

func (v *VLC) pollOnce() {
	status, err := v.status()
	if err != nil {
		v.log.Debug("vlc status failed", zap.Error(err))
		src, loads := v.source()
		v.emit(Event{Type: EventError, Src: src, Load: loads, Err: err})
		return
	}

	v.mu.Lock()
	src := v.src
	playing := status.State == "playing"
	ev := Event{
		Src:         src,
		Load:        v.loads,
		CurrentTime: statusSeconds(status),
		Duration:    float64(status.Length),
		Playing:     playing,
		Fullscreen:  bool(status.Fullscreen),
	}
	var events []Event
	if !v.announced && status.Length > 0 {
		v.announced = true
		events = append(events, withType(ev, EventMetadataLoaded))
	}
	if bool(status.Fullscreen) != v.fullscreen {
		v.fullscreen = bool(status.Fullscreen)
		events = append(events, withType(ev, EventFullscreenChange))
	}
	if src != "" {
		events = append(events, withType(ev, EventTimeUpdate))
	}
	if v.wasPlaying && status.State == "stopped" {
		events = append(events, withType(ev, EventEnded))
	}
	v.wasPlaying = playing
	v.mu.Unlock()

	for _, e := range events {
		v.emit(e)
	}
}

func (v *VLC) source() (string, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.src, v.loads
}

func statusSeconds(status vlcStatus) float64 {
	if status.Length > 0 && status.Position > 0 {
		return status.Position * float64(status.Length)
	}
	return float64(status.Time)
}

func withType(ev Event, t EventType) Event {
	ev.Type = t
	return ev
}

func (v *VLC) status() (vlcStatus, error) {
	payload, err := v.request(nil)
	if err != nil {
		return vlcStatus{}, err
	}
	var status vlcStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return vlcStatus{}, fmt.Errorf("vlc status: %w", err)
	}
	return status, nil
}

func (v *VLC) request(values url.Values) ([]byte, error) {
	endpoint := v.baseURL + "/requests/status.json"
	if len(values) > 0 {
		endpoint = endpoint + "?" + values.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if v.username != "" || v.password != "" {
		req.SetBasicAuth(v.username, v.password)
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("vlc error: %s", msg)
	}
	return body, nil
}
