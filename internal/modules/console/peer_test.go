package console

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikey-austin/vigil/internal/adapters/clock"
	"github.com/mikey-austin/vigil/internal/channel"
	"github.com/mikey-austin/vigil/internal/media"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

var testVideos = []vigil.VideoDescriptor{
	{ID: "1", Title: "Opening", Src: "https://media.example.org/1.mp4"},
	{ID: "2", Title: "Tribute", Src: "https://media.example.org/2.mp4"},
}

type intentLog struct {
	mu      sync.Mutex
	intents []vigil.Intent
}

func (l *intentLog) handle(env vigil.Envelope) {
	intent, err := env.Intent()
	if err != nil {
		return
	}
	l.mu.Lock()
	l.intents = append(l.intents, intent)
	l.mu.Unlock()
}

func (l *intentLog) all() []vigil.Intent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]vigil.Intent, len(l.intents))
	copy(out, l.intents)
	return out
}

func (l *intentLog) count(t vigil.IntentType) int {
	n := 0
	for _, intent := range l.all() {
		if intent.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	clock      *clock.Manual
	controller *channel.Memory
	received   *intentLog
	preview    *media.Sim
	peer       *Peer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	controllerEnd, consoleEnd := channel.NewPipe(nil, "s1", "ctl", "con")
	received := &intentLog{}
	controllerEnd.OnReceive(received.handle)
	preview := media.NewSim(media.SimOptions{Clock: clk})
	peer := NewPeer(nil, consoleEnd, Options{Clock: clk, Videos: testVideos, Preview: preview})
	t.Cleanup(func() {
		peer.Close()
		controllerEnd.Close()
	})
	return &fixture{clock: clk, controller: controllerEnd, received: received, preview: preview, peer: peer}
}

func (f *fixture) timeUpdate(videoID string, current, duration float64, playing bool) {
	f.peer.HandleEnvelope(vigil.NewTimeUpdate(vigil.TimeUpdate{
		VideoID:     videoID,
		CurrentTime: current,
		Duration:    duration,
		IsPlaying:   playing,
	}))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestIntentsReachControllerInOrder(t *testing.T) {
	f := newFixture(t)
	if err := f.peer.SelectVideo("2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := f.peer.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := f.peer.SeekTo(12); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := f.peer.Hold(); err != nil {
		t.Fatalf("hold: %v", err)
	}

	waitFor(t, func() bool { return len(f.received.all()) == 4 })
	got := f.received.all()
	want := []vigil.IntentType{vigil.IntentChangeVideo, vigil.IntentPlay, vigil.IntentSeekTo, vigil.IntentHold}
	for i, intent := range got {
		if intent.Type != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], intent.Type)
		}
	}
	if got[0].VideoID != "2" || got[2].Time != 12 {
		t.Fatalf("unexpected payloads %+v", got)
	}
}

func TestSelectVideoRejectsUnknownID(t *testing.T) {
	f := newFixture(t)
	if err := f.peer.SelectVideo("9"); !errors.Is(err, ErrUnknownVideo) {
		t.Fatalf("expected ErrUnknownVideo, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(f.received.all()); n != 0 {
		t.Fatalf("expected nothing sent, got %d", n)
	}
}

func TestSeekAtLeavesMirrorUntilConfirmed(t *testing.T) {
	f := newFixture(t)
	f.timeUpdate("1", 5, 60, true)

	target, err := f.peer.SeekAt(150, 300)
	if err != nil {
		t.Fatalf("seek at: %v", err)
	}
	if target != 30 {
		t.Fatalf("expected 30s, got %v", target)
	}
	if got := f.peer.State().CurrentTime; got != 5 {
		t.Fatalf("mirror moved before confirmation: %v", got)
	}
	waitFor(t, func() bool { return f.received.count(vigil.IntentSeekTo) == 1 })

	f.timeUpdate("1", 30, 60, true)
	if got := f.peer.State().CurrentTime; got != 30 {
		t.Fatalf("expected confirmed time 30, got %v", got)
	}
}

func TestSeekAtClampsAndNeedsDuration(t *testing.T) {
	f := newFixture(t)
	if _, err := f.peer.SeekAt(10, 100); !errors.Is(err, ErrUnknownDuration) {
		t.Fatalf("expected ErrUnknownDuration, got %v", err)
	}
	f.timeUpdate("1", 0, 60, false)
	if target, _ := f.peer.SeekAt(500, 100); target != 60 {
		t.Fatalf("expected clamp to duration, got %v", target)
	}
	if target, _ := f.peer.SeekAt(-4, 100); target != 0 {
		t.Fatalf("expected clamp to zero, got %v", target)
	}
}

func TestPendingSelectionMasksStaleUpdates(t *testing.T) {
	f := newFixture(t)
	f.timeUpdate("1", 40, 60, true)
	if err := f.peer.SelectVideo("2"); err != nil {
		t.Fatalf("select: %v", err)
	}

	f.timeUpdate("1", 40.5, 60, true)
	st := f.peer.State()
	if st.Updates != 1 || st.CurrentTime != 40 {
		t.Fatalf("stale update applied: %+v", st)
	}

	f.timeUpdate("2", 0, 90, false)
	st = f.peer.State()
	if st.CurrentVideoID != "2" || st.Highlighted != "2" || st.Duration != 90 {
		t.Fatalf("expected video 2 mirrored, got %+v", st)
	}

	f.timeUpdate("1", 1, 60, false)
	if got := f.peer.State().Highlighted; got != "1" {
		t.Fatalf("controller's later change must win once confirmed, got %q", got)
	}
}

func TestPendingSelectionExpires(t *testing.T) {
	f := newFixture(t)
	if err := f.peer.SelectVideo("2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	f.clock.Advance(PendingSelectionTTL)
	f.timeUpdate("1", 3, 60, true)
	if got := f.peer.State().Highlighted; got != "1" {
		t.Fatalf("expected expired selection to let video 1 through, got %q", got)
	}
}

func TestRequestSnapshotThrottled(t *testing.T) {
	f := newFixture(t)
	if sent, err := f.peer.RequestSnapshot(); !sent || err != nil {
		t.Fatalf("first pull: sent=%v err=%v", sent, err)
	}
	if sent, _ := f.peer.RequestSnapshot(); sent {
		t.Fatalf("second pull inside cooldown must be dropped")
	}
	f.clock.Advance(2 * time.Second)
	if sent, _ := f.peer.RequestSnapshot(); !sent {
		t.Fatalf("pull after cooldown must be sent")
	}
	waitFor(t, func() bool { return f.received.count(vigil.IntentRequestSnapshot) == 2 })
}

func TestPreviewFollowsSnapshots(t *testing.T) {
	f := newFixture(t)
	f.timeUpdate("1", 10, 60, true)

	if err := f.peer.EnablePreview(); err != nil {
		t.Fatalf("enable preview: %v", err)
	}
	if !f.peer.State().PreviewEnabled {
		t.Fatalf("expected preview enabled")
	}
	waitFor(t, func() bool { return f.received.count(vigil.IntentRequestSnapshot) == 1 })

	f.peer.HandleEnvelope(vigil.NewVideoSrcResponse(vigil.VideoSrcResponse{
		Src:         testVideos[0].Src,
		Title:       testVideos[0].Title,
		CurrentTime: 10,
		IsPlaying:   true,
	}))
	if f.preview.Source() != testVideos[0].Src || !f.preview.Playing() {
		t.Fatalf("expected preview playing %s, got %q playing=%v", testVideos[0].Src, f.preview.Source(), f.preview.Playing())
	}
	if got := f.peer.State().Title; got != "Opening" {
		t.Fatalf("expected title mirrored, got %q", got)
	}

	f.timeUpdate("1", 11, 60, false)
	if f.preview.Playing() {
		t.Fatalf("expected preview paused with the controller")
	}

	f.peer.DisablePreview()
	if f.peer.State().PreviewEnabled {
		t.Fatalf("expected preview disabled")
	}
}

func TestPreviewRefreshesOnVideoChange(t *testing.T) {
	f := newFixture(t)
	f.timeUpdate("1", 0, 60, true)
	if err := f.peer.EnablePreview(); err != nil {
		t.Fatalf("enable preview: %v", err)
	}
	f.peer.HandleEnvelope(vigil.NewVideoSrcResponse(vigil.VideoSrcResponse{Src: testVideos[0].Src, IsPlaying: true}))

	f.clock.Advance(2 * time.Second)
	f.timeUpdate("2", 0, 90, false)
	waitFor(t, func() bool { return f.received.count(vigil.IntentRequestSnapshot) == 2 })
}

func TestPreviewWithoutElement(t *testing.T) {
	_, consoleEnd := channel.NewPipe(nil, "s1", "ctl", "con")
	peer := NewPeer(nil, consoleEnd, Options{})
	defer peer.Close()
	if err := peer.EnablePreview(); !errors.Is(err, ErrNoPreview) {
		t.Fatalf("expected ErrNoPreview, got %v", err)
	}
}

func TestClosedConsoleDiscardsMirror(t *testing.T) {
	f := newFixture(t)
	f.timeUpdate("1", 5, 60, true)

	var changes int
	f.peer.OnChange(func(MirroredState) { changes++ })
	if err := f.peer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := f.peer.State(); st.CurrentVideoID != "" || st.Updates != 0 {
		t.Fatalf("expected mirror discarded, got %+v", st)
	}
	if err := f.peer.Play(); !errors.Is(err, channel.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	f.timeUpdate("1", 6, 60, true)
	if changes != 0 {
		t.Fatalf("closed console must ignore snapshots")
	}
	if f.controller.PeerOpen() {
		t.Fatalf("controller should see the console gone")
	}
	if f.peer.Open() {
		t.Fatalf("expected peer closed")
	}
}
