package channel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikey-austin/vigil/pkg/vigil"
)

type recorder struct {
	mu   sync.Mutex
	envs []vigil.Envelope
}

func (r *recorder) handle(env vigil.Envelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []vigil.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vigil.Envelope, len(r.envs))
	copy(out, r.envs)
	return out
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

func TestPipeDeliversInOrder(t *testing.T) {
	controller, console := NewPipe(nil, "s1", "ctl", "con")
	defer controller.Close()
	defer console.Close()

	rec := &recorder{}
	controller.OnReceive(rec.handle)

	intents := []vigil.Intent{
		{Type: vigil.IntentChangeVideo, VideoID: "2"},
		{Type: vigil.IntentPlay},
		{Type: vigil.IntentSeekTo, Time: 12.5},
	}
	for _, intent := range intents {
		if err := console.Send(vigil.NewIntent(intent)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == len(intents) })
	for i, env := range rec.snapshot() {
		if env.Type != string(intents[i].Type) {
			t.Fatalf("position %d: expected %s, got %s", i, intents[i].Type, env.Type)
		}
		if env.Session != "s1" || env.From != "con" {
			t.Fatalf("expected stamped identity, got %q/%q", env.Session, env.From)
		}
	}
}

func TestPipeDropsSendToClosedPeer(t *testing.T) {
	controller, console := NewPipe(nil, "s1", "ctl", "con")
	defer controller.Close()

	console.Close()
	if controller.PeerOpen() {
		t.Fatalf("expected peer reported closed")
	}
	err := controller.Send(vigil.NewTimeUpdate(vigil.TimeUpdate{VideoID: "1", CurrentTime: 1, Duration: 10, IsPlaying: true}))
	if err != nil {
		t.Fatalf("expected silent drop, got %v", err)
	}
	if err := console.Send(vigil.NewIntent(vigil.Intent{Type: vigil.IntentPlay})); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from closed end, got %v", err)
	}
}

func TestPipeRejectsForeignMessages(t *testing.T) {
	controller, console := NewPipe(nil, "s1", "ctl", "con")
	defer controller.Close()
	defer console.Close()

	rec := &recorder{}
	controller.OnReceive(rec.handle)

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"kind":"intent","type":"play","session":"other","from":"con"}`),
		[]byte(`{"kind":"intent","type":"play","session":"s1","from":"intruder"}`),
		[]byte(`{"kind":"snapshot","type":"timeUpdate","session":"s1","from":"con","videoId":"1","currentTime":1,"duration":2,"isPlaying":true}`),
		[]byte(`{"kind":"intent","type":"launchMissiles","session":"s1","from":"con"}`),
	}
	for _, data := range bad {
		if controller.box.push(data) {
			t.Fatalf("expected %s to be rejected", data)
		}
	}
	if !controller.box.push([]byte(`{"kind":"intent","type":"play","session":"s1","from":"con"}`)) {
		t.Fatalf("expected valid message accepted")
	}
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if controller.Dropped() != int64(len(bad)) {
		t.Fatalf("expected %d dropped, got %d", len(bad), controller.Dropped())
	}
}

func TestSendRejectsInvalidEnvelope(t *testing.T) {
	controller, console := NewPipe(nil, "s1", "ctl", "con")
	defer controller.Close()
	defer console.Close()

	err := console.Send(vigil.Envelope{Kind: vigil.KindIntent, Type: string(vigil.IntentChangeVideo)})
	if !errors.Is(err, vigil.ErrInvalidEnvelope) {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
}
