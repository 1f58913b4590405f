package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/vigil/internal/adapters/config"
	"github.com/mikey-austin/vigil/internal/channel"
	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/modules/console"
	"github.com/mikey-austin/vigil/internal/modules/gateway"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

func TestParseSeek(t *testing.T) {
	tests := []struct {
		arg      string
		seconds  float64
		fraction float64
		percent  bool
	}{
		{"90", 90, 0, false},
		{"12.5", 12.5, 0, false},
		{"1:30", 90, 0, false},
		{"1:02:03", 3723, 0, false},
		{"25%", 0, 0.25, true},
		{"100%", 0, 1, true},
	}
	for _, test := range tests {
		got, err := parseSeek(test.arg)
		if err != nil {
			t.Fatalf("%s: %v", test.arg, err)
		}
		if got.seconds != test.seconds || got.fraction != test.fraction || got.percent != test.percent {
			t.Fatalf("%s: unexpected %+v", test.arg, got)
		}
	}
}

func TestParseSeekRejects(t *testing.T) {
	for _, arg := range []string{"", "-3", "abc", "1:75", "101%", "x%", "1:2:3:4", "NaN"} {
		if _, err := parseSeek(arg); err == nil {
			t.Fatalf("expected error for %q", arg)
		}
	}
}

func TestMergeConfigPrefersFlags(t *testing.T) {
	file := config.Config{
		Broker:    "tcp://file:1883",
		Identity:  "chapel",
		TopicBase: "custom/v1",
		Session:   "s-file",
		TLS:       config.TLS{CA: "/etc/ca.pem"},
	}
	got := mergeConfig(core.Config{Broker: "tcp://flag:1883", TopicBase: vigil.BaseTopic, Session: "s-flag"}, file)
	if got.Broker != "tcp://flag:1883" || got.Session != "s-flag" {
		t.Fatalf("flags must win: %+v", got)
	}
	if got.Identity != "chapel" || got.TopicBase != "custom/v1" || got.TLSCA != "/etc/ca.pem" {
		t.Fatalf("file values must fill gaps: %+v", got)
	}

	got = mergeConfig(core.Config{TopicBase: vigil.BaseTopic}, config.Config{})
	if got.TopicBase != vigil.BaseTopic || got.Identity == "" {
		t.Fatalf("unexpected defaults %+v", got)
	}
}

func TestConsoleNodeIDStable(t *testing.T) {
	if consoleNodeID("ops@chapel") != consoleNodeID(" ops@chapel ") {
		t.Fatalf("node id must ignore surrounding space")
	}
	if consoleNodeID("a") == consoleNodeID("b") {
		t.Fatalf("node id must differ per identity")
	}
}

func TestWaitStateSeesLaterUpdate(t *testing.T) {
	ctlEnd, conEnd := channel.NewPipe(nil, "s1", "ctl", "con")
	defer ctlEnd.Close()
	peer := console.NewPeer(nil, conEnd, console.Options{})
	defer peer.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = ctlEnd.Send(vigil.NewTimeUpdate(vigil.TimeUpdate{VideoID: "1", CurrentTime: 4, Duration: 80}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := waitState(ctx, peer, func(st console.MirroredState) bool { return st.Duration > 0 })
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if st.Duration != 80 || st.CurrentVideoID != "1" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestWaitStateTimesOut(t *testing.T) {
	ctlEnd, conEnd := channel.NewPipe(nil, "s1", "ctl", "con")
	defer ctlEnd.Close()
	peer := console.NewPeer(nil, conEnd, console.Options{})
	defer peer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := waitState(ctx, peer, func(st console.MirroredState) bool { return st.Src != "" }); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestMergeConfigGateway(t *testing.T) {
	file := config.Config{Broker: "tcp://file:1883", Gateway: "http://chapel:8090"}
	got := mergeConfig(core.Config{Gateway: "http://flag:8090", TopicBase: vigil.BaseTopic}, file)
	if got.Gateway != "http://flag:8090" || got.Broker != "" {
		t.Fatalf("gateway flag must win over file broker: %+v", got)
	}
	got = mergeConfig(core.Config{TopicBase: vigil.BaseTopic}, config.Config{Gateway: "http://chapel:8090"})
	if got.Gateway != "http://chapel:8090" {
		t.Fatalf("expected file gateway, got %+v", got)
	}
	got = mergeConfig(core.Config{TopicBase: vigil.BaseTopic}, file)
	if got.Broker != "tcp://file:1883" || got.Gateway != "" {
		t.Fatalf("expected file broker preferred, got %+v", got)
	}
}

func TestGatewayConsoleURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://chapel:8090", "ws://chapel:8090/ws/console?node=vigil%3Aconsole%3Aops&session=s1"},
		{"https://chapel.example.org/vigil/", "wss://chapel.example.org/vigil/ws/console?node=vigil%3Aconsole%3Aops&session=s1"},
		{"ws://chapel:8090", "ws://chapel:8090/ws/console?node=vigil%3Aconsole%3Aops&session=s1"},
	}
	for _, test := range tests {
		got, err := gatewayConsoleURL(test.base, "s1", consoleNodeID("ops"))
		if err != nil {
			t.Fatalf("%s: %v", test.base, err)
		}
		if got != test.want {
			t.Fatalf("%s: got %s want %s", test.base, got, test.want)
		}
	}
	for _, bad := range []string{"chapel:8090", "ftp://chapel", ""} {
		if _, err := gatewayConsoleURL(bad, "s1", "n"); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

type gatewayCatalog []vigil.VideoDescriptor

func (c gatewayCatalog) Videos() []vigil.VideoDescriptor { return c }

type intentTypes struct {
	mu    sync.Mutex
	types []string
}

func (l *intentTypes) handle(env vigil.Envelope) {
	l.mu.Lock()
	l.types = append(l.types, env.Type)
	l.mu.Unlock()
}

func (l *intentTypes) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types...)
}

func TestDialGatewayDrivesSlot(t *testing.T) {
	slot := channel.NewSlot(nil)
	defer slot.Close()
	videos := gatewayCatalog{{ID: "1", Title: "Opening", Src: "https://media.example.org/1.mp4"}}
	gw, err := gateway.NewModule(nil, slot, videos, gateway.Config{Session: "s1", NodeID: "ctl"})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	intents := &intentTypes{}
	slot.OnReceive(intents.handle)

	a := &app{
		config: core.Config{Gateway: srv.URL, Session: "s1", Identity: "ops"},
		log:    zap.NewNop(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	peer, err := a.dialGateway(ctx)
	if err != nil {
		t.Fatalf("dial gateway: %v", err)
	}
	if got := peer.Videos(); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected catalog from gateway, got %+v", got)
	}
	if err := peer.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	peer.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(intents.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := intents.snapshot(); len(got) != 1 || got[0] != string(vigil.IntentPlay) {
		t.Fatalf("expected play intent through the slot, got %v", got)
	}

	controller, _, err := a.gatewayVideos(ctx)
	if err != nil || controller != "ctl" {
		t.Fatalf("expected controller id from gateway, got %q %v", controller, err)
	}
}

func TestDialGatewayBusy(t *testing.T) {
	slot := channel.NewSlot(nil)
	defer slot.Close()
	holder, holderConsole := channel.NewPipe(nil, "s1", "ctl", "other")
	defer holderConsole.Close()
	if err := slot.Attach(holder); err != nil {
		t.Fatalf("attach: %v", err)
	}
	gw, err := gateway.NewModule(nil, slot, gatewayCatalog{}, gateway.Config{Session: "s1", NodeID: "ctl"})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	a := &app{config: core.Config{Gateway: srv.URL, Session: "s1", Identity: "ops"}, log: zap.NewNop()}
	if _, err := a.dialGateway(context.Background()); !errors.Is(err, channel.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}
