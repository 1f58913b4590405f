package embeddedmqtt

import (
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewServerAllowAnonymous(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if server == nil {
		t.Fatalf("expected server")
	}
}

func TestNewServerRequiresAuthConfig(t *testing.T) {
	if _, err := newServer(zap.NewNop(), Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWildcardPresenceSubscription(t *testing.T) {
	server, err := newServer(zap.NewNop(), Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	received := make(chan packets.Packet, 1)
	handler := func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}
	if err := server.Subscribe("vigil/v1/session/+/presence/#", 1, handler); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	topic := "vigil/v1/session/s1/presence/controller"
	if err := server.Publish(topic, []byte(`{"nodeId":"ctl","state":"open"}`), true, 1); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case pk := <-received:
		if pk.TopicName != topic {
			t.Fatalf("unexpected topic %s", pk.TopicName)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for presence")
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		listen string
		tls    bool
		want   string
	}{
		{"127.0.0.1:1883", false, "mqtt://127.0.0.1:1883"},
		{"127.0.0.1:8883", true, "mqtts://127.0.0.1:8883"},
		{":1883", false, "mqtt://127.0.0.1:1883"},
		{"0.0.0.0:1883", false, "mqtt://127.0.0.1:1883"},
	}
	for _, test := range tests {
		if got := BrokerURL(test.listen, test.tls); got != test.want {
			t.Fatalf("%s: expected %s got %s", test.listen, test.want, got)
		}
	}
}

func TestSlogBridgeDemotesConnectionClose(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := newSlogLogger(zap.New(core))

	log.Warn("client read error", "error", "read connection: EOF")
	log.Error("listener failed", "error", "bind: address in use")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected connection close at debug, got %s", entries[0].Level)
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[1].Message != "listener failed" {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
}
