package mqttserver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClientOptionsRegistersRetainedWill(t *testing.T) {
	opts, err := ClientOptions(Options{
		BrokerURL:   "tcp://127.0.0.1:1883",
		ClientID:    "vigild-test",
		WillTopic:   "vigil/v1/session/s1/presence/controller",
		WillPayload: []byte(`{"state":"closed"}`),
	})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Fatalf("expected retained qos1 will, got enabled=%v retained=%v qos=%d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "vigil/v1/session/s1/presence/controller" {
		t.Fatalf("unexpected will topic %q", opts.WillTopic)
	}
}

func TestClientOptionsWithoutWill(t *testing.T) {
	opts, err := ClientOptions(Options{BrokerURL: "tcp://127.0.0.1:1883", ClientID: "c"})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.WillEnabled {
		t.Fatalf("no will expected")
	}
}

func TestTLSConfig(t *testing.T) {
	cfg, err := TLSConfig("", "", "")
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v %v", cfg, err)
	}
	if _, err := TLSConfig("", "cert.pem", ""); err == nil {
		t.Fatalf("expected error for cert without key")
	}
	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not a pem"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := TLSConfig(bad, "", ""); err == nil {
		t.Fatalf("expected CA parse error")
	}
}
