package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/modules/console"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

func TestNewPicksPlainForBuffers(t *testing.T) {
	var buf bytes.Buffer
	if _, ok := New(false, &buf).(PlainPrinter); !ok {
		t.Fatalf("expected plain printer for non-terminal writer")
	}
	if _, ok := New(true, &buf).(JSONPrinter); !ok {
		t.Fatalf("expected json printer")
	}
}

func TestPlainVideos(t *testing.T) {
	var buf bytes.Buffer
	err := PlainPrinter{Writer: &buf}.Print(core.VideosResult{Videos: []vigil.VideoDescriptor{
		{ID: "1", Title: "Opening", Src: "https://media.example.org/1.mp4"},
	}})
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "Opening") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestJSONState(t *testing.T) {
	var buf bytes.Buffer
	st := console.MirroredState{CurrentVideoID: "2", CurrentTime: 12, Duration: 90, IsPlaying: true}
	if err := (JSONPrinter{Writer: &buf}).Print(core.StateResult{Session: "s1", State: st}); err != nil {
		t.Fatalf("print: %v", err)
	}
	var decoded struct {
		Session string `json:"session"`
		State   struct {
			CurrentVideoID string `json:"currentVideoId"`
			IsPlaying      bool   `json:"isPlaying"`
		} `json:"state"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Session != "s1" || decoded.State.CurrentVideoID != "2" || !decoded.State.IsPlaying {
		t.Fatalf("unexpected json %s", buf.String())
	}
}

func TestStateLine(t *testing.T) {
	st := console.MirroredState{CurrentVideoID: "2", Title: "Tribute", CurrentTime: 75, Duration: 300, IsPlaying: true}
	line := StateLine(st)
	for _, want := range []string{"[playing]", "2 Tribute", "1:15 / 5:00 (25%)"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if got := StateLine(console.MirroredState{}); got != "[waiting]" {
		t.Fatalf("unexpected empty state line %q", got)
	}
}

func TestProgressBar(t *testing.T) {
	if got := progressBar(50, 100, 10); got != "[=====-----]" {
		t.Fatalf("unexpected bar %q", got)
	}
	if got := progressBar(500, 100, 4); got != "[====]" {
		t.Fatalf("expected full bar, got %q", got)
	}
	if got := progressBar(5, 0, 4); got != "[----]" {
		t.Fatalf("expected empty bar, got %q", got)
	}
}
