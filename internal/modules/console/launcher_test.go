package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mikey-austin/vigil/internal/channel"
)

func TestLauncherReusesOpenConsole(t *testing.T) {
	calls := 0
	l := NewLauncher(func(ctx context.Context) (*Peer, error) {
		calls++
		_, consoleEnd := channel.NewPipe(nil, "s1", "ctl", fmt.Sprintf("con-%d", calls))
		return NewPeer(nil, consoleEnd, Options{}), nil
	})
	defer l.Close()

	first, reused, err := l.Open(context.Background())
	if err != nil || reused {
		t.Fatalf("first open: reused=%v err=%v", reused, err)
	}
	second, reused, err := l.Open(context.Background())
	if err != nil || !reused || second != first {
		t.Fatalf("expected the open console back, reused=%v err=%v", reused, err)
	}
	if calls != 1 {
		t.Fatalf("expected one open, got %d", calls)
	}

	first.Close()
	if l.Live() != nil {
		t.Fatalf("closed console must not be live")
	}
	third, reused, err := l.Open(context.Background())
	if err != nil || reused || third == first {
		t.Fatalf("expected a fresh console, reused=%v err=%v", reused, err)
	}
	if calls != 2 {
		t.Fatalf("expected two opens, got %d", calls)
	}
}

func TestLauncherBusyNotice(t *testing.T) {
	l := NewLauncher(func(ctx context.Context) (*Peer, error) {
		return nil, fmt.Errorf("start console: %w", channel.ErrBusy)
	})

	_, _, err := l.Open(context.Background())
	if !errors.Is(err, ErrConsoleUnavailable) {
		t.Fatalf("expected ErrConsoleUnavailable, got %v", err)
	}
	if !errors.Is(err, channel.ErrBusy) {
		t.Fatalf("expected cause preserved, got %v", err)
	}
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError")
	}
	if !strings.Contains(unavailable.Notice, "already open") {
		t.Fatalf("unexpected notice %q", unavailable.Notice)
	}
	if l.Live() != nil {
		t.Fatalf("no console should be live")
	}
}
