package console

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mikey-austin/vigil/internal/channel"
)

// ErrConsoleUnavailable is returned when a console cannot be opened.
var ErrConsoleUnavailable = errors.New("console unavailable")

// UnavailableError carries the notice to show the operator when a console
// could not be opened.
type UnavailableError struct {
	Notice string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return e.Notice
	}
	return fmt.Sprintf("%s: %v", e.Notice, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrConsoleUnavailable, e.Err}
}

// Opener opens a new console peer.
type Opener func(ctx context.Context) (*Peer, error)

// Launcher opens at most one console at a time. While the launched console
// is open, Open hands it back instead of opening another.
type Launcher struct {
	mu   sync.Mutex
	open Opener
	live *Peer
}

// NewLauncher creates a launcher around open.
func NewLauncher(open Opener) *Launcher {
	return &Launcher{open: open}
}

// Open returns the live console, or opens one. reused reports whether an
// existing console was returned.
func (l *Launcher) Open(ctx context.Context) (peer *Peer, reused bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.live != nil && l.live.Open() {
		return l.live, true, nil
	}
	l.live = nil

	p, err := l.open(ctx)
	if err != nil {
		return nil, false, &UnavailableError{Notice: noticeFor(err), Err: err}
	}
	l.live = p
	return p, false, nil
}

// Live returns the open console, if any.
func (l *Launcher) Live() *Peer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live != nil && !l.live.Open() {
		l.live = nil
	}
	return l.live
}

// Close closes the live console.
func (l *Launcher) Close() error {
	l.mu.Lock()
	p := l.live
	l.live = nil
	l.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, channel.ErrBusy):
		return "another console is already open for this session; close it first"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "gave up waiting for the console to open"
	default:
		return "could not open the console"
	}
}
