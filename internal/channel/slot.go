package channel

import (
	"sync"

	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

// Slot is a controller-side Channel whose console end is attached later. It
// holds at most one live console; sends with no live console are dropped.
type Slot struct {
	log     *zap.Logger
	mu      sync.Mutex
	current Channel
	handler Handler
	closed  bool
}

// NewSlot creates an empty slot.
func NewSlot(log *zap.Logger) *Slot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Slot{log: log}
}

// Attach binds ch as the live console. It fails with ErrBusy while another
// console is still live; a dead previous console is closed and replaced.
func (s *Slot) Attach(ch Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.current != nil {
		if s.current.PeerOpen() {
			return ErrBusy
		}
		_ = s.current.Close()
	}
	s.current = ch
	ch.OnReceive(s.dispatch)
	return nil
}

// Detach closes ch if it is the bound console.
func (s *Slot) Detach(ch Channel) {
	s.mu.Lock()
	if s.current != ch {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.mu.Unlock()
	_ = ch.Close()
}

// Send forwards env to the live console, if any.
func (s *Slot) Send(env vigil.Envelope) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	current := s.current
	s.mu.Unlock()

	if current == nil || !current.PeerOpen() {
		s.log.Debug("no live console, dropping message", zap.String("type", env.Type))
		return nil
	}
	return current.Send(env)
}

// OnReceive installs the handler for whichever console is attached.
func (s *Slot) OnReceive(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// PeerOpen reports whether a live console is attached.
func (s *Slot) PeerOpen() bool {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	return current != nil && current.PeerOpen()
}

// Close closes the slot and any attached console.
func (s *Slot) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	current := s.current
	s.current = nil
	s.mu.Unlock()
	if current != nil {
		return current.Close()
	}
	return nil
}

func (s *Slot) dispatch(env vigil.Envelope) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h(env)
	}
}
