// Package channel carries envelopes between the controller and the console.
//
// Every implementation is fire-and-forget and at-most-once. Sends to a peer
// that is known to be closed are dropped without error. Inbound messages are
// validated before any handler sees them: they must decode, belong to the
// endpoint's session, come from the bound peer and be of the kind the
// endpoint's role accepts. Anything else is logged and discarded.
package channel

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

// Handler receives validated envelopes in arrival order.
type Handler func(env vigil.Envelope)

// Channel is one end of a duplex control link.
type Channel interface {
	// Send stamps env with the endpoint's session and identity and hands it
	// to the transport. It returns nil when the peer is gone.
	Send(env vigil.Envelope) error
	// OnReceive installs the inbound handler, replacing any previous one.
	OnReceive(h Handler)
	// PeerOpen reports whether the remote peer is believed to be live.
	PeerOpen() bool
	// Close shuts this end down. Further sends return ErrClosed.
	Close() error
}

var (
	ErrClosed         = errors.New("channel closed")
	ErrForeignSession = errors.New("envelope for another session")
	ErrUnknownSender  = errors.New("envelope from unknown sender")
	ErrUnexpectedKind = errors.New("unexpected envelope kind")
	ErrBusy           = errors.New("another peer is live")
)

// DefaultInboxSize bounds the queue between the transport and the handler.
const DefaultInboxSize = 64

// Accepts returns the envelope kind a role may receive.
func Accepts(role vigil.Role) vigil.Kind {
	if role == vigil.RoleController {
		return vigil.KindIntent
	}
	return vigil.KindSnapshot
}

// Guard validates inbound wire messages for one endpoint.
type Guard struct {
	Session string
	Accept  vigil.Kind
	// Peer returns the node id of the bound peer, or "" when none is live.
	Peer func() string
}

// Check decodes data and verifies session, kind and sender.
func (g Guard) Check(data []byte) (vigil.Envelope, error) {
	env, err := vigil.Decode(data)
	if err != nil {
		return vigil.Envelope{}, err
	}
	if env.Session != g.Session {
		return vigil.Envelope{}, fmt.Errorf("%w: %q", ErrForeignSession, env.Session)
	}
	if env.Kind != g.Accept {
		return vigil.Envelope{}, fmt.Errorf("%w: %q", ErrUnexpectedKind, env.Kind)
	}
	peer := ""
	if g.Peer != nil {
		peer = g.Peer()
	}
	if peer == "" || env.From != peer {
		return vigil.Envelope{}, fmt.Errorf("%w: %q", ErrUnknownSender, env.From)
	}
	return env, nil
}

// stamp fills the identity fields and validates the outbound envelope.
func stamp(env vigil.Envelope, session, from string) ([]byte, error) {
	env.Session = session
	env.From = from
	if err := vigil.ValidateEnvelope(env); err != nil {
		return nil, err
	}
	return vigil.Encode(env)
}

// inbox decouples transport callbacks from the handler. Messages are checked
// on the transport's goroutine, so sender and session checks see peer state as
// of arrival, then queued. A single goroutine drains the queue so the handler
// sees envelopes one at a time in FIFO order.
type inbox struct {
	log     *zap.Logger
	guard   Guard
	queue   chan vigil.Envelope
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	handler Handler
	dropped atomic.Int64
}

func newInbox(log *zap.Logger, guard Guard, size int) *inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	b := &inbox{
		log:   log,
		guard: guard,
		queue: make(chan vigil.Envelope, size),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *inbox) setHandler(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// push validates and enqueues without blocking. Rejected messages and
// messages arriving at a full queue are lost.
func (b *inbox) push(data []byte) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	env, err := b.guard.Check(data)
	if err != nil {
		b.dropped.Add(1)
		b.log.Debug("rejected inbound message", zap.Error(err))
		return false
	}
	select {
	case b.queue <- env:
		return true
	default:
		b.dropped.Add(1)
		b.log.Debug("inbox full, dropping message", zap.String("type", env.Type))
		return false
	}
}

func (b *inbox) close() {
	b.once.Do(func() { close(b.done) })
}

func (b *inbox) run() {
	for {
		select {
		case <-b.done:
			return
		case env := <-b.queue:
			b.mu.RLock()
			h := b.handler
			b.mu.RUnlock()
			if h != nil {
				h(env)
			}
		}
	}
}
