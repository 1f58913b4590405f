package channel

import (
	"sync/atomic"

	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

// Memory is one end of an in-process pipe.
type Memory struct {
	log     *zap.Logger
	session string
	nodeID  string
	role    vigil.Role
	peer    *Memory
	box     *inbox
	closed  atomic.Bool
}

// NewPipe connects a controller end and a console end in process.
func NewPipe(log *zap.Logger, session, controllerID, consoleID string) (*Memory, *Memory) {
	if log == nil {
		log = zap.NewNop()
	}
	controller := &Memory{log: log, session: session, nodeID: controllerID, role: vigil.RoleController}
	console := &Memory{log: log, session: session, nodeID: consoleID, role: vigil.RoleConsole}
	controller.peer = console
	console.peer = controller

	controller.box = newInbox(log.With(zap.String("end", string(vigil.RoleController))), Guard{
		Session: session,
		Accept:  Accepts(vigil.RoleController),
		Peer:    func() string { return consoleID },
	}, DefaultInboxSize)
	console.box = newInbox(log.With(zap.String("end", string(vigil.RoleConsole))), Guard{
		Session: session,
		Accept:  Accepts(vigil.RoleConsole),
		Peer:    func() string { return controllerID },
	}, DefaultInboxSize)
	return controller, console
}

// NodeID returns this end's identity.
func (m *Memory) NodeID() string {
	return m.nodeID
}

// Send delivers env to the other end.
func (m *Memory) Send(env vigil.Envelope) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.peer.closed.Load() {
		m.log.Debug("peer closed, dropping message", zap.String("type", env.Type))
		return nil
	}
	payload, err := stamp(env, m.session, m.nodeID)
	if err != nil {
		return err
	}
	m.peer.box.push(payload)
	return nil
}

// OnReceive installs the inbound handler.
func (m *Memory) OnReceive(h Handler) {
	m.box.setHandler(h)
}

// PeerOpen reports whether the other end is still open.
func (m *Memory) PeerOpen() bool {
	return !m.peer.closed.Load()
}

// Close closes this end only.
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.box.close()
	return nil
}

// Dropped returns how many inbound messages this end discarded.
func (m *Memory) Dropped() int64 {
	return m.box.dropped.Load()
}

