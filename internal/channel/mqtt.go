package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/mikey-austin/vigil/internal/adapters/clock"
	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// DefaultProbeWindow is how long Start waits for a retained presence record
// of its own role before assuming no other peer holds the role.
const DefaultProbeWindow = 250 * time.Millisecond

// MQTTConfig configures an MQTT endpoint.
type MQTTConfig struct {
	TopicBase   string
	Session     string
	Role        vigil.Role
	NodeID      string
	Name        string
	Videos      []vigil.VideoDescriptor
	ProbeWindow time.Duration
	InboxSize   int
}

// MQTT is a channel endpoint over an MQTT broker. Liveness of the remote peer
// comes from its retained presence record, which the broker rewrites to
// closed through the peer's last will if it disappears without closing.
type MQTT struct {
	log    *zap.Logger
	client mqttClient
	config MQTTConfig
	box    *inbox
	clock  clock.Real

	mu         sync.Mutex
	peer       vigil.Presence
	peerChange chan struct{}
	onPeer     func(vigil.Presence)
	holder     vigil.Presence
	seenHolder chan struct{}
	holderOnce sync.Once
	started    bool
	reused     bool
	closed     bool
}

// NewMQTT creates an endpoint. Call Start before sending.
func NewMQTT(log *zap.Logger, client mqttClient, cfg MQTTConfig) (*MQTT, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		return nil, errors.New("mqtt client required")
	}
	if strings.TrimSpace(cfg.Session) == "" {
		return nil, errors.New("session required")
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if cfg.Role != vigil.RoleController && cfg.Role != vigil.RoleConsole {
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}
	if cfg.TopicBase == "" {
		cfg.TopicBase = vigil.BaseTopic
	}
	if cfg.ProbeWindow == 0 {
		cfg.ProbeWindow = DefaultProbeWindow
	}

	e := &MQTT{
		log:        log,
		client:     client,
		config:     cfg,
		peerChange: make(chan struct{}),
		seenHolder: make(chan struct{}),
	}
	e.box = newInbox(log, Guard{
		Session: cfg.Session,
		Accept:  Accepts(cfg.Role),
		Peer:    e.peerNodeID,
	}, cfg.InboxSize)
	return e, nil
}

// WillPresence returns the topic and payload a connection should register as
// its last will so the broker marks the peer closed on an unclean exit.
func WillPresence(topicBase, session string, role vigil.Role, nodeID string) (string, []byte) {
	if topicBase == "" {
		topicBase = vigil.BaseTopic
	}
	payload, _ := json.Marshal(vigil.Presence{NodeID: nodeID, Role: role, State: vigil.PresenceClosed})
	return vigil.TopicPresence(topicBase, session, role), payload
}

// Start subscribes to the session topics and announces this peer. It fails
// with ErrBusy when a different peer already holds this role.
func (e *MQTT) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	base, session := e.config.TopicBase, e.config.Session
	if err := e.client.Subscribe(vigil.TopicPresence(base, session, e.peerRole()), 1, e.handlePeerPresence); err != nil {
		return fmt.Errorf("subscribe peer presence: %w", err)
	}
	if err := e.client.Subscribe(vigil.TopicPresence(base, session, e.config.Role), 1, e.handleHolderPresence); err != nil {
		return fmt.Errorf("subscribe own presence: %w", err)
	}

	timer := time.NewTimer(e.config.ProbeWindow)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		e.unsubscribeAll()
		return ctx.Err()
	case <-e.seenHolder:
	case <-timer.C:
	}

	e.mu.Lock()
	holder := e.holder
	e.mu.Unlock()
	if holder.Open() {
		if holder.NodeID != e.config.NodeID {
			e.unsubscribeAll()
			name := holder.Name
			if name == "" {
				name = holder.NodeID
			}
			return fmt.Errorf("%w: %s %s", ErrBusy, e.config.Role, name)
		}
		e.mu.Lock()
		e.reused = true
		e.mu.Unlock()
	}

	if err := e.client.Subscribe(e.inboundTopic(), 0, e.handleInbound); err != nil {
		e.unsubscribeAll()
		return fmt.Errorf("subscribe %s: %w", e.inboundTopic(), err)
	}
	if !e.Reused() {
		if err := e.publishPresence(vigil.PresenceOpen); err != nil {
			e.unsubscribeAll()
			return err
		}
	}
	e.log.Info("channel started",
		zap.String("session", session),
		zap.String("role", string(e.config.Role)),
		zap.String("node_id", e.config.NodeID),
		zap.Bool("reused", e.Reused()),
	)
	return nil
}

// Reused reports whether this endpoint joined a presence already held under
// its own node id. A reused endpoint leaves that presence in place on Close.
func (e *MQTT) Reused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reused
}

// Send publishes env on the outbound topic. It is a no-op when the remote
// peer's presence is not open.
func (e *MQTT) Send(env vigil.Envelope) error {
	e.mu.Lock()
	closed := e.closed
	peerOpen := e.peer.Open()
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !peerOpen {
		e.log.Debug("peer not live, dropping message", zap.String("type", env.Type))
		return nil
	}
	payload, err := stamp(env, e.config.Session, e.config.NodeID)
	if err != nil {
		return err
	}
	return e.client.Publish(e.outboundTopic(), 0, false, payload)
}

// OnReceive installs the inbound handler.
func (e *MQTT) OnReceive(h Handler) {
	e.box.setHandler(h)
}

// OnPeerChange registers a callback for remote presence changes.
func (e *MQTT) OnPeerChange(f func(vigil.Presence)) {
	e.mu.Lock()
	e.onPeer = f
	e.mu.Unlock()
}

// PeerOpen reports whether the remote peer's presence is open.
func (e *MQTT) PeerOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer.Open()
}

// Peer returns the last presence record seen for the remote peer.
func (e *MQTT) Peer() (vigil.Presence, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer, e.peer.Open()
}

// WaitPeer blocks until the remote peer is live or ctx ends.
func (e *MQTT) WaitPeer(ctx context.Context) (vigil.Presence, error) {
	for {
		e.mu.Lock()
		peer := e.peer
		changed := e.peerChange
		e.mu.Unlock()
		if peer.Open() {
			return peer, nil
		}
		select {
		case <-ctx.Done():
			return vigil.Presence{}, ctx.Err()
		case <-changed:
		}
	}
}

// Close announces this peer as closed and releases its subscriptions.
func (e *MQTT) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	reused := e.reused
	e.mu.Unlock()

	e.box.close()
	if !started {
		return nil
	}
	e.unsubscribeAll()
	if reused {
		return nil
	}
	return e.publishPresence(vigil.PresenceClosed)
}

// Dropped returns how many inbound messages were discarded.
func (e *MQTT) Dropped() int64 {
	return e.box.dropped.Load()
}

func (e *MQTT) handleInbound(_ paho.Client, msg paho.Message) {
	e.box.push(msg.Payload())
}

func (e *MQTT) handlePeerPresence(_ paho.Client, msg paho.Message) {
	presence, ok := e.parsePresence(msg.Payload())
	if !ok || presence.Role != e.peerRole() {
		return
	}

	e.mu.Lock()
	current := e.peer
	if e.config.Role == vigil.RoleController && current.Open() && presence.NodeID != current.NodeID {
		// At most one console drives a controller; a second one is ignored
		// until the live one goes away.
		e.mu.Unlock()
		e.log.Warn("ignoring second console", zap.String("node_id", presence.NodeID), zap.String("live", current.NodeID))
		return
	}
	if !presence.Open() && current.NodeID != "" && presence.NodeID != current.NodeID {
		e.mu.Unlock()
		return
	}
	e.peer = presence
	close(e.peerChange)
	e.peerChange = make(chan struct{})
	onPeer := e.onPeer
	e.mu.Unlock()

	e.log.Debug("peer presence", zap.String("node_id", presence.NodeID), zap.String("state", presence.State))
	if onPeer != nil {
		onPeer(presence)
	}
}

func (e *MQTT) handleHolderPresence(_ paho.Client, msg paho.Message) {
	presence, ok := e.parsePresence(msg.Payload())
	if !ok {
		return
	}
	e.mu.Lock()
	e.holder = presence
	e.mu.Unlock()
	e.holderOnce.Do(func() { close(e.seenHolder) })
}

func (e *MQTT) parsePresence(payload []byte) (vigil.Presence, bool) {
	if len(payload) == 0 {
		return vigil.Presence{}, false
	}
	var presence vigil.Presence
	if err := json.Unmarshal(payload, &presence); err != nil {
		e.log.Debug("bad presence payload", zap.Error(err))
		return vigil.Presence{}, false
	}
	return presence, true
}

func (e *MQTT) publishPresence(state string) error {
	presence := vigil.Presence{
		NodeID: e.config.NodeID,
		Role:   e.config.Role,
		Name:   e.config.Name,
		State:  state,
		TS:     e.clock.NowUnix(),
	}
	if state == vigil.PresenceOpen {
		presence.Videos = e.config.Videos
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	topic := vigil.TopicPresence(e.config.TopicBase, e.config.Session, e.config.Role)
	if err := e.client.Publish(topic, 1, true, payload); err != nil {
		return fmt.Errorf("publish presence: %w", err)
	}
	return nil
}

func (e *MQTT) unsubscribeAll() {
	base, session := e.config.TopicBase, e.config.Session
	for _, topic := range []string{
		e.inboundTopic(),
		vigil.TopicPresence(base, session, e.peerRole()),
		vigil.TopicPresence(base, session, e.config.Role),
	} {
		if err := e.client.Unsubscribe(topic); err != nil {
			e.log.Debug("unsubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func (e *MQTT) peerNodeID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.peer.Open() {
		return ""
	}
	return e.peer.NodeID
}

func (e *MQTT) peerRole() vigil.Role {
	if e.config.Role == vigil.RoleController {
		return vigil.RoleConsole
	}
	return vigil.RoleController
}

func (e *MQTT) inboundTopic() string {
	if e.config.Role == vigil.RoleController {
		return vigil.TopicIntents(e.config.TopicBase, e.config.Session)
	}
	return vigil.TopicSnapshots(e.config.TopicBase, e.config.Session)
}

func (e *MQTT) outboundTopic() string {
	if e.config.Role == vigil.RoleController {
		return vigil.TopicSnapshots(e.config.TopicBase, e.config.Session)
	}
	return vigil.TopicIntents(e.config.TopicBase, e.config.Session)
}
