package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

// HeaderNodeID carries the controller's node id on the upgrade response.
const HeaderNodeID = "X-Vigil-Node"

const (
	defaultWriteTimeout = 5 * time.Second
	defaultOutboxSize   = 16
)

// WebsocketConfig configures a websocket endpoint.
type WebsocketConfig struct {
	Session   string
	Role      vigil.Role
	NodeID    string
	PeerID    string
	InboxSize int
	// OutboxSize bounds the frames waiting for the writer. Sends that find
	// it full are dropped.
	OutboxSize   int
	WriteTimeout time.Duration
}

// Websocket is a channel endpoint over one websocket connection. The peer is
// live until the connection fails; there is no reconnection. Send never
// waits on the network: frames go through a bounded outbox drained by a
// writer goroutine, so a stalled reader loses updates instead of holding up
// the sender.
type Websocket struct {
	log    *zap.Logger
	conn   *websocket.Conn
	config WebsocketConfig
	box    *inbox
	outbox chan []byte

	writeMu    sync.Mutex
	outDropped atomic.Int64
	peerOpen   atomic.Bool
	closed     atomic.Bool
	closing    chan struct{}
	writerDone chan struct{}
	done       chan struct{}
	doneOnce   sync.Once
}

// NewWebsocket wraps an established connection and starts reading from it.
func NewWebsocket(log *zap.Logger, conn *websocket.Conn, cfg WebsocketConfig) (*Websocket, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if conn == nil {
		return nil, errors.New("websocket connection required")
	}
	if strings.TrimSpace(cfg.Session) == "" || strings.TrimSpace(cfg.NodeID) == "" || strings.TrimSpace(cfg.PeerID) == "" {
		return nil, errors.New("session, node_id and peer_id required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	peerID := cfg.PeerID
	w := &Websocket{
		log:    log,
		conn:   conn,
		config: cfg,
		outbox:     make(chan []byte, cfg.OutboxSize),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	w.box = newInbox(log, Guard{
		Session: cfg.Session,
		Accept:  Accepts(cfg.Role),
		Peer: func() string {
			if !w.peerOpen.Load() {
				return ""
			}
			return peerID
		},
	}, cfg.InboxSize)
	w.peerOpen.Store(true)
	go w.readLoop()
	go w.writeLoop()
	return w, nil
}

// DialWebsocket connects a console to a gateway. The controller's node id is
// taken from the upgrade response when cfg.PeerID is empty.
func DialWebsocket(ctx context.Context, log *zap.Logger, url string, header http.Header, cfg WebsocketConfig) (*Websocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", ErrBusy, resp.Status)
		}
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if cfg.PeerID == "" && resp != nil {
		cfg.PeerID = resp.Header.Get(HeaderNodeID)
	}
	w, err := NewWebsocket(log, conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return w, nil
}

// Send queues env as a text frame. A full outbox drops the message; a failed
// write marks the peer closed.
func (w *Websocket) Send(env vigil.Envelope) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if !w.peerOpen.Load() {
		w.log.Debug("peer gone, dropping message", zap.String("type", env.Type))
		return nil
	}
	payload, err := stamp(env, w.config.Session, w.config.NodeID)
	if err != nil {
		return err
	}

	select {
	case w.outbox <- payload:
	default:
		w.outDropped.Add(1)
		w.log.Debug("outbox full, dropping message", zap.String("type", env.Type))
	}
	return nil
}

// OnReceive installs the inbound handler.
func (w *Websocket) OnReceive(h Handler) {
	w.box.setHandler(h)
}

// PeerOpen reports whether the connection is still up.
func (w *Websocket) PeerOpen() bool {
	return w.peerOpen.Load()
}

// Done is closed once the connection has failed or been closed.
func (w *Websocket) Done() <-chan struct{} {
	return w.done
}

// Close flushes queued frames for up to a second, sends a close frame and
// tears the connection down.
func (w *Websocket) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	close(w.closing)
	select {
	case <-w.writerDone:
	case <-time.After(time.Second):
	}
	// WriteControl may run alongside a blocked writer.
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := w.conn.Close()
	w.peerGone()
	w.box.close()
	return err
}

// Dropped returns how many inbound messages were discarded.
func (w *Websocket) Dropped() int64 {
	return w.box.dropped.Load()
}

func (w *Websocket) readLoop() {
	defer w.peerGone()
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			if !w.closed.Load() {
				w.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		w.box.push(data)
	}
}

func (w *Websocket) writeLoop() {
	defer close(w.writerDone)
	for {
		select {
		case <-w.done:
			return
		case <-w.closing:
			w.flush()
			return
		case payload := <-w.outbox:
			if !w.write(payload) {
				w.peerGone()
				return
			}
		}
	}
}

func (w *Websocket) flush() {
	for {
		select {
		case payload := <-w.outbox:
			if !w.write(payload) {
				return
			}
		default:
			return
		}
	}
}

func (w *Websocket) write(payload []byte) bool {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		w.log.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

func (w *Websocket) peerGone() {
	w.peerOpen.Store(false)
	w.doneOnce.Do(func() { close(w.done) })
}
