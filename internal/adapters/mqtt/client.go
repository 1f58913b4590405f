package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/mikey-austin/vigil/internal/adapters/mqttserver"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

// ErrNoController is returned when no live controller is announced for a
// session.
var ErrNoController = errors.New("no controller for session")

// Options configures the console's broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	Timeout   time.Duration

	WillTopic   string
	WillPayload []byte
}

// Client is the console-side broker connection.
type Client struct {
	client    paho.Client
	topicBase string
	timeout   time.Duration
}

// SessionPresence is a controller announcement found on the broker.
type SessionPresence struct {
	Session  string         `json:"session"`
	Presence vigil.Presence `json:"presence"`
}

// NewClient creates and connects a client.
func NewClient(opts Options) (*Client, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = vigil.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	clientOpts, err := mqttserver.ClientOptions(mqttserver.Options{
		BrokerURL:   opts.BrokerURL,
		ClientID:    opts.ClientID,
		Username:    opts.Username,
		Password:    opts.Password,
		TLSCA:       opts.TLSCA,
		TLSCert:     opts.TLSCert,
		TLSKey:      opts.TLSKey,
		Timeout:     opts.Timeout,
		WillTopic:   opts.WillTopic,
		WillPayload: opts.WillPayload,
	})
	if err != nil {
		return nil, err
	}
	c := &Client{topicBase: opts.TopicBase, timeout: opts.Timeout}
	c.client = paho.NewClient(clientOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// Publish publishes a message.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Subscribe subscribes to a topic.
func (c *Client) Subscribe(topic string, qos byte, handler paho.MessageHandler) error {
	token := c.client.Subscribe(topic, qos, handler)
	token.Wait()
	return token.Error()
}

// Unsubscribe unsubscribes from a topic.
func (c *Client) Unsubscribe(topic string) error {
	token := c.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

// Close disconnects cleanly.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

// ControllerPresence waits for the retained controller presence of session.
func (c *Client) ControllerPresence(ctx context.Context, session string) (vigil.Presence, error) {
	found := make(chan vigil.Presence, 1)
	handler := func(_ paho.Client, msg paho.Message) {
		var presence vigil.Presence
		if err := json.Unmarshal(msg.Payload(), &presence); err != nil {
			return
		}
		select {
		case found <- presence:
		default:
		}
	}

	topic := vigil.TopicPresence(c.topicBase, session, vigil.RoleController)
	if err := c.Subscribe(topic, 1, handler); err != nil {
		return vigil.Presence{}, err
	}
	defer c.Unsubscribe(topic)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return vigil.Presence{}, ctx.Err()
	case presence := <-found:
		if !presence.Open() {
			return presence, fmt.Errorf("%w %s: controller closed", ErrNoController, session)
		}
		return presence, nil
	case <-timer.C:
		return vigil.Presence{}, fmt.Errorf("%w %s", ErrNoController, session)
	}
}

// ListSessions collects retained controller presence for every session.
func (c *Client) ListSessions(ctx context.Context) ([]SessionPresence, error) {
	var mu sync.Mutex
	collect := map[string]SessionPresence{}
	prefix := c.topicBase + "/session/"

	handler := func(_ paho.Client, msg paho.Message) {
		var presence vigil.Presence
		if err := json.Unmarshal(msg.Payload(), &presence); err != nil {
			return
		}
		session, ok := sessionFromTopic(prefix, msg.Topic())
		if !ok {
			return
		}
		mu.Lock()
		collect[session] = SessionPresence{Session: session, Presence: presence}
		mu.Unlock()
	}

	topic := prefix + "+/presence/" + string(vigil.RoleController)
	if err := c.Subscribe(topic, 1, handler); err != nil {
		return nil, err
	}
	defer c.Unsubscribe(topic)

	wait := time.NewTimer(250 * time.Millisecond)
	select {
	case <-ctx.Done():
		wait.Stop()
	case <-wait.C:
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]SessionPresence, 0, len(collect))
	for _, sp := range collect {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Session < out[j].Session })
	return out, nil
}

func sessionFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", false
	}
	session, _, ok := strings.Cut(rest, "/")
	if !ok || session == "" {
		return "", false
	}
	return session, true
}
