// Package controller runs the playback controller: the single owner of the
// media element and of the session's playback state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/mikey-austin/vigil/internal/adapters/clock"
	"github.com/mikey-austin/vigil/internal/catalog"
	"github.com/mikey-austin/vigil/internal/channel"
	"github.com/mikey-austin/vigil/internal/media"
	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// Transports a controller can serve its console over.
const (
	TransportMQTT      = "mqtt"
	TransportWebsocket = "websocket"
)

// Config configures the controller module.
type Config struct {
	NodeID       string
	TopicBase    string
	Session      string
	Name         string
	Transport    string
	CatalogPath  string
	CatalogDir   string
	CatalogExts  []string
	FeedURL      string
	Videos       []vigil.VideoDescriptor
	InitialVideo string
	Media        media.Options
	ProbeWindow  time.Duration
}

// Module wires a Controller to its media element and console channel.
type Module struct {
	log        *zap.Logger
	config     Config
	element    media.Element
	catalog    *catalog.Catalog
	channel    channel.Channel
	mqtt       *channel.MQTT
	slot       *channel.Slot
	controller *Controller
}

// NewModule creates a controller module. client may be nil for the
// websocket transport.
func NewModule(log *zap.Logger, client mqttClient, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.Session) == "" {
		return nil, errors.New("session required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = vigil.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Vigil Controller"
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportMQTT
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Media.VLC.Logger == nil {
		cfg.Media.VLC.Logger = log
	}
	element, err := media.New(cfg.Media)
	if err != nil {
		return nil, err
	}

	m := &Module{log: log, config: cfg, element: element, catalog: cat}
	switch cfg.Transport {
	case TransportMQTT:
		if client == nil {
			return nil, errors.New("mqtt transport requires a broker connection")
		}
		ep, err := channel.NewMQTT(log, client, channel.MQTTConfig{
			TopicBase:   cfg.TopicBase,
			Session:     cfg.Session,
			Role:        vigil.RoleController,
			NodeID:      cfg.NodeID,
			Name:        cfg.Name,
			Videos:      cat.List(),
			ProbeWindow: cfg.ProbeWindow,
		})
		if err != nil {
			return nil, err
		}
		m.mqtt = ep
		m.channel = ep
	case TransportWebsocket:
		m.slot = channel.NewSlot(log)
		m.channel = m.slot
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	m.controller = NewController(log, element, cat, m.channel, clock.Real{})
	return m, nil
}

func newModuleWith(log *zap.Logger, cfg Config, element media.Element, cat *catalog.Catalog, ch channel.Channel, clk clock.Clock) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{
		log:        log,
		config:     cfg,
		element:    element,
		catalog:    cat,
		channel:    ch,
		controller: NewController(log, element, cat, ch, clk),
	}
}

// Controller exposes the playback controller to the host.
func (m *Module) Controller() *Controller {
	return m.controller
}

// Slot returns the websocket console slot, or nil for other transports.
func (m *Module) Slot() *channel.Slot {
	return m.slot
}

// NodeID returns the controller's identity on the channel.
func (m *Module) NodeID() string {
	return m.config.NodeID
}

// Session returns the session token the controller serves.
func (m *Module) Session() string {
	return m.config.Session
}

// Run loads the initial video, starts the channel and folds media events
// into the controller until ctx ends.
func (m *Module) Run(ctx context.Context) error {
	initial := m.config.InitialVideo
	if initial == "" {
		initial = m.catalog.First().ID
	}
	if err := m.controller.ChangeVideo(initial); err != nil {
		return err
	}

	m.channel.OnReceive(m.controller.HandleEnvelope)
	if m.mqtt != nil {
		if err := m.mqtt.Start(ctx); err != nil {
			return err
		}
	}
	defer m.element.Close()
	defer m.channel.Close()
	defer m.controller.Stop()

	elementDone := make(chan error, 1)
	go func() {
		elementDone <- m.element.Run(ctx)
	}()

	m.log.Info("controller running",
		zap.String("session", m.config.Session),
		zap.String("transport", m.config.Transport),
		zap.Int("videos", m.catalog.Len()),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-elementDone:
			if err != nil {
				return fmt.Errorf("media: %w", err)
			}
			return nil
		case ev := <-m.element.Events():
			m.controller.HandleMediaEvent(ev)
		}
	}
}

func loadCatalog(cfg Config) (*catalog.Catalog, error) {
	switch {
	case len(cfg.Videos) > 0:
		return catalog.New(cfg.Videos)
	case cfg.CatalogPath != "":
		return catalog.LoadFile(cfg.CatalogPath)
	case cfg.CatalogDir != "":
		return catalog.ScanDir(cfg.CatalogDir, cfg.CatalogExts)
	case cfg.FeedURL != "":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return catalog.FetchFeed(ctx, &http.Client{Timeout: 15 * time.Second}, cfg.FeedURL)
	default:
		return nil, errors.New("catalog, catalog_dir or feed required")
	}
}
