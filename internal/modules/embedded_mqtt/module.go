// Package embeddedmqtt runs an in-process MQTT broker so a single vigild can
// host the controller and its consoles without external infrastructure.
package embeddedmqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mikey-austin/vigil/pkg/vigil"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultListen is the broker address when none is configured.
const DefaultListen = "127.0.0.1:1883"

// Config configures the embedded MQTT broker.
type Config struct {
	Listen         string
	TopicBase      string
	AllowAnonymous bool
	Username       string
	Password       string
	TLSCA          string
	TLSCert        string
	TLSKey         string
}

// TLSEnabled reports whether the listener serves TLS.
func (c Config) TLSEnabled() bool {
	return c.TLSCert != "" || c.TLSKey != "" || c.TLSCA != ""
}

// Module runs an embedded MQTT broker.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
}

// NewModule creates a new embedded broker module.
func NewModule(log *zap.Logger, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.TopicBase == "" {
		cfg.TopicBase = vigil.BaseTopic
	}

	server, err := newServer(log, cfg)
	if err != nil {
		return nil, err
	}
	return &Module{log: log, server: server, config: cfg}, nil
}

// URL returns the broker URL clients should dial.
func (m *Module) URL() string {
	return BrokerURL(m.config.Listen, m.config.TLSEnabled())
}

// Run serves until ctx ends.
func (m *Module) Run(ctx context.Context) error {
	listenerConfig := listeners.Config{ID: "vigil-tcp", Address: m.config.Listen}
	if m.config.TLSEnabled() {
		tlsConfig, err := serverTLSConfig(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
		if err != nil {
			return err
		}
		listenerConfig.TLSConfig = tlsConfig
	}

	if err := m.server.AddListener(listeners.NewTCP(listenerConfig)); err != nil {
		return fmt.Errorf("embedded mqtt listen %s: %w", m.config.Listen, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- m.server.Serve()
	}()
	m.log.Info("embedded mqtt listening", zap.String("url", m.URL()))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
		<-ctx.Done()
	}
	return m.server.Close()
}

func newServer(log *zap.Logger, cfg Config) (*mqtt.Server, error) {
	server := mqtt.New(&mqtt.Options{InlineClient: true, Logger: newSlogLogger(log)})

	switch {
	case cfg.AllowAnonymous:
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
	case cfg.Username != "":
		topics := auth.RString(strings.TrimSuffix(cfg.TopicBase, "/") + "/#")
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true}},
			ACL:  auth.ACLRules{{Username: auth.RString(cfg.Username), Filters: auth.Filters{topics: auth.ReadWrite}}},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("embedded mqtt requires allow_anonymous or username")
	}
	return server, nil
}

// serverTLSConfig loads the listener certificate. A CA bundle turns on
// client certificate verification.
func serverTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, errors.New("embedded mqtt tls needs both tls_cert and tls_key")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA bundle")
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return config, nil
}

// BrokerURL returns the broker URL for a listen address.
func BrokerURL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	host := listen
	if strings.HasPrefix(host, ":") || strings.HasPrefix(host, "0.0.0.0:") {
		host = "127.0.0.1:" + host[strings.LastIndex(host, ":")+1:]
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

func newSlogLogger(logger *zap.Logger) *slog.Logger {
	return slog.New(&zapHandler{logger: logger})
}

// zapHandler forwards the broker's slog records to zap.
type zapHandler struct {
	logger *zap.Logger
	attrs  []slog.Attr
}

func (h *zapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.Core().Enabled(zapLevel(level))
}

func (h *zapHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zap.Field, 0, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		fields = append(fields, attrField(attr))
	}
	closed := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" && isConnectionClose(attr.Value) {
			closed = true
		}
		fields = append(fields, attrField(attr))
		return true
	})
	if closed {
		h.logger.Debug("embedded mqtt connection closed", fields...)
		return nil
	}
	if ce := h.logger.Check(zapLevel(record.Level), record.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (h *zapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	next = append(next, attrs...)
	return &zapHandler{logger: h.logger, attrs: next}
}

func (h *zapHandler) WithGroup(name string) slog.Handler {
	return &zapHandler{logger: h.logger.Named(name), attrs: h.attrs}
}

func isConnectionClose(v slog.Value) bool {
	var msg string
	switch v.Kind() {
	case slog.KindString:
		msg = v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			msg = err.Error()
		}
	}
	return msg == "EOF" || strings.Contains(msg, "read connection: EOF")
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func attrField(attr slog.Attr) zap.Field {
	switch attr.Value.Kind() {
	case slog.KindString:
		return zap.String(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return zap.Int64(attr.Key, attr.Value.Int64())
	case slog.KindUint64:
		return zap.Uint64(attr.Key, attr.Value.Uint64())
	case slog.KindFloat64:
		return zap.Float64(attr.Key, attr.Value.Float64())
	case slog.KindBool:
		return zap.Bool(attr.Key, attr.Value.Bool())
	case slog.KindDuration:
		return zap.Duration(attr.Key, attr.Value.Duration())
	default:
		return zap.Any(attr.Key, attr.Value.Any())
	}
}
