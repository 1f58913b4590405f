// Package gateway serves browser consoles: a small HTTP API and a websocket
// endpoint bound to the controller's single console slot.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mikey-austin/vigil/internal/channel"
	"github.com/mikey-austin/vigil/pkg/vigil"
	"go.uber.org/zap"
)

// DefaultListen is the gateway address when none is configured.
const DefaultListen = "127.0.0.1:8090"

// Config configures the gateway.
type Config struct {
	Listen         string
	Session        string
	NodeID         string
	AllowedOrigins []string
}

// Catalog lists the videos the controller serves.
type Catalog interface {
	Videos() []vigil.VideoDescriptor
}

// Module is the HTTP gateway.
type Module struct {
	log      *zap.Logger
	config   Config
	slot     *channel.Slot
	catalog  Catalog
	router   *echo.Echo
	upgrader websocket.Upgrader
	stop     chan struct{}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type consoleStatus struct {
	Controller string `json:"controller"`
	Attached   bool   `json:"attached"`
}

// NewModule creates a gateway bound to slot.
func NewModule(log *zap.Logger, slot *channel.Slot, catalog Catalog, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if slot == nil {
		return nil, errors.New("gateway requires the controller's websocket transport")
	}
	if strings.TrimSpace(cfg.Session) == "" || strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("session and node_id required")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}

	m := &Module{
		log:     log,
		config:  cfg,
		slot:    slot,
		catalog: catalog,
		stop:    make(chan struct{}),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("http request",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/videos", m.handleVideos)
	e.GET("/api/console", m.handleConsoleStatus)
	e.GET("/ws/console", m.handleConsole)
	m.router = e
	return m, nil
}

// Handler exposes the router.
func (m *Module) Handler() http.Handler {
	return m.router
}

// Run serves HTTP until ctx ends.
func (m *Module) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              m.config.Listen,
		Handler:           m.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	m.log.Info("gateway listening", zap.String("listen", m.config.Listen))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	close(m.stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (m *Module) handleVideos(c echo.Context) error {
	videos := []vigil.VideoDescriptor{}
	if m.catalog != nil {
		videos = m.catalog.Videos()
	}
	return c.JSON(http.StatusOK, videos)
}

func (m *Module) handleConsoleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, consoleStatus{Controller: m.config.NodeID, Attached: m.slot.PeerOpen()})
}

func (m *Module) handleConsole(c echo.Context) error {
	if c.QueryParam("session") != m.config.Session {
		return c.JSON(http.StatusForbidden, errorResponse{Code: "forbidden", Message: "unknown session"})
	}
	node := strings.TrimSpace(c.QueryParam("node"))
	if node == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: "node is required"})
	}
	if !m.checkOrigin(c.Request()) {
		return c.JSON(http.StatusForbidden, errorResponse{Code: "forbidden", Message: "origin not allowed"})
	}
	if m.slot.PeerOpen() {
		return c.JSON(http.StatusConflict, errorResponse{Code: "console_busy", Message: "another console is already open"})
	}

	header := http.Header{}
	header.Set(channel.HeaderNodeID, m.config.NodeID)
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), header)
	if err != nil {
		m.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	ws, err := channel.NewWebsocket(m.log, conn, channel.WebsocketConfig{
		Session: m.config.Session,
		Role:    vigil.RoleController,
		NodeID:  m.config.NodeID,
		PeerID:  node,
	})
	if err != nil {
		_ = conn.Close()
		return nil
	}
	if err := m.slot.Attach(ws); err != nil {
		m.log.Info("console refused", zap.String("node", node), zap.Error(err))
		_ = ws.Close()
		return nil
	}
	m.log.Info("console attached", zap.String("node", node), zap.String("remote", c.RealIP()))

	select {
	case <-ws.Done():
	case <-m.stop:
	}
	m.slot.Detach(ws)
	m.log.Info("console detached", zap.String("node", node))
	return nil
}

// checkOrigin admits requests without an Origin header (non-browser
// consoles), same-host origins and configured origins. "*" admits any.
func (m *Module) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(m.config.AllowedOrigins, "*") || slices.Contains(m.config.AllowedOrigins, origin) {
		return true
	}
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return strings.EqualFold(host, r.Host)
}
