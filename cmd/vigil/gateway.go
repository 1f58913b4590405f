package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mikey-austin/vigil/internal/channel"
	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/modules/console"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

type gatewayStatus struct {
	Controller string `json:"controller"`
}

// gatewayURL resolves path against the gateway base, switching to a
// websocket scheme when ws is set.
func gatewayURL(base string, path string, ws bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return nil, core.UsageError("invalid gateway url %q", base)
	}
	secure := false
	switch u.Scheme {
	case "http", "ws":
	case "https", "wss":
		secure = true
	default:
		return nil, core.UsageError("gateway must be an http(s) or ws(s) url")
	}
	switch {
	case ws && secure:
		u.Scheme = "wss"
	case ws:
		u.Scheme = "ws"
	case secure:
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	return u, nil
}

func gatewayConsoleURL(base string, session string, node string) (string, error) {
	u, err := gatewayURL(base, "/ws/console", true)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("session", session)
	q.Set("node", node)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *app) gatewayGet(ctx context.Context, path string, out any) error {
	u, err := gatewayURL(a.config.Gateway, path, false)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway %s: %w", path, err)
	}
	return nil
}

// gatewayVideos returns the controller node id and catalog behind the gateway.
func (a *app) gatewayVideos(ctx context.Context) (string, []vigil.VideoDescriptor, error) {
	var status gatewayStatus
	if err := a.gatewayGet(ctx, "/api/console", &status); err != nil {
		return "", nil, err
	}
	var videos []vigil.VideoDescriptor
	if err := a.gatewayGet(ctx, "/api/videos", &videos); err != nil {
		return "", nil, err
	}
	return status.Controller, videos, nil
}

// dialGateway opens a console over a controller's websocket gateway.
func (a *app) dialGateway(ctx context.Context) (*console.Peer, error) {
	if err := a.requireSession(); err != nil {
		return nil, err
	}
	_, videos, err := a.gatewayVideos(ctx)
	if err != nil {
		return nil, err
	}
	node := consoleNodeID(a.config.Identity)
	wsURL, err := gatewayConsoleURL(a.config.Gateway, a.config.Session, node)
	if err != nil {
		return nil, err
	}
	ep, err := channel.DialWebsocket(ctx, a.log, wsURL, nil, channel.WebsocketConfig{
		Session: a.config.Session,
		Role:    vigil.RoleConsole,
		NodeID:  node,
	})
	if err != nil {
		return nil, err
	}
	return console.NewPeer(a.log, ep, console.Options{
		Videos:  videos,
		Preview: a.previewMedia,
	}), nil
}
