package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/vigil/internal/adapters/config"
	"github.com/mikey-austin/vigil/internal/adapters/mqtt"
	"github.com/mikey-austin/vigil/internal/adapters/output"
	"github.com/mikey-austin/vigil/internal/channel"
	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/media"
	"github.com/mikey-austin/vigil/internal/modules/console"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

type app struct {
	config   core.Config
	preview  string
	printer  output.Printer
	log      *zap.Logger
	json     bool
	tty      bool
	timeout  time.Duration
	launcher *console.Launcher

	// set while a console is open
	client       *mqtt.Client
	previewMedia media.Element
}

func main() {
	root := &cobra.Command{
		Use:           "vigil",
		Short:         "Vigil console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		broker    string
		gateway   string
		topicBase string
		identity  string
		session   string
		timeout   time.Duration
		jsonOut   bool
		verbose   bool
		tlsCA     string
		tlsCert   string
		tlsKey    string
		userOpt   string
		passOpt   string
	)

	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVarP(&gateway, "gateway", "g", "", "controller gateway URL, used instead of MQTT")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", vigil.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&identity, "identity", "i", "", "console identity")
	root.PersistentFlags().StringVarP(&session, "session", "s", "", "session token")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		coreCfg := mergeConfig(core.Config{
			Broker:    broker,
			Gateway:   gateway,
			Identity:  identity,
			TopicBase: topicBase,
			Session:   session,
			Username:  userOpt,
			Password:  passOpt,
			TLSCA:     tlsCA,
			TLSCert:   tlsCert,
			TLSKey:    tlsKey,
			Timeout:   timeout,
		}, cfg)
		if coreCfg.Broker == "" && coreCfg.Gateway == "" {
			return core.UsageError("broker or gateway is required (set --broker, --gateway or config)")
		}

		log := zap.NewNop()
		if verbose {
			log, err = zap.NewDevelopment()
			if err != nil {
				return err
			}
		}

		a := &app{
			config:  coreCfg,
			preview: cfg.Preview,
			printer: output.New(jsonOut, os.Stdout),
			log:     log,
			json:    jsonOut,
			tty:     output.IsTerminal(os.Stdout),
			timeout: timeout,
		}
		a.launcher = console.NewLauncher(a.dial)
		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
		return nil
	}

	root.AddCommand(lsCommand())
	root.AddCommand(playCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(fadeInCommand())
	root.AddCommand(fadeOutCommand())
	root.AddCommand(holdCommand())
	root.AddCommand(releaseCommand())
	root.AddCommand(fullscreenCommand())
	root.AddCommand(selectCommand())
	root.AddCommand(seekCommand())
	root.AddCommand(snapshotCommand())
	root.AddCommand(watchCommand())

	if err := root.Execute(); err != nil {
		err = core.ErrorFor(err)
		fmt.Fprintln(os.Stderr, "vigil:", err)
		os.Exit(core.ExitCode(err))
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// mergeConfig fills unset flag values from config.toml.
func mergeConfig(flags core.Config, file config.Config) core.Config {
	out := flags
	out.Identity = defaultIdentity(flags.Identity, file.Identity)
	if out.Broker == "" && out.Gateway == "" {
		out.Broker = file.Broker
	}
	if out.Gateway == "" && out.Broker == "" {
		out.Gateway = file.Gateway
	}
	if out.TopicBase == "" || (out.TopicBase == vigil.BaseTopic && file.TopicBase != "") {
		out.TopicBase = file.TopicBase
	}
	if out.TopicBase == "" {
		out.TopicBase = vigil.BaseTopic
	}
	if out.Session == "" {
		out.Session = file.Session
	}
	if out.Username == "" {
		out.Username = file.Username
	}
	if out.Password == "" {
		out.Password = file.Password
	}
	if out.TLSCA == "" {
		out.TLSCA = file.TLS.CA
	}
	if out.TLSCert == "" {
		out.TLSCert = file.TLS.Cert
	}
	if out.TLSKey == "" {
		out.TLSKey = file.TLS.Key
	}
	return out
}

func defaultIdentity(flagVal string, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "vigil-unknown"
}

// consoleNodeID is stable per identity so that a one-shot command joins a
// console the same operator already has open instead of being refused.
func consoleNodeID(identity string) string {
	return "vigil:console:" + strings.TrimSpace(identity)
}

func (a *app) requireSession() error {
	if strings.TrimSpace(a.config.Session) == "" {
		return core.UsageError("session is required (set --session or config)")
	}
	return nil
}

func (a *app) connect(will bool) (*mqtt.Client, error) {
	opts := mqtt.Options{
		BrokerURL: a.config.Broker,
		ClientID:  fmt.Sprintf("vigil-%d", time.Now().UnixNano()),
		Username:  a.config.Username,
		Password:  a.config.Password,
		TLSCA:     a.config.TLSCA,
		TLSCert:   a.config.TLSCert,
		TLSKey:    a.config.TLSKey,
		TopicBase: a.config.TopicBase,
		Timeout:   a.timeout,
	}
	if will {
		opts.WillTopic, opts.WillPayload = channel.WillPresence(a.config.TopicBase, a.config.Session, vigil.RoleConsole, consoleNodeID(a.config.Identity))
	}
	return mqtt.NewClient(opts)
}

// dial opens a console over MQTT and waits for the controller to be live.
// A configured gateway takes the websocket path instead.
func (a *app) dial(ctx context.Context) (*console.Peer, error) {
	if a.config.Gateway != "" {
		return a.dialGateway(ctx)
	}
	if err := a.requireSession(); err != nil {
		return nil, err
	}
	client, err := a.connect(true)
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	if _, err := client.ControllerPresence(ctx, a.config.Session); err != nil {
		client.Close()
		return nil, err
	}
	ep, err := channel.NewMQTT(a.log, client, channel.MQTTConfig{
		TopicBase: a.config.TopicBase,
		Session:   a.config.Session,
		Role:      vigil.RoleConsole,
		NodeID:    consoleNodeID(a.config.Identity),
		Name:      a.config.Identity,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := ep.Start(ctx); err != nil {
		client.Close()
		return nil, err
	}
	presence, err := ep.WaitPeer(ctx)
	if err != nil {
		_ = ep.Close()
		client.Close()
		return nil, fmt.Errorf("wait for controller: %w", err)
	}

	peer := console.NewPeer(a.log, ep, console.Options{
		Videos:  presence.Videos,
		Preview: a.previewMedia,
	})
	a.client = client
	return peer, nil
}

// openConsole returns an open console for the configured session.
func (a *app) openConsole(ctx context.Context) (*console.Peer, error) {
	peer, _, err := a.launcher.Open(ctx)
	var unavailable *console.UnavailableError
	if errors.As(err, &unavailable) {
		// Usage problems and a missing controller read better unwrapped.
		var cliErr *core.CLIError
		if errors.As(unavailable.Err, &cliErr) || errors.Is(unavailable.Err, mqtt.ErrNoController) {
			return nil, unavailable.Err
		}
	}
	return peer, err
}

func (a *app) close() {
	_ = a.launcher.Close()
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
	_ = a.log.Sync()
}

// waitState blocks until cond holds for the mirrored state or ctx ends.
func waitState(ctx context.Context, peer *console.Peer, cond func(console.MirroredState) bool) (console.MirroredState, error) {
	notify := make(chan struct{}, 1)
	peer.OnChange(func(console.MirroredState) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer peer.OnChange(nil)
	for {
		st := peer.State()
		if cond(st) {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-notify:
		}
	}
}
