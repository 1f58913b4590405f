package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/vigil/internal/adapters/idgen"
	"github.com/mikey-austin/vigil/internal/adapters/mqttserver"
	"github.com/mikey-austin/vigil/internal/channel"
	"github.com/mikey-austin/vigil/internal/media"
	"github.com/mikey-austin/vigil/internal/modules/controller"
	embeddedmqtt "github.com/mikey-austin/vigil/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/vigil/internal/modules/gateway"
	"github.com/mikey-austin/vigil/internal/vigild"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

type flags struct {
	configPath  string
	broker      string
	identity    string
	topicBase   string
	session     string
	logLevel    string
	logFormat   string
	logOutput   string
	logUTC      bool
	logColor    bool
	printConfig bool
	dryRun      bool
	moduleOnly  string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags
	defaultConfig, _ := vigild.DefaultConfigPath()

	root := &cobra.Command{
		Use:           "vigild",
		Short:         "Vigil playback controller daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	root.Flags().StringVarP(&f.configPath, "config", "c", defaultConfig, "config file path")
	root.Flags().StringVar(&f.broker, "broker", "", "MQTT broker URL override")
	root.Flags().StringVar(&f.identity, "identity", "", "server identity override")
	root.Flags().StringVar(&f.topicBase, "topic-base", "", "topic base override")
	root.Flags().StringVar(&f.session, "session", "", "session token override")
	root.Flags().StringVar(&f.logLevel, "log-level", "", "log level override")
	root.Flags().StringVar(&f.logFormat, "log-format", "", "log format override (console|json)")
	root.Flags().StringVar(&f.logOutput, "log-output", "", "log output override (stdout|stderr)")
	root.Flags().BoolVar(&f.logUTC, "log-utc", false, "use UTC timestamps in logs")
	root.Flags().BoolVar(&f.logColor, "log-color", false, "enable colored log levels (console only)")
	root.Flags().StringVar(&f.moduleOnly, "module", "", "limit to a single module")
	root.Flags().BoolVar(&f.printConfig, "print-config", false, "print resolved config and exit")
	root.Flags().BoolVar(&f.dryRun, "dry-run", false, "validate config and exit")
	return root
}

func run(parent context.Context, f flags) error {
	cfg, err := vigild.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	applyOverrides(&cfg, f)
	generated := vigild.ResolveIdentity(&cfg, idgen.Generator{})
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.moduleOnly != "" && !moduleKnown(f.moduleOnly) {
		return fmt.Errorf("unknown module %q", f.moduleOnly)
	}

	if f.printConfig {
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	}
	if f.dryRun {
		return nil
	}

	logger := vigild.NewLogger(vigild.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
		Output: cfg.Server.LogOutput,
		UTC:    cfg.Server.LogUTC,
		Color:  cfg.Server.LogColor,
	})
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runsController := cfg.Modules.Controller.Enabled && selected(f.moduleOnly, vigild.ModuleController)
	if runsController {
		lock, err := vigild.AcquireSessionLock(cfg.Server.LockDir, cfg.Server.Session)
		if err != nil {
			return err
		}
		defer lock.Release()
		logger.Debug("session lock held", zap.String("path", lock.Path()))
	}

	skipEmbedded := false
	if f.moduleOnly != vigild.ModuleEmbeddedMQTT && cfg.Modules.EmbeddedMQTT.Enabled && cfg.Server.Broker == embeddedBrokerURL(cfg) {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			return fmt.Errorf("embedded mqtt: %w", err)
		}
		skipEmbedded = true
	}

	logger.Info("vigild starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("identity", cfg.Server.Identity),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.String("session", cfg.Server.Session),
		zap.Bool("session_generated", generated),
		zap.Strings("modules", cfg.EnabledModules()),
	)

	var client *mqttserver.Client
	if runsController && transportOf(cfg) == controller.TransportMQTT {
		if cfg.Server.Broker == "" {
			return errors.New("broker is required for the mqtt transport")
		}
		willTopic, willPayload := channel.WillPresence(cfg.Server.TopicBase, cfg.Server.Session, vigil.RoleController, cfg.Modules.Controller.NodeID)
		client, err = mqttserver.NewClient(mqttserver.Options{
			BrokerURL:   cfg.Server.Broker,
			ClientID:    fmt.Sprintf("vigild-%d", time.Now().UnixNano()),
			Username:    cfg.Server.Auth.User,
			Password:    cfg.Server.Auth.Pass,
			TLSCA:       cfg.Server.TLS.CA,
			TLSCert:     cfg.Server.TLS.Cert,
			TLSKey:      cfg.Server.TLS.Key,
			Timeout:     2 * time.Second,
			Logger:      logger.With(zap.String("module", "mqtt")),
			Debug:       cfg.Server.LogLevel == "debug",
			WillTopic:   willTopic,
			WillPayload: willPayload,
		})
		if err != nil {
			return fmt.Errorf("mqtt connection failed: %w", err)
		}
		defer client.Close()
	}

	modules, err := buildModules(cfg, client, logger, f.moduleOnly, skipEmbedded)
	if err != nil {
		return fmt.Errorf("failed to build modules: %w", err)
	}
	return vigild.Supervisor{Logger: logger}.Run(ctx, modules)
}

func applyOverrides(cfg *vigild.Config, f flags) {
	if f.broker != "" {
		cfg.Server.Broker = f.broker
	}
	if f.identity != "" {
		cfg.Server.Identity = f.identity
	}
	if f.topicBase != "" {
		cfg.Server.TopicBase = f.topicBase
	}
	if f.session != "" {
		cfg.Server.Session = f.session
	}
	if f.logLevel != "" {
		cfg.Server.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Server.LogFormat = f.logFormat
	}
	if f.logOutput != "" {
		cfg.Server.LogOutput = f.logOutput
	}
	if f.logUTC {
		cfg.Server.LogUTC = true
	}
	if f.logColor {
		cfg.Server.LogColor = true
	}
	if cfg.Server.TopicBase == "" {
		cfg.Server.TopicBase = vigil.BaseTopic
	}
	if cfg.Server.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.Server.Broker = embeddedBrokerURL(*cfg)
	}
}

func buildModules(cfg vigild.Config, client *mqttserver.Client, logger *zap.Logger, moduleOnly string, skipEmbedded bool) ([]vigild.ModuleRunner, error) {
	modules := []vigild.ModuleRunner{}
	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded && selected(moduleOnly, vigild.ModuleEmbeddedMQTT) {
		mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", vigild.ModuleEmbeddedMQTT)), embeddedConfig(cfg))
		if err != nil {
			return nil, err
		}
		modules = append(modules, vigild.ModuleRunner{Name: vigild.ModuleEmbeddedMQTT, Run: mod.Run})
	}

	if cfg.Modules.Controller.Enabled && selected(moduleOnly, vigild.ModuleController) {
		ctlLog := logger.With(zap.String("module", vigild.ModuleController))
		ctlCfg := controllerConfig(cfg, ctlLog)
		var (
			ctl *controller.Module
			err error
		)
		if client != nil {
			ctl, err = controller.NewModule(ctlLog, client, ctlCfg)
		} else {
			ctl, err = controller.NewModule(ctlLog, nil, ctlCfg)
		}
		if err != nil {
			return nil, err
		}
		modules = append(modules, vigild.ModuleRunner{Name: vigild.ModuleController, Run: ctl.Run})

		if cfg.Modules.Gateway.Enabled {
			gw, err := gateway.NewModule(logger.With(zap.String("module", vigild.ModuleGateway)), ctl.Slot(), ctl.Controller(), gateway.Config{
				Listen:         cfg.Modules.Gateway.Listen,
				Session:        ctl.Session(),
				NodeID:         ctl.NodeID(),
				AllowedOrigins: cfg.Modules.Gateway.AllowedOrigins,
			})
			if err != nil {
				return nil, err
			}
			modules = append(modules, vigild.ModuleRunner{Name: vigild.ModuleGateway, Run: gw.Run})
		}
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

func controllerConfig(cfg vigild.Config, log *zap.Logger) controller.Config {
	ctl := cfg.Modules.Controller
	return controller.Config{
		NodeID:       ctl.NodeID,
		TopicBase:    cfg.Server.TopicBase,
		Session:      cfg.Server.Session,
		Name:         ctl.Name,
		Transport:    transportOf(cfg),
		CatalogPath:  ctl.Catalog,
		CatalogDir:   ctl.CatalogDir,
		CatalogExts:  ctl.CatalogExts,
		FeedURL:      ctl.Feed,
		InitialVideo: ctl.InitialVideo,
		ProbeWindow:  time.Duration(ctl.ProbeWindowMS) * time.Millisecond,
		Media: media.Options{
			Kind: ctl.Media,
			VLC: media.VLCOptions{
				BaseURL:  ctl.VLC.BaseURL,
				Password: ctl.VLC.Password,
				Poll:     time.Duration(ctl.VLC.PollMS) * time.Millisecond,
				Timeout:  time.Duration(ctl.VLC.TimeoutMS) * time.Millisecond,
				Logger:   log,
			},
			GStreamer: media.GStreamerOptions{
				Pipeline: ctl.GStreamer.Pipeline,
				Poll:     time.Duration(ctl.GStreamer.PollMS) * time.Millisecond,
			},
		},
	}
}

func transportOf(cfg vigild.Config) string {
	if cfg.Modules.Controller.Transport == "" {
		return controller.TransportMQTT
	}
	return cfg.Modules.Controller.Transport
}

func selected(moduleOnly, name string) bool {
	return moduleOnly == "" || moduleOnly == name
}

func moduleKnown(name string) bool {
	switch name {
	case vigild.ModuleEmbeddedMQTT, vigild.ModuleController:
		return true
	}
	return false
}

func embeddedConfig(cfg vigild.Config) embeddedmqtt.Config {
	e := cfg.Modules.EmbeddedMQTT
	return embeddedmqtt.Config{
		Listen:         e.Listen,
		TopicBase:      cfg.Server.TopicBase,
		AllowAnonymous: e.AllowAnonymous,
		Username:       e.Username,
		Password:       e.Password,
		TLSCA:          e.TLSCA,
		TLSCert:        e.TLSCert,
		TLSKey:         e.TLSKey,
	}
}

func embeddedBrokerURL(cfg vigild.Config) string {
	e := embeddedConfig(cfg)
	listen := e.Listen
	if listen == "" {
		listen = embeddedmqtt.DefaultListen
	}
	return embeddedmqtt.BrokerURL(listen, e.TLSEnabled())
}

func startEmbeddedBroker(ctx context.Context, cfg vigild.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(logger.With(zap.String("module", vigild.ModuleEmbeddedMQTT)), embeddedConfig(cfg))
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()
	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()

	listen := cfg.Modules.EmbeddedMQTT.Listen
	if listen == "" {
		listen = embeddedmqtt.DefaultListen
	}
	return waitForListen(listen, 3*time.Second)
}

func waitForListen(listen string, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("embedded mqtt not ready at %s", addr)
}
