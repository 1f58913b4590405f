package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/vigil/internal/adapters/output"
	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/media"
	"github.com/mikey-austin/vigil/internal/modules/console"
)

const watchLivenessInterval = time.Second

func watchCommand() *cobra.Command {
	var (
		previewURL  string
		previewPass string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror the controller live, optionally previewing in a local VLC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			defer app.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if previewURL == "" {
				previewURL = app.preview
			}
			if previewURL != "" {
				vlc, err := media.NewVLC(media.VLCOptions{
					BaseURL:  previewURL,
					Password: previewPass,
					Muted:    true,
					Logger:   app.log.Named("preview"),
				})
				if err != nil {
					return core.UsageError("preview: %v", err)
				}
				app.previewMedia = vlc
				go func() {
					if err := vlc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						app.log.Warn("preview stopped", zap.Error(err))
					}
				}()
			}

			openCtx, cancel := withTimeout(ctx, app.timeout)
			peer, err := app.openConsole(openCtx)
			cancel()
			if err != nil {
				return err
			}
			if app.previewMedia != nil {
				if err := peer.EnablePreview(); err != nil {
					return err
				}
				defer peer.DisablePreview()
			}
			if _, err := peer.RequestSnapshot(); err != nil {
				return err
			}
			return app.watch(ctx, peer)
		},
	}
	cmd.Flags().StringVar(&previewURL, "preview-vlc", "", "VLC HTTP interface to mirror into, e.g. http://127.0.0.1:8080")
	cmd.Flags().StringVar(&previewPass, "preview-vlc-password", "", "VLC HTTP password")
	return cmd
}

// watch renders every mirrored state change until ctx ends or the console
// closes. Terminals get a live area; pipes get one line per visible change.
func (a *app) watch(ctx context.Context, peer *console.Peer) error {
	changes := make(chan console.MirroredState, 1)
	peer.OnChange(func(st console.MirroredState) {
		select {
		case changes <- st:
		default:
			select {
			case <-changes:
			default:
			}
			changes <- st
		}
	})
	defer peer.OnChange(nil)

	render, done, err := a.stateRenderer()
	if err != nil {
		return err
	}
	defer done()
	render(peer.State(), peer.ControllerLive())

	ticker := time.NewTicker(watchLivenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-changes:
			render(st, peer.ControllerLive())
		case <-ticker.C:
			if !peer.Open() {
				return nil
			}
			render(peer.State(), peer.ControllerLive())
		}
	}
}

func (a *app) stateRenderer() (render func(console.MirroredState, bool), done func(), err error) {
	if a.json {
		var last time.Time
		return func(st console.MirroredState, _ bool) {
			if st.LastUpdate.Equal(last) {
				return
			}
			last = st.LastUpdate
			_ = a.printer.Print(core.StateResult{Session: a.config.Session, State: st})
		}, func() {}, nil
	}

	if !a.tty {
		var last string
		return func(st console.MirroredState, live bool) {
			line := output.StateLine(st)
			if !live {
				line += "  controller offline"
			}
			if line == last {
				return
			}
			last = line
			fmt.Fprintln(os.Stdout, line)
		}, func() {}, nil
	}

	area, err := pterm.DefaultArea.WithRemoveWhenDone(false).Start()
	if err != nil {
		return nil, nil, err
	}
	header := pterm.Bold.Sprintf("session %s", a.config.Session)
	return func(st console.MirroredState, live bool) {
		body := output.RenderState(st, 40)
		if !live {
			body += "\n" + pterm.Warning.Sprint("controller offline")
		}
		area.Update(header + "\n" + body)
	}, func() {
		_ = area.Stop()
	}, nil
}
