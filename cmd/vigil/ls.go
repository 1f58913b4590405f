package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/vigil/internal/core"
)

func lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List controllers, or the catalog of --session or --gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			defer app.close()
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			if app.config.Gateway != "" {
				controller, videos, err := app.gatewayVideos(ctx)
				if err != nil {
					return err
				}
				return app.printer.Print(core.VideosResult{
					Session:    app.config.Session,
					Controller: controller,
					Videos:     videos,
				})
			}

			client, err := app.connect(false)
			if err != nil {
				return err
			}
			defer client.Close()

			if strings.TrimSpace(app.config.Session) == "" {
				sessions, err := client.ListSessions(ctx)
				if err != nil {
					return err
				}
				return app.printer.Print(core.SessionsResult{Sessions: sessions})
			}

			presence, err := client.ControllerPresence(ctx, app.config.Session)
			if err != nil {
				return err
			}
			return app.printer.Print(core.VideosResult{
				Session:    app.config.Session,
				Controller: presence.NodeID,
				Videos:     presence.Videos,
			})
		},
	}
}
