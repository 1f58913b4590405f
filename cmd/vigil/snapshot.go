package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/modules/console"
)

func snapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Pull the controller's current source and position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			defer app.close()
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			peer, err := app.openConsole(ctx)
			if err != nil {
				return err
			}
			if _, err := peer.RequestSnapshot(); err != nil {
				return err
			}
			st, err := waitState(ctx, peer, func(st console.MirroredState) bool { return st.Src != "" })
			if err != nil {
				return err
			}
			return app.printer.Print(core.StateResult{Session: app.config.Session, State: st})
		},
	}
}
