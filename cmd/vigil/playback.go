package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/modules/console"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

func intentCommand(use, short string, intent vigil.IntentType, send func(*console.Peer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
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
			if err := send(peer); err != nil {
				return err
			}
			return app.printer.Print(core.SentResult{Intent: intent})
		},
	}
}

func playCommand() *cobra.Command {
	return intentCommand("play", "Start playback", vigil.IntentPlay, (*console.Peer).Play)
}

func pauseCommand() *cobra.Command {
	return intentCommand("pause", "Pause playback", vigil.IntentPause, (*console.Peer).Pause)
}

func fadeInCommand() *cobra.Command {
	return intentCommand("fade-in", "Fade picture and sound in", vigil.IntentFadeIn, (*console.Peer).FadeIn)
}

func fadeOutCommand() *cobra.Command {
	return intentCommand("fade-out", "Fade picture and sound out", vigil.IntentFadeOut, (*console.Peer).FadeOut)
}

func holdCommand() *cobra.Command {
	return intentCommand("hold", "Hold the picture dark", vigil.IntentHold, (*console.Peer).Hold)
}

func releaseCommand() *cobra.Command {
	return intentCommand("release", "Release a hold", vigil.IntentRelease, (*console.Peer).Release)
}

func fullscreenCommand() *cobra.Command {
	return intentCommand("fullscreen", "Toggle fullscreen on the controller", vigil.IntentToggleFullscreen, (*console.Peer).ToggleFullscreen)
}

func selectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <video-id>",
		Short: "Switch the controller to a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			defer app.close()
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			peer, err := app.openConsole(ctx)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := peer.SelectVideo(id); err != nil {
				return err
			}
			return app.printer.Print(core.SentResult{Intent: vigil.IntentChangeVideo, VideoID: id})
		},
	}
}

func seekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek <seconds|mm:ss|NN%>",
		Short: "Seek the current video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseSeek(args[0])
			if err != nil {
				return core.UsageError("%v", err)
			}
			app := fromContext(cmd)
			defer app.close()
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			peer, err := app.openConsole(ctx)
			if err != nil {
				return err
			}

			seconds := target.seconds
			if target.percent {
				if _, err := waitState(ctx, peer, func(st console.MirroredState) bool { return st.Duration > 0 }); err != nil {
					if errors.Is(err, context.DeadlineExceeded) {
						return console.ErrUnknownDuration
					}
					return err
				}
				seconds, err = peer.SeekAt(target.fraction*100, 100)
				if err != nil {
					return err
				}
			} else if err := peer.SeekTo(seconds); err != nil {
				return err
			}
			return app.printer.Print(core.SentResult{Intent: vigil.IntentSeekTo, Time: &seconds})
		},
	}
}

type seekTarget struct {
	seconds  float64
	fraction float64
	percent  bool
}

// parseSeek accepts plain seconds, [h:]mm:ss or a percentage of the
// duration.
func parseSeek(arg string) (seekTarget, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return seekTarget{}, errors.New("seek target required")
	}
	if pct, ok := strings.CutSuffix(arg, "%"); ok {
		v, err := strconv.ParseFloat(pct, 64)
		if err != nil || math.IsNaN(v) || v < 0 || v > 100 {
			return seekTarget{}, fmt.Errorf("invalid percentage %q", arg)
		}
		return seekTarget{fraction: v / 100, percent: true}, nil
	}
	if !strings.Contains(arg, ":") {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return seekTarget{}, fmt.Errorf("invalid seconds %q", arg)
		}
		return seekTarget{seconds: v}, nil
	}

	parts := strings.Split(arg, ":")
	if len(parts) > 3 {
		return seekTarget{}, fmt.Errorf("invalid time %q", arg)
	}
	var total float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return seekTarget{}, fmt.Errorf("invalid time %q", arg)
		}
		if i > 0 && v >= 60 {
			return seekTarget{}, fmt.Errorf("invalid time %q", arg)
		}
		total = total*60 + v
	}
	return seekTarget{seconds: total}, nil
}
