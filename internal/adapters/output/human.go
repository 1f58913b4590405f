package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/modules/console"
	"github.com/pterm/pterm"
)

// HumanPrinter prints styled output for a terminal.
type HumanPrinter struct {
	Writer io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	w := writerOr(p.Writer)
	switch data := v.(type) {
	case core.SessionsResult:
		if len(data.Sessions) == 0 {
			_, err := fmt.Fprintln(w, pterm.Warning.Sprint("no controllers found"))
			return err
		}
		table := pterm.TableData{{"SESSION", "NAME", "NODE", "STATE", "VIDEOS"}}
		for _, s := range data.Sessions {
			state := pterm.Green(s.Presence.State)
			if !s.Presence.Open() {
				state = pterm.Gray(s.Presence.State)
			}
			table = append(table, []string{s.Session, s.Presence.Name, s.Presence.NodeID, state, fmt.Sprint(len(s.Presence.Videos))})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).WithWriter(w).Render()
	case core.VideosResult:
		table := pterm.TableData{{"ID", "TITLE", "SRC"}}
		for _, v := range data.Videos {
			table = append(table, []string{v.ID, pterm.Bold.Sprint(v.Title), v.Src})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).WithWriter(w).Render()
	case core.SentResult:
		_, err := fmt.Fprintln(w, pterm.Success.Sprint(describeSent(data)))
		return err
	case core.StateResult:
		_, err := fmt.Fprintln(w, RenderState(data.State, 40))
		return err
	default:
		_, err := fmt.Fprintln(w, pterm.Success.Sprint("ok"))
		return err
	}
}

// RenderState renders a mirrored state as a status block with a progress
// bar of the given width.
func RenderState(st console.MirroredState, width int) string {
	if st.CurrentVideoID == "" {
		return pterm.Gray("waiting for the controller...")
	}
	status := pterm.Yellow("❚❚ paused")
	if st.IsPlaying {
		status = pterm.Green("▶ playing")
	}
	title := st.Title
	if title == "" {
		title = st.CurrentVideoID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s %s\n", status, pterm.Bold.Sprint(title), pterm.Gray("#"+st.Highlighted))
	fmt.Fprintf(&b, "%s  %s", progressBar(st.CurrentTime, st.Duration, width), FormatPosition(st.CurrentTime, st.Duration))
	if st.PreviewEnabled {
		fmt.Fprintf(&b, "  %s", pterm.Cyan("preview"))
	}
	return b.String()
}

func progressBar(current, duration float64, width int) string {
	if width <= 0 {
		width = 40
	}
	filled := 0
	if duration > 0 {
		filled = int(float64(width) * current / duration)
	}
	filled = max(0, min(width, filled))
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", width-filled) + "]"
}
