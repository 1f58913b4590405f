package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mikey-austin/vigil/internal/core"
	"github.com/mikey-austin/vigil/internal/modules/console"
)

// PlainPrinter prints uncoloured, tab-aligned text for pipes and logs.
type PlainPrinter struct {
	Writer io.Writer
}

// Print renders plain output.
func (p PlainPrinter) Print(v any) error {
	w := writerOr(p.Writer)
	switch data := v.(type) {
	case core.SessionsResult:
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tNAME\tNODE_ID\tSTATE\tVIDEOS")
		for _, s := range data.Sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.Session, s.Presence.Name, s.Presence.NodeID, s.Presence.State, len(s.Presence.Videos))
		}
		return tw.Flush()
	case core.VideosResult:
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tSRC")
		for _, v := range data.Videos {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Title, v.Src)
		}
		return tw.Flush()
	case core.SentResult:
		_, err := fmt.Fprintln(w, describeSent(data))
		return err
	case core.StateResult:
		_, err := fmt.Fprintln(w, StateLine(data.State))
		return err
	default:
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
}

// StateLine renders a one-line summary of a mirrored state.
func StateLine(st console.MirroredState) string {
	status := "paused"
	if st.IsPlaying {
		status = "playing"
	}
	if st.CurrentVideoID == "" {
		status = "waiting"
	}
	parts := []string{fmt.Sprintf("[%s]", status)}
	if st.CurrentVideoID != "" {
		label := st.CurrentVideoID
		if st.Title != "" {
			label = fmt.Sprintf("%s %s", st.CurrentVideoID, st.Title)
		}
		parts = append(parts, label, FormatPosition(st.CurrentTime, st.Duration))
	}
	if st.PreviewEnabled {
		parts = append(parts, "preview")
	}
	return strings.Join(parts, "  ")
}

// FormatPosition renders "m:ss / m:ss (NN%)".
func FormatPosition(current, duration float64) string {
	if duration <= 0 {
		return fmt.Sprintf("%s / -:--", FormatSeconds(current))
	}
	percent := int(current * 100 / duration)
	return fmt.Sprintf("%s / %s (%d%%)", FormatSeconds(current), FormatSeconds(duration), percent)
}

// FormatSeconds renders seconds as m:ss.
func FormatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	secs := int64(seconds)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func describeSent(r core.SentResult) string {
	switch {
	case r.VideoID != "":
		return fmt.Sprintf("sent %s %s", r.Intent, r.VideoID)
	case r.Time != nil:
		return fmt.Sprintf("sent %s %s", r.Intent, FormatSeconds(*r.Time))
	default:
		return fmt.Sprintf("sent %s", r.Intent)
	}
}
