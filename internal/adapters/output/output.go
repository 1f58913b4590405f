package output

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Printer renders command results.
type Printer interface {
	Print(v any) error
}

// New picks a printer: JSON when asked, pterm on a terminal, plain text
// otherwise.
func New(jsonOut bool, w io.Writer) Printer {
	if w == nil {
		w = os.Stdout
	}
	switch {
	case jsonOut:
		return JSONPrinter{Writer: w}
	case IsTerminal(w):
		return HumanPrinter{Writer: w}
	default:
		return PlainPrinter{Writer: w}
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
