package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONPrinter prints indented JSON.
type JSONPrinter struct {
	Writer io.Writer
}

// Print renders JSON output.
func (p JSONPrinter) Print(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(writerOr(p.Writer), string(payload))
	return err
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
