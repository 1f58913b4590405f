//go:build !gstreamer

package media

import (
	"errors"
	"time"
)

// GStreamerOptions configures a GStreamer element.
type GStreamerOptions struct {
	Pipeline string
	Poll     time.Duration
	Muted    bool
}

// DefaultPipeline plays any URI through playbin.
const DefaultPipeline = "playbin uri={url} volume={volume}"

// ErrGStreamerDisabled is returned when the binary was built without the
// gstreamer tag.
var ErrGStreamerDisabled = errors.New("gstreamer build tag not enabled")

// GStreamer is unavailable without the gstreamer build tag. It satisfies
// Element so callers compile either way.
type GStreamer struct {
	Sim
}

// NewGStreamer reports ErrGStreamerDisabled.
func NewGStreamer(opts GStreamerOptions) (*GStreamer, error) {
	return nil, ErrGStreamerDisabled
}
