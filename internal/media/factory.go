package media

import "fmt"

// Element kinds selectable from configuration.
const (
	KindSim       = "sim"
	KindVLC       = "vlc"
	KindGStreamer = "gstreamer"
)

// Options selects and configures an element.
type Options struct {
	Kind      string
	Sim       SimOptions
	VLC       VLCOptions
	GStreamer GStreamerOptions
}

// New builds the element named by opts.Kind. An empty kind means sim.
func New(opts Options) (Element, error) {
	switch opts.Kind {
	case "", KindSim:
		return NewSim(opts.Sim), nil
	case KindVLC:
		v, err := NewVLC(opts.VLC)
		if err != nil {
			return nil, fmt.Errorf("vlc: %w", err)
		}
		return v, nil
	case KindGStreamer:
		g, err := NewGStreamer(opts.GStreamer)
		if err != nil {
			return nil, fmt.Errorf("gstreamer: %w", err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown media kind %q", opts.Kind)
	}
}
