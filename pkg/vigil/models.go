package vigil

// VideoDescriptor is an immutable catalog entry supplied by the host.
type VideoDescriptor struct {
	ID        string `json:"id" toml:"id"`
	Title     string `json:"title" toml:"title"`
	Src       string `json:"src" toml:"src"`
	Thumbnail string `json:"thumbnail" toml:"thumbnail"`
}

// PlaybackState is the controller's authoritative playback state.
type PlaybackState struct {
	CurrentVideoID string  `json:"currentVideoId"`
	CurrentTime    float64 `json:"currentTime"`
	Duration       float64 `json:"duration"`
	IsPlaying      bool    `json:"isPlaying"`
	Volume         float64 `json:"volume"`
	Opacity        float64 `json:"opacity"`
	IsFullscreen   bool    `json:"isFullscreen"`
	IsOnHold       bool    `json:"isOnHold"`
}

// Role identifies which side of a session a peer plays.
type Role string

const (
	RoleController Role = "controller"
	RoleConsole    Role = "console"
)

// Peer presence states.
const (
	PresenceOpen   = "open"
	PresenceClosed = "closed"
)

// Presence is the retained liveness record a peer publishes for its session.
type Presence struct {
	NodeID string            `json:"nodeId"`
	Role   Role              `json:"role"`
	Name   string            `json:"name,omitempty"`
	State  string            `json:"state"`
	Videos []VideoDescriptor `json:"videos,omitempty"`
	TS     int64             `json:"ts"`
}

// Open reports whether the presence record describes a live peer.
func (p Presence) Open() bool {
	return p.State == PresenceOpen && p.NodeID != ""
}
