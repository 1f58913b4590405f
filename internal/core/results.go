package core

import (
	"github.com/mikey-austin/vigil/internal/adapters/mqtt"
	"github.com/mikey-austin/vigil/internal/modules/console"
	"github.com/mikey-austin/vigil/pkg/vigil"
)

// SessionsResult lists controllers found on the broker.
type SessionsResult struct {
	Sessions []mqtt.SessionPresence `json:"sessions"`
}

// VideosResult holds a session's catalog.
type VideosResult struct {
	Session    string                  `json:"session"`
	Controller string                  `json:"controller"`
	Videos     []vigil.VideoDescriptor `json:"videos"`
}

// SentResult reports an intent handed to the channel.
type SentResult struct {
	Intent  vigil.IntentType `json:"intent"`
	VideoID string           `json:"videoId,omitempty"`
	Time    *float64         `json:"time,omitempty"`
}

// StateResult is the console's mirror of the controller.
type StateResult struct {
	Session string                `json:"session"`
	State   console.MirroredState `json:"state"`
}
