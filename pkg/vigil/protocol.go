package vigil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "vigil/v1"

// Kind discriminates the two message families on the wire.
type Kind string

const (
	KindIntent   Kind = "intent"
	KindSnapshot Kind = "snapshot"
)

// IntentType names a console to controller request.
type IntentType string

const (
	IntentPlay             IntentType = "play"
	IntentPause            IntentType = "pause"
	IntentFadeIn           IntentType = "fadeIn"
	IntentFadeOut          IntentType = "fadeOut"
	IntentHold             IntentType = "hold"
	IntentRelease          IntentType = "release"
	IntentToggleFullscreen IntentType = "toggleFullscreen"
	IntentChangeVideo      IntentType = "changeVideo"
	IntentSeekTo           IntentType = "seekTo"
	IntentRequestSnapshot  IntentType = "requestSnapshot"
)

// SnapshotType names a controller to console state message.
type SnapshotType string

const (
	SnapshotTimeUpdate       SnapshotType = "timeUpdate"
	SnapshotVideoSrcResponse SnapshotType = "videoSrcResponse"
)

// ErrInvalidEnvelope marks a message that does not match the schema.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Envelope is the single wire shape for every cross-peer message. Payload
// fields are pointers so that missing fields can be told apart from zero
// values during validation.
type Envelope struct {
	Kind    Kind   `json:"kind"`
	Type    string `json:"type"`
	Session string `json:"session"`
	From    string `json:"from"`

	VideoID     *string  `json:"videoId,omitempty"`
	Time        *float64 `json:"time,omitempty"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	IsPlaying   *bool    `json:"isPlaying,omitempty"`
	Src         *string  `json:"src,omitempty"`
	Thumbnail   *string  `json:"thumbnail,omitempty"`
	Title       *string  `json:"title,omitempty"`
}

// Intent is the decoded form of an intent envelope.
type Intent struct {
	Type    IntentType
	VideoID string
	Time    float64
}

// TimeUpdate is the periodic, throttled playback snapshot.
type TimeUpdate struct {
	VideoID     string  `json:"videoId"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	IsPlaying   bool    `json:"isPlaying"`
}

// VideoSrcResponse answers a requestSnapshot intent.
type VideoSrcResponse struct {
	Src         string  `json:"src"`
	Thumbnail   string  `json:"thumbnail"`
	Title       string  `json:"title"`
	CurrentTime float64 `json:"currentTime"`
	IsPlaying   bool    `json:"isPlaying"`
}

// NewIntent builds an intent envelope. Session and From are stamped by the
// channel on send.
func NewIntent(intent Intent) Envelope {
	env := Envelope{Kind: KindIntent, Type: string(intent.Type)}
	switch intent.Type {
	case IntentChangeVideo:
		env.VideoID = ptr(intent.VideoID)
	case IntentSeekTo:
		env.Time = ptr(intent.Time)
	}
	return env
}

// NewTimeUpdate builds a timeUpdate snapshot envelope.
func NewTimeUpdate(update TimeUpdate) Envelope {
	return Envelope{
		Kind:        KindSnapshot,
		Type:        string(SnapshotTimeUpdate),
		VideoID:     ptr(update.VideoID),
		CurrentTime: ptr(update.CurrentTime),
		Duration:    ptr(update.Duration),
		IsPlaying:   ptr(update.IsPlaying),
	}
}

// NewVideoSrcResponse builds a videoSrcResponse snapshot envelope.
func NewVideoSrcResponse(resp VideoSrcResponse) Envelope {
	return Envelope{
		Kind:        KindSnapshot,
		Type:        string(SnapshotVideoSrcResponse),
		Src:         ptr(resp.Src),
		Thumbnail:   ptr(resp.Thumbnail),
		Title:       ptr(resp.Title),
		CurrentTime: ptr(resp.CurrentTime),
		IsPlaying:   ptr(resp.IsPlaying),
	}
}

// Encode marshals an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return payload, nil
}

// Decode parses and validates a wire message. Unknown fields are rejected.
func Decode(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if dec.More() {
		return Envelope{}, fmt.Errorf("%w: trailing data", ErrInvalidEnvelope)
	}
	if err := ValidateEnvelope(env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// ValidateEnvelope checks the discriminant and the fields each type requires.
func ValidateEnvelope(env Envelope) error {
	if strings.TrimSpace(env.Session) == "" {
		return invalid("session is required")
	}
	if strings.TrimSpace(env.From) == "" {
		return invalid("from is required")
	}
	switch env.Kind {
	case KindIntent:
		return validateIntent(env)
	case KindSnapshot:
		return validateSnapshot(env)
	case "":
		return invalid("kind is required")
	default:
		return invalid(fmt.Sprintf("unknown kind %q", env.Kind))
	}
}

func validateIntent(env Envelope) error {
	switch IntentType(env.Type) {
	case IntentPlay, IntentPause, IntentFadeIn, IntentFadeOut, IntentHold, IntentRelease, IntentToggleFullscreen, IntentRequestSnapshot:
		return nil
	case IntentChangeVideo:
		if env.VideoID == nil || strings.TrimSpace(*env.VideoID) == "" {
			return invalid("changeVideo requires videoId")
		}
		return nil
	case IntentSeekTo:
		if env.Time == nil {
			return invalid("seekTo requires time")
		}
		// Out of range targets are clamped by the controller.
		if math.IsNaN(*env.Time) || math.IsInf(*env.Time, 0) {
			return invalid("time must be a finite number")
		}
		return nil
	case "":
		return invalid("type is required")
	default:
		return invalid(fmt.Sprintf("unknown intent %q", env.Type))
	}
}

func validateSnapshot(env Envelope) error {
	switch SnapshotType(env.Type) {
	case SnapshotTimeUpdate:
		if env.VideoID == nil || env.CurrentTime == nil || env.Duration == nil || env.IsPlaying == nil {
			return invalid("timeUpdate requires videoId, currentTime, duration and isPlaying")
		}
		if err := checkSeconds("currentTime", *env.CurrentTime); err != nil {
			return err
		}
		return checkSeconds("duration", *env.Duration)
	case SnapshotVideoSrcResponse:
		if env.Src == nil || env.Thumbnail == nil || env.Title == nil || env.CurrentTime == nil || env.IsPlaying == nil {
			return invalid("videoSrcResponse requires src, thumbnail, title, currentTime and isPlaying")
		}
		return checkSeconds("currentTime", *env.CurrentTime)
	case "":
		return invalid("type is required")
	default:
		return invalid(fmt.Sprintf("unknown snapshot %q", env.Type))
	}
}

// Intent returns the decoded intent of a validated intent envelope.
func (e Envelope) Intent() (Intent, error) {
	if e.Kind != KindIntent {
		return Intent{}, invalid("not an intent")
	}
	if err := validateIntent(e); err != nil {
		return Intent{}, err
	}
	intent := Intent{Type: IntentType(e.Type)}
	if e.VideoID != nil {
		intent.VideoID = *e.VideoID
	}
	if e.Time != nil {
		intent.Time = *e.Time
	}
	return intent, nil
}

// TimeUpdate returns the payload of a timeUpdate snapshot.
func (e Envelope) TimeUpdate() (TimeUpdate, error) {
	if e.Kind != KindSnapshot || SnapshotType(e.Type) != SnapshotTimeUpdate {
		return TimeUpdate{}, invalid("not a timeUpdate")
	}
	if err := validateSnapshot(e); err != nil {
		return TimeUpdate{}, err
	}
	return TimeUpdate{
		VideoID:     *e.VideoID,
		CurrentTime: *e.CurrentTime,
		Duration:    *e.Duration,
		IsPlaying:   *e.IsPlaying,
	}, nil
}

// VideoSrcResponse returns the payload of a videoSrcResponse snapshot.
func (e Envelope) VideoSrcResponse() (VideoSrcResponse, error) {
	if e.Kind != KindSnapshot || SnapshotType(e.Type) != SnapshotVideoSrcResponse {
		return VideoSrcResponse{}, invalid("not a videoSrcResponse")
	}
	if err := validateSnapshot(e); err != nil {
		return VideoSrcResponse{}, err
	}
	return VideoSrcResponse{
		Src:         *e.Src,
		Thumbnail:   *e.Thumbnail,
		Title:       *e.Title,
		CurrentTime: *e.CurrentTime,
		IsPlaying:   *e.IsPlaying,
	}, nil
}

func checkSeconds(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return invalid(field + " must be a non-negative number")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidEnvelope, msg)
}

func ptr[T any](v T) *T {
	return &v
}

// TopicSession builds the topic prefix shared by both peers of a session.
func TopicSession(topicBase, session string) string {
	return fmt.Sprintf("%s/session/%s", topicBase, session)
}

// TopicIntents builds the console to controller topic.
func TopicIntents(topicBase, session string) string {
	return TopicSession(topicBase, session) + "/intent"
}

// TopicSnapshots builds the controller to console topic.
func TopicSnapshots(topicBase, session string) string {
	return TopicSession(topicBase, session) + "/snapshot"
}

// TopicPresence builds the retained presence topic for a peer role.
func TopicPresence(topicBase, session string, role Role) string {
	return fmt.Sprintf("%s/presence/%s", TopicSession(topicBase, session), role)
}
