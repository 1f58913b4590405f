package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// Generator creates random identifiers.
type Generator struct{}

// NewID returns a UUIDv4 string.
func (Generator) NewID() string {
	return uuid.NewString()
}

// NewSessionToken returns an opaque session token without dashes, safe to
// embed in MQTT topics and URLs.
func (Generator) NewSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewNodeID returns a peer id of the form vigil:<role>:<uuid>.
func (g Generator) NewNodeID(role string) string {
	return "vigil:" + role + ":" + g.NewID()
}
