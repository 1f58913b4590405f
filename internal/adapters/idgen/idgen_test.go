package idgen

import (
	"strings"
	"testing"
)

func TestSessionTokenIsTopicSafe(t *testing.T) {
	token := Generator{}.NewSessionToken()
	if len(token) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", token)
	}
	if strings.ContainsAny(token, "-/+#") {
		t.Fatalf("token not topic safe: %q", token)
	}
}

func TestNodeIDUnique(t *testing.T) {
	g := Generator{}
	a := g.NewNodeID("console")
	b := g.NewNodeID("console")
	if a == b {
		t.Fatalf("expected unique ids")
	}
	if !strings.HasPrefix(a, "vigil:console:") {
		t.Fatalf("unexpected id %q", a)
	}
}
