package vigild

import (
	"github.com/mikey-austin/vigil/internal/adapters/idgen"
)

// ResolveIdentity fills the session token and controller node id when the
// config leaves them empty. It reports whether a session was generated, in
// which case consoles need to be told the token.
func ResolveIdentity(cfg *Config, ids idgen.Generator) bool {
	generated := false
	if cfg.Server.Session == "" {
		cfg.Server.Session = ids.NewSessionToken()
		generated = true
	}
	if cfg.Modules.Controller.NodeID == "" {
		if cfg.Server.Identity != "" {
			cfg.Modules.Controller.NodeID = "vigil:controller:" + cfg.Server.Identity
		} else {
			cfg.Modules.Controller.NodeID = ids.NewNodeID("controller")
		}
	}
	return generated
}
