package core

import "time"

// Config is runtime configuration for the console CLI, merged from flags
// and config.toml.
type Config struct {
	Broker    string
	Gateway   string
	Identity  string
	TopicBase string
	Session   string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	Timeout   time.Duration
}
