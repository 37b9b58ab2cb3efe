package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultHost binds every interface.
	DefaultHost = "0.0.0.0"

	// DefaultPort is the historical port of the line server.
	DefaultPort = 25

	// DefaultStorageRoot holds one directory per three-digit user id.
	DefaultStorageRoot = "uid"

	// DefaultIdleTimeout of zero keeps a silent peer's session open
	// indefinitely.
	DefaultIdleTimeout = time.Duration(0)

	// DefaultMaxLineLength of zero leaves lines unbounded.
	DefaultMaxLineLength = 0

	// DefaultVerbose logs session open/close at info level.
	DefaultVerbose = 1

	// DefaultDialTimeout bounds the client mode's connect.
	DefaultDialTimeout = 10 * time.Second

	// DefaultShutdownGrace is how long the metrics endpoint gets to
	// finish in-flight scrapes on shutdown.
	DefaultShutdownGrace = 5 * time.Second
)

// Defaults returns a Config populated with the default values.
func Defaults() *Config {
	return &Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		StorageRoot:   DefaultStorageRoot,
		IdleTimeout:   Duration{DefaultIdleTimeout},
		MaxLineLength: DefaultMaxLineLength,
		Verbose:       DefaultVerbose,
	}
}
