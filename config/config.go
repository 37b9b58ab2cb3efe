// Package config defines the runtime configuration for linesrv and the
// rules that decide whether a configuration is usable.
package config

import (
	"net"
	"strconv"
	"time"

	lserr "linesrv/internal/errors"
)

// Config holds every tuneable for the server and the client mode.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	IdleTimeout   Duration `toml:"idle_timeout"`    // 0 = wait forever
	MaxLineLength int      `toml:"max_line_length"` // 0 = unbounded

	// ── Storage ──────────────────────────────────────────────────────
	StorageRoot string `toml:"storage_root"`

	// ── SSH front door ───────────────────────────────────────────────
	SSHPort    int    `toml:"ssh_port"`     // 0 = disabled
	SSHHostKey string `toml:"ssh_host_key"` // PEM file; empty = ephemeral key

	// ── Metrics ──────────────────────────────────────────────────────
	MetricsAddr string `toml:"metrics_addr"` // host:port; empty = disabled

	// ── Client ───────────────────────────────────────────────────────
	Connect  string `toml:"-"` // host:port; non-empty selects client mode
	LineMode bool   `toml:"-"` // translate "\n" to "\r\n\r\n"

	// ── Output ───────────────────────────────────────────────────────
	Verbose int `toml:"verbose"`
}

// Duration is a time.Duration that decodes from strings such as "90s"
// in TOML files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ClientMode reports whether the configuration selects the client.
func (c *Config) ClientMode() bool { return c.Connect != "" }

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Every failure is a *errors.ConfigError naming the offending flag.
func (c *Config) Validate() error {
	if c.ClientMode() {
		if _, port, err := net.SplitHostPort(c.Connect); err != nil || !validPort(port) {
			return &lserr.ConfigError{
				Field:   "connect",
				Value:   c.Connect,
				Message: "expected host:port",
				Hint:    "e.g. --connect 127.0.0.1:25",
			}
		}
		return nil
	}

	if c.Port < 1 || c.Port > 65535 {
		return &lserr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
			Hint:    "ports below 1024 need elevated privileges; try -p 2525",
		}
	}
	if c.SSHPort < 0 || c.SSHPort > 65535 {
		return &lserr.ConfigError{
			Field:   "ssh-port",
			Value:   c.SSHPort,
			Message: "out of range 1-65535",
		}
	}
	if c.SSHPort != 0 && c.SSHPort == c.Port {
		return &lserr.ConfigError{
			Field:   "ssh-port",
			Value:   c.SSHPort,
			Message: "must differ from --port",
			Hint:    "the plain and SSH listeners cannot share a port",
		}
	}
	if c.SSHHostKey != "" && c.SSHPort == 0 {
		return &lserr.ConfigError{
			Field:   "ssh-host-key",
			Value:   c.SSHHostKey,
			Message: "has no effect without --ssh-port",
		}
	}
	if c.StorageRoot == "" {
		return &lserr.ConfigError{
			Field:   "storage-root",
			Message: "must not be empty",
			Hint:    "use --storage-root . to store under the working directory",
		}
	}
	if c.IdleTimeout.Duration < 0 {
		return &lserr.ConfigError{
			Field:   "idle-timeout",
			Value:   c.IdleTimeout.Duration,
			Message: "must not be negative",
			Hint:    "use 0 to disable the timeout",
		}
	}
	if c.MaxLineLength < 0 {
		return &lserr.ConfigError{
			Field:   "max-line-length",
			Value:   c.MaxLineLength,
			Message: "must not be negative",
			Hint:    "use 0 for unbounded lines",
		}
	}
	if c.MetricsAddr != "" {
		if _, port, err := net.SplitHostPort(c.MetricsAddr); err != nil || !validPort(port) {
			return &lserr.ConfigError{
				Field:   "metrics-addr",
				Value:   c.MetricsAddr,
				Message: "expected host:port",
				Hint:    "e.g. --metrics-addr 127.0.0.1:9125",
			}
		}
	}
	return nil
}

func validPort(s string) bool {
	p, err := strconv.Atoi(s)
	return err == nil && p >= 1 && p <= 65535
}
