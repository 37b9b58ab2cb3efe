package config

// loader.go - configuration loading from a TOML file and from
// environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. Config file (--config)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ── Config file ──────────────────────────────────────────────────────

// LoadFile decodes the TOML file at path over cfg.  Keys the file sets
// replace the current values; keys it omits are left untouched.  The
// returned warnings name keys that were present but not understood.
func LoadFile(path string, cfg *Config) (warnings []string, err error) {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("config file %s: %s", path, perr.ErrorWithPosition())
		}
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("config file %s: unknown key %q ignored", path, key.String()))
	}
	return warnings, nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the LINESRV_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it BEFORE CLI flag
// parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LINESRV_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("LINESRV_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("LINESRV_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
	if v := envDuration("LINESRV_IDLE_TIMEOUT"); v > 0 {
		cfg.IdleTimeout = Duration{v}
	}
	if v := envInt("LINESRV_MAX_LINE_LENGTH"); v > 0 {
		cfg.MaxLineLength = v
	}

	// SSH front door
	if v := envInt("LINESRV_SSH_PORT"); v > 0 {
		cfg.SSHPort = v
	}
	if v := os.Getenv("LINESRV_SSH_HOST_KEY"); v != "" {
		cfg.SSHHostKey = v
	}

	// Metrics
	if v := os.Getenv("LINESRV_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	// Client
	if envBool("LINESRV_LINE_MODE") {
		cfg.LineMode = true
	}

	// Output
	if v := envInt("LINESRV_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
