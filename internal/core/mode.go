// Package core composes the lower layers into the two things the
// binary can do: serve the line protocol, or connect to a running
// server as an interactive client.
//
// Architecture layers (bottom → top):
//
//	framer, store  →  command  →  session  →  server  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of linesrv.  Each mode owns its
// lifecycle from startup to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
