// Package command maps input lines to behaviour.
//
// A line is split on single spaces; the first token, lower-cased, is the
// command key and the full token slice (key included) is handed to the
// handler, so arguments start at index 1.  The built-in commands form a
// closed set resolved by [LookupBuiltin]; everything else goes through
// an open [Registry] that external collaborators extend with
// [Registry.Register].  Unknown keys are ignored without a reply.
package command

import (
	"context"

	lserr "linesrv/internal/errors"
)

// ServerTag identifies replies that originate from the server itself.
const ServerTag = "#000-000"

// QuitKeyword ends a session.  The session loop handles it before
// dispatch, so it can never be registered.
const QuitKeyword = "quit"

var (
	// ErrInvalidCommand is returned when registering an empty key, a key
	// containing whitespace, or the quit keyword.
	ErrInvalidCommand = lserr.New("invalid command key")

	// ErrDuplicateCommand is returned when registering a key that is
	// already taken, including the built-in keys.
	ErrDuplicateCommand = lserr.New("command already registered")
)

// Responder sends replies back to the peer.  A non-empty tag is
// rendered as a "<tag>> " prefix.
type Responder interface {
	SendMessage(text, tag string) error
}

// Handler executes one command.  args holds every token of the line,
// with the command itself at index 0.  A returned error ends the
// session, so handlers report bad input through the Responder instead.
type Handler interface {
	Handle(ctx context.Context, w Responder, args []string) error
}

// HandlerFunc adapts a plain function to [Handler].
type HandlerFunc func(ctx context.Context, w Responder, args []string) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, w Responder, args []string) error {
	return f(ctx, w, args)
}

// Describer is implemented by handlers that want a line in the help
// listing.
type Describer interface {
	Summary() string
}

type described struct {
	Handler
	summary string
}

func (d described) Summary() string { return d.summary }

// Describe attaches a help summary to h.
func Describe(h Handler, summary string) Handler {
	return described{Handler: h, summary: summary}
}
