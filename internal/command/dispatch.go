package command

import (
	"context"
	"strings"

	"linesrv/internal/metrics"
	"linesrv/internal/retry"
	"linesrv/internal/store"
	"linesrv/util"
)

// Builtin enumerates the commands compiled into the server.
type Builtin int

const (
	Help Builtin = iota + 1
	Motd
	SMS
)

var builtinKeys = map[string]Builtin{
	"help": Help,
	"motd": Motd,
	"sms":  SMS,
}

// String returns the command key.
func (b Builtin) String() string {
	switch b {
	case Help:
		return "help"
	case Motd:
		return "motd"
	case SMS:
		return "sms"
	default:
		return "unknown"
	}
}

// LookupBuiltin resolves a lower-case key to a built-in command.
func LookupBuiltin(key string) (Builtin, bool) {
	b, ok := builtinKeys[key]
	return b, ok
}

const defaultStorageRoot = "uid"

// Options configures a [Dispatcher].
type Options struct {
	// Store receives sms messages.  Defaults to ./uid.
	Store *store.Store
	// Breaker guards Store.  Nil runs every store call.
	Breaker *retry.CircuitBreaker
	Metrics *metrics.Collector
	Logger  *util.Logger
}

// Dispatcher routes lines to the built-in commands and the registry.
// It is shared by all sessions.
type Dispatcher struct {
	registry *Registry
	store    *store.Store
	breaker  *retry.CircuitBreaker
	metrics  *metrics.Collector
	logger   *util.Logger
}

// NewDispatcher returns a Dispatcher backed by reg.  A nil reg gets a
// fresh [NewRegistry].
func NewDispatcher(reg *Registry, opts Options) *Dispatcher {
	if reg == nil {
		reg = NewRegistry()
	}
	if opts.Store == nil {
		opts.Store = store.New(defaultStorageRoot)
	}
	return &Dispatcher{
		registry: reg,
		store:    opts.Store,
		breaker:  opts.Breaker,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Registry returns the registration table consulted for non-built-in
// keys.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Split breaks a line into command tokens.  Consecutive spaces yield
// empty tokens; there is no quoting.
func Split(line string) []string {
	return strings.Split(line, " ")
}

// Dispatch runs the command named by the first token of line.  Unknown
// commands write nothing and return nil.  The returned error comes from
// the Responder or an extension handler and is fatal to the session.
func (d *Dispatcher) Dispatch(ctx context.Context, w Responder, line string) error {
	args := Split(line)
	key := strings.ToLower(args[0])

	if b, ok := LookupBuiltin(key); ok {
		d.metrics.CommandDispatched(key)
		switch b {
		case Help:
			return d.help(w)
		case Motd:
			return motd(w)
		case SMS:
			return d.sms(ctx, w, args)
		}
	}

	h, ok := d.registry.Lookup(key)
	if !ok {
		d.metrics.CommandDispatched("unknown")
		d.logger.Debug("ignoring unknown command %q", key)
		return nil
	}
	d.metrics.CommandDispatched(key)
	return h.Handle(ctx, w, args)
}
