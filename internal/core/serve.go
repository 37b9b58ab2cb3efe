package core

import (
	"context"

	"linesrv/internal/command"
	"linesrv/internal/metrics"
	"linesrv/internal/server"
	"linesrv/util"
)

// ServeMode runs the line server until the context is cancelled.
type ServeMode struct {
	Server *server.Server
	// Dispatcher is exposed so embedders can register extension
	// commands before Run.
	Dispatcher *command.Dispatcher
	Metrics    *metrics.Collector
	Logger     *util.Logger
}

// Run serves and, on the way out, logs the final counters at verbose
// level.
func (m *ServeMode) Run(ctx context.Context) error {
	err := m.Server.Run(ctx)
	m.Logger.Verbose("final stats: %s", m.Metrics.JSON())
	return err
}
