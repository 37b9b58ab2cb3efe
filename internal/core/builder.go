package core

import (
	"linesrv/config"
	"linesrv/internal/command"
	"linesrv/internal/metrics"
	"linesrv/internal/retry"
	"linesrv/internal/server"
	"linesrv/internal/store"
	"linesrv/internal/transport"
	"linesrv/util"
)

// Build constructs the Mode selected by cfg.  cfg must have passed
// Validate.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.ClientMode() {
		return buildConnect(cfg, logger), nil
	}
	return buildServe(cfg, logger), nil
}

func buildConnect(cfg *config.Config, logger *util.Logger) Mode {
	return &ConnectMode{
		Dialer: &transport.TCPDialer{
			Timeout: config.DefaultDialTimeout,
			Logger:  logger,
		},
		Address:  cfg.Connect,
		LineMode: cfg.LineMode,
		Logger:   logger,
	}
}

func buildServe(cfg *config.Config, logger *util.Logger) Mode {
	collector := metrics.New()

	breakerCfg := retry.DefaultCircuitBreakerConfig()
	storeLog := logger.Named("store")
	breakerCfg.OnStateChange = func(from, to retry.State) {
		storeLog.Warn("circuit %s -> %s", from, to)
	}

	dispatcher := command.NewDispatcher(command.NewRegistry(), command.Options{
		Store:   store.New(cfg.StorageRoot),
		Breaker: retry.NewCircuitBreaker(breakerCfg),
		Metrics: collector,
		Logger:  logger,
	})

	return &ServeMode{
		Server: server.New(server.Options{
			Address:        util.FormatAddr(cfg.Host, cfg.Port),
			SSHAddress:     util.ListenAddr(cfg.Host, cfg.SSHPort),
			SSHHostKey:     cfg.SSHHostKey,
			MetricsAddress: cfg.MetricsAddr,
			IdleTimeout:    cfg.IdleTimeout.Duration,
			MaxLineLength:  cfg.MaxLineLength,
			ShutdownGrace:  config.DefaultShutdownGrace,
			Dispatcher:     dispatcher,
			Logger:         logger,
			Metrics:        collector,
		}),
		Dispatcher: dispatcher,
		Metrics:    collector,
		Logger:     logger,
	}
}
