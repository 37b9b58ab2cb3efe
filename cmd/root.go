// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	flag "github.com/spf13/pflag"

	"linesrv/config"
	"linesrv/internal/core"
	"linesrv/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X linesrv/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version, --help and --dry-run output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// errHelp is returned by parse when the caller only wanted usage or
// version output.
var errHelp = errors.New("help requested")

// Execute parses args and runs the selected mode.
func Execute(ctx context.Context, args []string) error {
	cfg, dryRun, err := parse(args)
	if errors.Is(err, errHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintln(stdout, "# configuration is valid")
		return toml.NewEncoder(stdout).Encode(cfg)
	}

	logger := util.NewLogger(cfg.Verbose)
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// parse builds the effective configuration.  Precedence, highest
// first: flags, LINESRV_* environment, --config file, defaults.
func parse(args []string) (cfg *config.Config, dryRun bool, err error) {
	fv := config.Defaults()
	fs := flag.NewFlagSet("linesrv", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// ── listener ─────────────────────────────────────────────────
	fs.StringVar(&fv.Host, "host", fv.Host, "Address to bind")
	fs.IntVarP(&fv.Port, "port", "p", fv.Port, "TCP port for the line protocol")
	fs.DurationVar(&fv.IdleTimeout.Duration, "idle-timeout", fv.IdleTimeout.Duration, "Close sessions idle this long (0 = never)")
	fs.IntVar(&fv.MaxLineLength, "max-line-length", fv.MaxLineLength, "Longest accepted line in bytes (0 = unbounded)")

	// ── storage ──────────────────────────────────────────────────
	fs.StringVar(&fv.StorageRoot, "storage-root", fv.StorageRoot, "Directory holding one folder per user id")

	// ── SSH front door ───────────────────────────────────────────
	fs.IntVar(&fv.SSHPort, "ssh-port", fv.SSHPort, "Also serve the shell over SSH on this port (0 = off)")
	fs.StringVar(&fv.SSHHostKey, "ssh-host-key", fv.SSHHostKey, "PEM host key for --ssh-port (default: ephemeral)")

	// ── metrics ──────────────────────────────────────────────────
	fs.StringVar(&fv.MetricsAddr, "metrics-addr", fv.MetricsAddr, "Serve Prometheus metrics on host:port")

	// ── client ───────────────────────────────────────────────────
	fs.StringVar(&fv.Connect, "connect", "", "Connect to a running server at host:port instead of serving")
	fs.BoolVar(&fv.LineMode, "line-mode", false, "Translate typed newlines for the server (automatic on a terminal)")

	// ── output ───────────────────────────────────────────────────
	var verbose int
	var quiet bool
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only log errors")

	var configPath string
	var showVersion, showHelp bool
	fs.StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration, print it and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if showHelp {
		printUsage(fs)
		return nil, false, errHelp
	}
	if showVersion {
		fmt.Fprintf(stdout, "linesrv %s\n", version)
		return nil, false, errHelp
	}
	if fs.NArg() > 0 {
		return nil, false, fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── file, then environment ───────────────────────────────────
	cfg = config.Defaults()
	if configPath != "" {
		warnings, err := config.LoadFile(configPath, cfg)
		if err != nil {
			return nil, false, err
		}
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, "linesrv: "+w)
		}
	}
	config.LoadFromEnv(cfg)

	// ── flags the user actually set ──────────────────────────────
	overrides := map[string]func(){
		"host":            func() { cfg.Host = fv.Host },
		"port":            func() { cfg.Port = fv.Port },
		"idle-timeout":    func() { cfg.IdleTimeout = fv.IdleTimeout },
		"max-line-length": func() { cfg.MaxLineLength = fv.MaxLineLength },
		"storage-root":    func() { cfg.StorageRoot = fv.StorageRoot },
		"ssh-port":        func() { cfg.SSHPort = fv.SSHPort },
		"ssh-host-key":    func() { cfg.SSHHostKey = fv.SSHHostKey },
		"metrics-addr":    func() { cfg.MetricsAddr = fv.MetricsAddr },
		"connect":         func() { cfg.Connect = fv.Connect },
		"line-mode":       func() { cfg.LineMode = fv.LineMode },
		"verbose":         func() { cfg.Verbose = config.DefaultVerbose + verbose },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
	// -q wins over -v regardless of order.
	if quiet {
		cfg.Verbose = 0
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, dryRun, nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `linesrv – line-oriented message server v%s

Usage:
  linesrv [options]                           Serve (default port 25)
  linesrv --connect <host:port> [options]     Interactive client

Options:
`, version)
	fs.SetOutput(stdout)
	fs.PrintDefaults()
	fmt.Fprintf(stdout, `
Commands (one per line, a line ends with an empty line):
  help  motd  sms #DDD-000 <text>  quit

Examples:
  linesrv -p 2525 --storage-root /var/lib/linesrv
  linesrv -p 2525 --ssh-port 2222 --metrics-addr 127.0.0.1:9125
  linesrv --connect 127.0.0.1:2525
  printf 'sms #001-000 hi\r\n\r\n' | linesrv --connect 127.0.0.1:2525
`)
}
