// Package server accepts connections and runs one session per
// connection.
//
// Connections arrive on a plain TCP listener and, optionally, on an SSH
// front door whose session channels are served exactly like TCP
// connections.  Every accepted connection, whatever its listener, gets
// the next session identifier from a counter owned by the accept loop.
// There is no admission control: connections are accepted without
// bound on count or rate.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	lserr "linesrv/internal/errors"
	"linesrv/internal/metrics"
	"linesrv/internal/retry"
	"linesrv/internal/session"
	"linesrv/util"
)

// DefaultAddress is the historical port of the line server.
const DefaultAddress = ":25"

// Options configures a [Server].
type Options struct {
	// Address is the TCP listen address.  Defaults to DefaultAddress.
	Address string

	// SSHAddress enables the SSH front door when set.
	SSHAddress string
	// SSHHostKey is a PEM private key file.  Empty generates an
	// ephemeral ed25519 key at startup.
	SSHHostKey string
	// Passphrase is asked for when SSHHostKey is encrypted.  Defaults
	// to prompting on the controlling terminal.
	Passphrase func() ([]byte, error)

	// MetricsAddress serves /metrics over HTTP when set.
	MetricsAddress string

	IdleTimeout   time.Duration
	MaxLineLength int
	// ShutdownGrace bounds how long the metrics endpoint may take to
	// stop.  Defaults to 5s.
	ShutdownGrace time.Duration

	Dispatcher session.Dispatcher
	Logger     *util.Logger
	Metrics    *metrics.Collector
}

// Server runs the accept loop and tracks live sessions.
type Server struct {
	opts   Options
	logger *util.Logger

	mu       sync.Mutex
	sessions map[int]*session.Session
	wg       sync.WaitGroup
}

// New returns a Server.  Nothing is bound until Run or Serve.
func New(opts Options) *Server {
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}
	return &Server{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[int]*session.Session),
	}
}

// Run binds every configured listener and serves until ctx is
// cancelled or a listener fails permanently.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return lserr.Wrap("listen", s.opts.Address, err)
	}
	s.logger.Info("listening on %s", ln.Addr())
	listeners := []net.Listener{ln}

	if s.opts.SSHAddress != "" {
		signer, err := LoadHostKey(s.opts.SSHHostKey, s.passphrase())
		if err != nil {
			ln.Close()
			return err
		}
		sln, err := ListenSSH(s.opts.SSHAddress, signer, s.logger.Named("ssh"))
		if err != nil {
			ln.Close()
			return err
		}
		s.logger.Info("ssh front door on %s (host key %s)", sln.Addr(), fingerprint(signer))
		listeners = append(listeners, sln)
	}

	if s.opts.MetricsAddress != "" {
		stop, err := s.serveMetrics(ctx)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return err
		}
		defer stop()
	}

	return s.Serve(ctx, listeners...)
}

// Serve accepts connections from every listener and runs a session for
// each until ctx is cancelled, then closes the listeners and waits for
// the live sessions to finish.  A listener failing with a non-temporary
// error stops the whole server and is returned.
func (s *Server) Serve(ctx context.Context, listeners ...net.Listener) error {
	if len(listeners) == 0 {
		return errors.New("serve: no listeners")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		for _, ln := range listeners {
			ln.Close()
		}
		s.wg.Wait()
	}()

	conns := make(chan net.Conn)
	errc := make(chan error, len(listeners))
	for _, ln := range listeners {
		go s.acceptLoop(ctx, ln, conns, errc)
	}

	// The counter is only touched here; sessions get their id by value.
	id := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Verbose("shutting down, waiting for %d session(s)", s.ActiveSessions())
			return nil
		case err := <-errc:
			return err
		case conn := <-conns:
			s.start(ctx, conn, id)
			id++
		}
	}
}

// ActiveSessions returns the number of sessions currently running.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) start(ctx context.Context, conn net.Conn, id int) {
	sess := session.New(conn, session.Options{
		ID:            id,
		Dispatcher:    s.opts.Dispatcher,
		Logger:        s.logger,
		Metrics:       s.opts.Metrics,
		IdleTimeout:   s.opts.IdleTimeout,
		MaxLineLength: s.opts.MaxLineLength,
	})

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, id)
			s.mu.Unlock()
		}()
		if err := sess.Run(ctx); err != nil {
			s.logger.Verbose("session %d ended: %v", id, err)
		}
	}()
}

// acceptLoop feeds accepted connections to conns.  Temporary accept
// errors are retried with exponential backoff.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, conns chan<- net.Conn, errc chan<- error) {
	addr := ln.Addr().String()
	backoff := retry.AcceptBackoff()
	for {
		var conn net.Conn
		err := backoff.Do(ctx, func(attempt int) error {
			c, err := ln.Accept()
			if err == nil {
				conn = c
				return nil
			}
			if ctx.Err() != nil || lserr.IsClosed(err) {
				return retry.Permanent(lserr.ErrServerClosed)
			}
			nerr := lserr.Wrap("accept", addr, err)
			s.opts.Metrics.RecordError(metrics.ErrorAccept)
			if !nerr.Retryable {
				return retry.Permanent(nerr)
			}
			s.logger.Warn("%v; retrying in %v", nerr, backoff.Delay(attempt))
			return nerr
		})
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, lserr.ErrServerClosed) {
				errc <- err
			}
			return
		}

		select {
		case conns <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// serveMetrics starts the /metrics endpoint and returns its stop
// function.
func (s *Server) serveMetrics(ctx context.Context) (func(), error) {
	ln, err := net.Listen("tcp", s.opts.MetricsAddress)
	if err != nil {
		return nil, lserr.Wrap("listen", s.opts.MetricsAddress, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.opts.Metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server: %v", err)
		}
	}()
	s.logger.Info("metrics on http://%s/metrics", ln.Addr())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("metrics shutdown: %v", err)
		}
	}, nil
}

func (s *Server) passphrase() func() ([]byte, error) {
	if s.opts.Passphrase != nil {
		return s.opts.Passphrase
	}
	return func() ([]byte, error) {
		return TerminalPassphrase(fmt.Sprintf("Enter passphrase for %s: ", s.opts.SSHHostKey))
	}
}
