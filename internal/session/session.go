// Package session runs the prompt/response loop for one connection.
//
// A session greets the peer with its prompt, then pulls framed lines
// and hands each one to a dispatcher, re-prompting after every command.
// "quit" (any case) or the 0x1A sentinel ends the session with a
// farewell; end of stream or a transport failure closes it silently.
// Nothing a session does affects any other session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"linesrv/internal/command"
	lserr "linesrv/internal/errors"
	"linesrv/internal/framer"
	"linesrv/internal/metrics"
	"linesrv/util"
)

// Farewell is sent, untagged, when the peer quits.
const Farewell = "Bye Bye!"

// State is a step of the session lifecycle.
type State int32

const (
	Greeting State = iota
	AwaitingLine
	Dispatching
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Greeting:
		return "greeting"
	case AwaitingLine:
		return "awaiting-line"
	case Dispatching:
		return "dispatching"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Dispatcher executes one input line.  *command.Dispatcher implements
// it.
type Dispatcher interface {
	Dispatch(ctx context.Context, w command.Responder, line string) error
}

// Options configures a [Session].
type Options struct {
	// ID is the identifier assigned by the listener.
	ID int
	// Dispatcher defaults to a command.Dispatcher storing under ./uid.
	Dispatcher Dispatcher
	Logger     *util.Logger
	Metrics    *metrics.Collector

	// IdleTimeout closes the session when no line arrives in time.
	// 0 waits forever.
	IdleTimeout time.Duration
	// MaxLineLength bounds a single line; 0 is unbounded.
	MaxLineLength int
}

// Session owns one connection from greeting to close.
type Session struct {
	id     int
	prompt string
	conn   net.Conn

	framer     *framer.Framer
	writer     *Writer
	dispatcher Dispatcher
	logger     *util.Logger
	metrics    *metrics.Collector
	idle       time.Duration

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// New binds a session to conn.  The session takes ownership of conn and
// closes it when Run returns.
func New(conn net.Conn, opts Options) *Session {
	if opts.Dispatcher == nil {
		opts.Dispatcher = command.NewDispatcher(nil, command.Options{
			Metrics: opts.Metrics,
			Logger:  opts.Logger,
		})
	}
	prompt := Prompt(opts.ID)
	s := &Session{
		id:         opts.ID,
		prompt:     prompt,
		conn:       conn,
		framer:     framer.New(conn),
		writer:     NewWriter(conn, opts.Metrics),
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger.Named(prompt),
		metrics:    opts.Metrics,
		idle:       opts.IdleTimeout,
	}
	s.framer.MaxLineLength = opts.MaxLineLength
	s.framer.OnRead = opts.Metrics.BytesReceived
	return s
}

// Prompt returns the prompt text for a session id, e.g. "cid-007".
func Prompt(id int) string { return fmt.Sprintf("cid-%03d", id) }

// ID returns the session identifier.
func (s *Session) ID() int { return s.id }

// Prompt returns the session's prompt text.
func (s *Session) Prompt() string { return s.prompt }

// State returns the current lifecycle state.  Safe to call from any
// goroutine.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Close closes the connection.  It is safe to call more than once and
// from any goroutine; a blocked Run returns shortly after.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Run drives the session until the peer quits, the stream ends, a
// transport error occurs or ctx is cancelled.  It returns nil for a
// regular end of session and the failure otherwise.  The connection is
// closed on every path.
func (s *Session) Run(ctx context.Context) error {
	start := time.Now()
	s.metrics.SessionOpened()
	s.logger.Info("session %d opened from %s", s.id, s.conn.RemoteAddr())

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer func() {
		stop()
		s.setState(Closing)
		s.Close()
		s.setState(Closed)
		s.metrics.SessionClosed(time.Since(start))
		s.logger.Info("session %d closed", s.id)
	}()

	s.setState(Greeting)
	if err := s.writer.SetPrompt(s.prompt); err != nil {
		return s.fail(ctx, "write", err)
	}

	for {
		s.setState(AwaitingLine)
		if s.idle > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.idle)) //nolint:errcheck
		}

		line, err := s.framer.Next()
		switch {
		case err == nil && strings.EqualFold(line, command.QuitKeyword),
			errors.Is(err, framer.ErrEndOfTransmission):
			return s.farewell()
		case errors.Is(err, io.EOF):
			s.logger.Verbose("peer closed the connection")
			return nil
		case errors.Is(err, framer.ErrLineTooLong):
			s.metrics.RecordError(metrics.ErrorArgument)
			return fmt.Errorf("session %d: %w", s.id, err)
		case errors.Is(err, os.ErrDeadlineExceeded):
			s.logger.Verbose("idle for %v, closing", s.idle)
			return fmt.Errorf("session %d: %w", s.id, lserr.ErrTimeout)
		case err != nil:
			return s.fail(ctx, "read", err)
		}

		s.setState(Dispatching)
		s.logger.Debug("line %q", line)
		if err := s.dispatcher.Dispatch(ctx, s.writer, line); err != nil {
			return s.fail(ctx, "dispatch", err)
		}
		if err := s.writer.SetPrompt(s.prompt); err != nil {
			return s.fail(ctx, "write", err)
		}
	}
}

func (s *Session) farewell() error {
	s.setState(Closing)
	if err := s.writer.SendMessage(Farewell, ""); err != nil {
		s.logger.Debug("farewell not delivered: %v", err)
	}
	return nil
}

// fail classifies an error that ends the session.  Errors caused by our
// own shutdown closing the connection are not failures.
func (s *Session) fail(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		s.logger.Verbose("closed by shutdown")
		return nil
	}
	s.metrics.RecordError(metrics.ErrorTransport)
	s.logger.Verbose("%s failed: %v", op, err)
	return lserr.Wrap(op, s.conn.RemoteAddr().String(), err)
}
