package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"linesrv/internal/transport"
	"linesrv/util"
)

// ConnectMode dials a line server and relays it to the local terminal
// or pipe.
type ConnectMode struct {
	Dialer  transport.Dialer
	Address string
	// LineMode forces line translation even when stdin is not a
	// terminal.  On a terminal it is always on.
	LineMode bool
	Logger   *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// lineMode reports whether local input should be translated: forced by
// the flag, or because stdin is an interactive terminal.
func (m *ConnectMode) lineMode() bool {
	if m.LineMode {
		return true
	}
	f, ok := m.stdin().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run dials the server and relays until it hangs up.
func (m *ConnectMode) Run(ctx context.Context) error {
	m.Logger.Verbose("connecting to %s", m.Address)
	conn, err := m.Dialer.Dial(ctx, m.Address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	defer conn.Close()
	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	in := m.stdin()
	if m.lineMode() {
		m.Logger.Debug("line mode on")
		in = NewLineReader(in)
	}
	return util.BidirectionalCopy(ctx, conn, in, m.stdout())
}
