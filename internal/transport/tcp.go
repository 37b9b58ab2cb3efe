package transport

import (
	"context"
	"net"
	"time"

	lserr "linesrv/internal/errors"
	"linesrv/internal/retry"
	"linesrv/util"
)

// TCPDialer dials the line server over plain TCP.
type TCPDialer struct {
	// Timeout bounds each connection attempt.  0 means no timeout
	// beyond the context.
	Timeout time.Duration
	// Backoff retries attempts that fail with a temporary error.  Nil
	// tries exactly once.
	Backoff *retry.Backoff
	Logger  *util.Logger
}

// Dial connects to address.  Failures are returned as
// *errors.NetworkError with op "dial".
func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	if d.Backoff == nil {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, lserr.Wrap("dial", address, err)
		}
		return conn, nil
	}

	var conn net.Conn
	err := d.Backoff.Do(ctx, func(attempt int) error {
		c, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			conn = c
			return nil
		}
		nerr := lserr.Wrap("dial", address, err)
		if ctx.Err() != nil || !nerr.Retryable {
			return retry.Permanent(nerr)
		}
		d.Logger.Verbose("%v (attempt %d)", nerr, attempt)
		return nerr
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
