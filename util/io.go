package util

import (
	"context"
	"errors"
	"io"
	"net"
)

// copyPooled is io.Copy with a buffer borrowed from [BufPool].
func copyPooled(dst io.Writer, src io.Reader) (int64, error) {
	buf := GetBuf()
	defer PutBuf(buf)
	return io.CopyBuffer(dst, src, *buf)
}

// BidirectionalCopy shuffles data between a server connection and a
// local reader/writer pair (stdin/stdout for the client mode) until the
// server hangs up or the context is cancelled.  End of local input only
// half-closes the connection, so the farewell the server sends after a
// sentinel or quit still reaches w.  Once the server side is done the
// call returns without waiting for r, which may be a terminal blocked
// in Read.
func BidirectionalCopy(ctx context.Context, conn net.Conn, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outErr := make(chan error, 1)
	inErr := make(chan error, 1)

	// network → writer
	go func() {
		_, err := copyPooled(w, conn)
		outErr <- err
		cancel()
	}()

	// reader → network
	go func() {
		_, err := copyPooled(conn, r)
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite() //nolint:errcheck
		}
		inErr <- err
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock any pending reads/writes

	errs := []error{<-outErr}
	select {
	case err := <-inErr:
		errs = append(errs, err)
	default:
	}
	for _, err := range errs {
		if err != nil && !IsHarmless(err) {
			return err
		}
	}
	return nil
}

// IsHarmless returns true for errors that are expected when a peer or
// the local side shuts a connection down.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
