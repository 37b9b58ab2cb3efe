// Package transport opens the outbound connections used by client
// mode to talk to a running line server.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections.
type Dialer interface {
	// Dial establishes a connection to address.
	Dial(ctx context.Context, address string) (net.Conn, error)
}
