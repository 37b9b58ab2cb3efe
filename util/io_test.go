package util

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func TestBidirectionalCopy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Server: greet, then echo until the client half-closes.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("cid-000> ")) //nolint:errcheck
		io.Copy(conn, conn)             //nolint:errcheck
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	input := bytes.NewBufferString("help\r\n\r\n")
	output := &bytes.Buffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := BidirectionalCopy(ctx, conn, input, output); err != nil {
		t.Fatalf("BidirectionalCopy: %v", err)
	}

	if got, want := output.String(), "cid-000> help\r\n\r\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestIsHarmless(t *testing.T) {
	for _, err := range []error{nil, io.EOF, net.ErrClosed, io.ErrClosedPipe} {
		if !IsHarmless(err) {
			t.Errorf("%v should be harmless", err)
		}
	}
	if IsHarmless(io.ErrUnexpectedEOF) {
		t.Error("ErrUnexpectedEOF should NOT be harmless")
	}
}
