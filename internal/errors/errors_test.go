package errors

import (
	"fmt"
	"io"
	"net"
	"os"
	"testing"
)

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "accept", Addr: "[::]:25", Err: io.EOF, Retryable: true},
			want: "accept [::]:25: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "listen", Addr: ":25", Err: fmt.Errorf("bind failed")},
			want: "listen :25: bind failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Op: "read", Addr: "x", Err: io.EOF}
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestStorageError(t *testing.T) {
	err := WrapStorage("mkdir", "uid/001", os.ErrPermission)
	want := "storage mkdir uid/001: permission denied"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, os.ErrPermission) {
		t.Error("should unwrap to os.ErrPermission")
	}
	if !IsStorage(fmt.Errorf("sms: %w", err)) {
		t.Error("wrapped StorageError should be classified as storage")
	}
	if !IsStorage(ErrCircuitOpen) {
		t.Error("ErrCircuitOpen should be classified as storage")
	}
	if IsStorage(io.EOF) {
		t.Error("io.EOF is not a storage error")
	}
}

func TestSSHError_Format(t *testing.T) {
	err := WrapSSH("handshake", "10.0.0.5:52113", fmt.Errorf("connection reset"))
	want := "ssh handshake 10.0.0.5:52113: connection reset"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, err.Err) {
		t.Error("should unwrap to inner error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 1-65535",
				Hint:    "use a port between 1 and 65535",
			},
			want: "config: --port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "storage-root",
				Message: "must not be empty",
			},
			want: "config: --storage-root: must not be empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := Wrap("dial", "10.0.0.1:25", inner)

	if err.Op != "dial" || err.Addr != "10.0.0.1:25" {
		t.Errorf("wrong fields: Op=%q Addr=%q", err.Op, err.Addr)
	}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable network", &NetworkError{Op: "accept", Addr: "x", Err: io.EOF, Retryable: true}, true},
		{"non-retryable network", &NetworkError{Op: "accept", Addr: "x", Err: io.EOF, Retryable: false}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"temporary op error", &net.OpError{Op: "accept", Net: "tcp", Err: &net.DNSError{IsTemporary: true}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsClosed(t *testing.T) {
	if !IsClosed(&net.OpError{Op: "accept", Net: "tcp", Err: net.ErrClosed}) {
		t.Error("net.ErrClosed should be classified as closed")
	}
	if !IsClosed(ErrServerClosed) {
		t.Error("ErrServerClosed should be classified as closed")
	}
	if IsClosed(io.EOF) {
		t.Error("io.EOF is not a closed-listener error")
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{ErrServerClosed, ErrCircuitOpen, ErrTimeout, ErrBadHostKey}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
