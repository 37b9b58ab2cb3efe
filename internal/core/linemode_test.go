package core

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "\x1a"},
		{"one line", "help\n", "help\r\n\r\n\x1a"},
		{"crlf input", "help\r\nmotd\r\n", "help\r\n\r\nmotd\r\n\r\n\x1a"},
		{"unterminated", "quit", "quit\x1a"},
		{"blank line", "\n", "\r\n\r\n\x1a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewLineReader(strings.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestLineReader_OneByteReads(t *testing.T) {
	r := NewLineReader(iotest.OneByteReader(strings.NewReader("sms #001-000 hi\r\nquit\n")))
	got, err := io.ReadAll(iotest.OneByteReader(r))
	require.NoError(t, err)
	assert.Equal(t, "sms #001-000 hi\r\n\r\nquit\r\n\r\n\x1a", string(got))
}

func TestLineReader_Error(t *testing.T) {
	boom := errors.New("tty gone")
	_, err := io.ReadAll(NewLineReader(iotest.ErrReader(boom)))
	assert.ErrorIs(t, err, boom)
}
