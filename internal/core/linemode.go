package core

import (
	"bytes"
	"io"
)

// endOfTransmission is the byte that ends a session on the server.
const endOfTransmission = 0x1A

// lineReader rewrites local input for the server's framing: every "\n"
// becomes "\r\n\r\n" so one typed line is one framed line, a "\r"
// before it is dropped, and end of input sends the end-of-transmission
// byte once before reporting EOF.
type lineReader struct {
	r       io.Reader
	pending []byte
	raw     []byte
	eof     bool
}

// NewLineReader wraps r for interactive use against a line server.
func NewLineReader(r io.Reader) io.Reader {
	return &lineReader{r: r, raw: make([]byte, 4096)}
}

func (l *lineReader) Read(p []byte) (int, error) {
	for len(l.pending) == 0 {
		if l.eof {
			return 0, io.EOF
		}
		n, err := l.r.Read(l.raw)
		l.pending = translate(l.pending, l.raw[:n])
		if err == io.EOF {
			l.eof = true
			l.pending = append(l.pending, endOfTransmission)
		} else if err != nil {
			if len(l.pending) > 0 {
				break
			}
			return 0, err
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func translate(dst, src []byte) []byte {
	for len(src) > 0 {
		i := bytes.IndexByte(src, '\n')
		if i < 0 {
			return append(dst, bytes.TrimSuffix(src, []byte{'\r'})...)
		}
		dst = append(dst, bytes.TrimSuffix(src[:i], []byte{'\r'})...)
		dst = append(dst, "\r\n\r\n"...)
		src = src[i+1:]
	}
	return dst
}
