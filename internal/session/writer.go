package session

import (
	"io"
	"strings"

	"linesrv/internal/metrics"
)

const crlf = "\r\n"

// eol rewrites CR, LF and CRLF to CRLF.
var eol = strings.NewReplacer("\r\n", crlf, "\r", crlf, "\n", crlf)

// Writer renders replies and prompts onto a connection.  Every call is
// a single Write that returns once the transport has accepted the
// bytes, so a prompt is always on the wire before the next read.
type Writer struct {
	w       io.Writer
	metrics *metrics.Collector
}

// NewWriter returns a Writer for w.  m may be nil.
func NewWriter(w io.Writer, m *metrics.Collector) *Writer {
	return &Writer{w: w, metrics: m}
}

// SendMessage writes text followed by CRLF.  A non-empty tag is
// rendered as a "<tag>> " prefix.  Line breaks inside text are
// normalised to CRLF.
func (w *Writer) SendMessage(text, tag string) error {
	var b strings.Builder
	if tag != "" {
		b.WriteString(tag)
		b.WriteString("> ")
	}
	b.WriteString(eol.Replace(text))
	b.WriteString(crlf)
	return w.write(b.String())
}

// SetPrompt writes "<prompt>> " without a line terminator.
func (w *Writer) SetPrompt(prompt string) error {
	return w.write(prompt + "> ")
}

func (w *Writer) write(s string) error {
	n, err := io.WriteString(w.w, s)
	w.metrics.BytesSent(n)
	return err
}
