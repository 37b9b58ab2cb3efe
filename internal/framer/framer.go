// Package framer turns a byte stream into logical command lines.
//
// A line ends only after two consecutive line terminators, where a
// terminator is CR, LF or the pair CRLF.  So "abc\r\n" alone never
// yields "abc" but "abc\r\n\r\n", "abc\n\n" and "abc\r\r" all do.
// The byte 0x1A ends the stream out of band.  Input is read through a
// bufio.Reader and examined one byte at a time, so partial deliveries
// need no special handling.
package framer

import (
	"bufio"
	"errors"
	"io"
	"iter"
)

const (
	cr  = '\r'
	lf  = '\n'
	sub = 0x1A // end-of-transmission sentinel
)

var (
	// ErrEndOfTransmission is returned when the peer sends the 0x1A
	// sentinel.  Any partially accumulated line is discarded.
	ErrEndOfTransmission = errors.New("end of transmission")

	// ErrLineTooLong is returned when a line exceeds MaxLineLength.
	ErrLineTooLong = errors.New("line too long")
)

// Framer yields lines from an underlying reader.  It is not safe for
// concurrent use; each session owns exactly one.
type Framer struct {
	r      *bufio.Reader
	buf    []byte
	run    int  // consecutive terminators seen
	lastCR bool // previous byte was CR, so an LF completes its CRLF

	// MaxLineLength bounds the accumulated line; 0 means unbounded.
	MaxLineLength int

	// OnRead, when set, is called with the number of bytes consumed
	// from the stream for each line or terminal condition.
	OnRead func(n int)

	consumed int
}

// New returns a Framer reading from r.
func New(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReader(r)}
}

// Next returns the next complete line.  It returns
// ErrEndOfTransmission when the sentinel arrives and io.EOF when the
// stream ends; content after a lone trailing newline is lost in both
// cases.  Other read errors are returned as-is.
func (f *Framer) Next() (string, error) {
	defer f.flushConsumed()
	for {
		c, err := f.r.ReadByte()
		if err != nil {
			f.reset()
			return "", err
		}
		f.consumed++

		afterCR := f.lastCR
		f.lastCR = c == cr

		switch c {
		case sub:
			f.reset()
			return "", ErrEndOfTransmission
		case lf:
			if afterCR {
				continue
			}
			fallthrough
		case cr:
			f.run++
			if f.run > 1 {
				line := string(f.buf)
				f.buf = f.buf[:0]
				f.run = 0
				return line, nil
			}
		default:
			f.run = 0
			if f.MaxLineLength > 0 && len(f.buf) >= f.MaxLineLength {
				f.reset()
				return "", ErrLineTooLong
			}
			f.buf = append(f.buf, c)
		}
	}
}

// Lines returns a single-use iterator over the remaining lines.  The
// sequence ends after the first error; the error is yielded once
// unless it is io.EOF.
func (f *Framer) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := f.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// Pending reports how many bytes are waiting in the line accumulator.
func (f *Framer) Pending() int { return len(f.buf) }

func (f *Framer) reset() {
	f.buf = f.buf[:0]
	f.run = 0
	f.lastCR = false
}

func (f *Framer) flushConsumed() {
	if f.OnRead != nil && f.consumed > 0 {
		f.OnRead(f.consumed)
	}
	f.consumed = 0
}
