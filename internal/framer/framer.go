// Package framer splits a byte stream into IRC protocol lines.
//
// TCP gives us no message boundaries. A line may arrive over several reads,
// and a read may hold several lines. The Framer buffers what it has seen and
// hands back only complete lines, so the lines it produces depend only on the
// order of the bytes fed to it and never on how they were chunked.
package framer

import (
	"bytes"
	"iter"

	"github.com/pkg/errors"
)

// ErrOversizedLine means a line exceeded the configured maximum length.
//
// We report it once per offending line. What happens to the line afterwards
// depends on the OversizedPolicy.
var ErrOversizedLine = errors.New("line exceeds maximum length")

// OversizedPolicy says what to do with a line longer than the limit.
type OversizedPolicy int

const (
	// OversizedDiscard drops the line, including any part of it we have yet to
	// receive, and carries on with the next line.
	OversizedDiscard OversizedPolicy = iota

	// OversizedFail resets the buffer. The caller is expected to drop the
	// connection.
	OversizedFail
)

func (p OversizedPolicy) String() string {
	switch p {
	case OversizedDiscard:
		return "discard"
	case OversizedFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Config holds Framer settings.
type Config struct {
	// Lenient accepts a bare LF as a line terminator. A CR directly before the
	// LF is still stripped. When false only CRLF terminates a line.
	Lenient bool

	// MaxLineLength is the maximum length of a line's content (excluding the
	// terminator). 0 means no limit.
	MaxLineLength int

	OversizedPolicy OversizedPolicy
}

// Framer accumulates bytes and extracts lines. It is not safe for concurrent
// use.
type Framer struct {
	config Config

	buf []byte

	// start of data not yet consumed.
	start int

	// Position in buf to resume searching for a terminator from. Everything
	// between start and searchFrom is known to hold no terminator.
	searchFrom int

	// We are skipping the rest of an oversized line.
	discarding bool
}

// New creates a Framer.
func New(config Config) *Framer {
	return &Framer{config: config}
}

// Feed appends p to the buffer and returns the lines that are now complete.
//
// The bytes are taken immediately. The lines are extracted lazily as the
// sequence is consumed. Lines left unconsumed stay buffered and come out of the
// next Feed or Next call.
//
// The sequence yields ErrOversizedLine (with an empty line) when a line is too
// long.
func (f *Framer) Feed(p []byte) iter.Seq2[string, error] {
	f.append(p)

	return func(yield func(string, error) bool) {
		for {
			line, ok, err := f.Next()
			if !ok && err == nil {
				return
			}

			if !yield(line, err) {
				return
			}
		}
	}
}

// Next extracts the next complete line from the buffer.
//
// ok is false when no complete line is buffered. err is ErrOversizedLine when
// a line was too long.
func (f *Framer) Next() (string, bool, error) {
	for {
		if f.discarding {
			if !f.skipLine() {
				return "", false, nil
			}
			continue
		}

		end, next := f.findTerminator()
		if end == -1 {
			if f.pendingTooLong() {
				f.beginDiscard()
				return "", false, ErrOversizedLine
			}
			f.compact()
			return "", false, nil
		}

		line := f.buf[f.start:end]
		f.start = next
		f.searchFrom = next

		if f.config.MaxLineLength > 0 && len(line) > f.config.MaxLineLength {
			if f.config.OversizedPolicy == OversizedFail {
				f.Reset()
			}
			return "", false, ErrOversizedLine
		}

		return string(line), true, nil
	}
}

// Buffered returns how many bytes are held waiting for a terminator.
func (f *Framer) Buffered() int {
	return len(f.buf) - f.start
}

// Reset throws away all buffered data.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.start = 0
	f.searchFrom = 0
	f.discarding = false
}

func (f *Framer) append(p []byte) {
	f.buf = append(f.buf, p...)
}

// findTerminator looks for the end of the next line.
//
// It returns the index where the line content ends and the index where the
// following line begins, or -1 if there is no complete line.
func (f *Framer) findTerminator() (int, int) {
	idx := bytes.IndexByte(f.buf[f.searchFrom:], '\n')
	for idx != -1 {
		lf := f.searchFrom + idx

		if lf > f.start && f.buf[lf-1] == '\r' {
			return lf - 1, lf + 1
		}

		if f.config.Lenient {
			return lf, lf + 1
		}

		// Strict mode. A bare LF is content. Keep looking.
		f.searchFrom = lf + 1
		idx = bytes.IndexByte(f.buf[f.searchFrom:], '\n')
	}

	f.searchFrom = len(f.buf)
	return -1, -1
}

// pendingTooLong checks whether the unterminated data already exceeds the
// limit. A final CR may be the first half of a CRLF so it does not count.
func (f *Framer) pendingTooLong() bool {
	if f.config.MaxLineLength <= 0 {
		return false
	}

	n := len(f.buf) - f.start
	if n > 0 && f.buf[len(f.buf)-1] == '\r' {
		n--
	}

	return n > f.config.MaxLineLength
}

// beginDiscard drops the pending partial line. Under the discard policy we
// also skip whatever is left of it when it arrives.
func (f *Framer) beginDiscard() {
	// Hold on to a final CR so a CRLF split across reads still ends the line.
	keepCR := f.buf[len(f.buf)-1] == '\r'

	f.Reset()

	if f.config.OversizedPolicy == OversizedFail {
		return
	}

	f.discarding = true
	if keepCR {
		f.buf = append(f.buf, '\r')
	}
}

// skipLine consumes data up to and including the next terminator. It returns
// false if there is no terminator yet.
func (f *Framer) skipLine() bool {
	end, next := f.findTerminator()
	if end == -1 {
		// Nothing in here is worth keeping except possibly a final CR.
		keepCR := f.Buffered() > 0 && f.buf[len(f.buf)-1] == '\r'
		f.Reset()
		f.discarding = true
		if keepCR {
			f.buf = append(f.buf, '\r')
		}
		return false
	}

	f.start = next
	f.searchFrom = next
	f.discarding = false
	return true
}

// compact slides unconsumed data to the front of the buffer once consumed
// data dominates it.
func (f *Framer) compact() {
	if f.start == 0 {
		return
	}

	if f.start == len(f.buf) {
		f.Reset()
		return
	}

	if f.start < cap(f.buf)/2 {
		return
	}

	n := copy(f.buf, f.buf[f.start:])
	f.buf = f.buf[:n]
	f.searchFrom -= f.start
	f.start = 0
}
