// Package message provides decoding and encoding of IRC protocol messages.
//
// See RFC 1459/2812 section 2.3.1. We are lenient when decoding since real
// servers send all sorts of variants, and strict when encoding.
package message

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedMessage means a line did not hold a message at all: it was
// blank, or had a prefix but no command.
var ErrMalformedMessage = errors.New("malformed message")

// Message holds a protocol message.
type Message struct {
	// Prefix may be blank. It's optional. It does not include the leading ':'.
	Prefix string

	// Command is the IRC command. For example, PRIVMSG. It may be a numeric.
	Command string

	// Params are the middle parameters. They do not include the trailing
	// parameter.
	Params []string

	// Trailing is the final parameter, the one introduced by ':'. It may hold
	// spaces. It may be blank even when present, so check HasTrailing.
	Trailing    string
	HasTrailing bool
}

// New creates a Message with no prefix and no trailing parameter. The command
// is upper cased the way Parse does it.
func New(command string, params ...string) Message {
	return Message{Command: normalizeCommand(command), Params: params}
}

// WithTrailing returns a copy of the message with its trailing parameter set.
func (m Message) WithTrailing(trailing string) Message {
	m.Trailing = trailing
	m.HasTrailing = true
	return m
}

// Nick returns the nickname part of the prefix: everything before any '!' or
// '@'. If the prefix is a server name we return the whole thing.
func (m Message) Nick() string {
	if idx := strings.IndexAny(m.Prefix, "!@"); idx != -1 {
		return m.Prefix[:idx]
	}
	return m.Prefix
}

// FromServer tells whether the prefix looks like a server name rather than a
// user.
func (m Message) FromServer() bool {
	return m.Prefix != "" && !strings.ContainsAny(m.Prefix, "!@") &&
		strings.Contains(m.Prefix, ".")
}

// IsNumeric tells whether the command is a 3 digit numeric reply.
func (m Message) IsNumeric() bool {
	return len(m.Command) == 3 && isNumeric(m.Command)
}

// IsErrorReply tells whether the command is a 4xx or 5xx numeric.
func (m Message) IsErrorReply() bool {
	return m.IsNumeric() && (m.Command[0] == '4' || m.Command[0] == '5')
}

// Target returns the first parameter. Some servers send it as the trailing
// parameter (e.g. ":nick JOIN :#channel"), so fall back to that.
func (m Message) Target() string {
	if len(m.Params) > 0 {
		return m.Params[0]
	}
	return m.Trailing
}

// Text returns the trailing parameter, or the last middle parameter if there
// is no trailing one.
func (m Message) Text() string {
	if m.HasTrailing {
		return m.Trailing
	}
	if len(m.Params) > 0 {
		return m.Params[len(m.Params)-1]
	}
	return ""
}

// Equal compares two messages. A nil and an empty Params are the same.
func (m Message) Equal(o Message) bool {
	if m.Prefix != o.Prefix || m.Command != o.Command ||
		m.HasTrailing != o.HasTrailing || m.Trailing != o.Trailing {
		return false
	}

	if len(m.Params) != len(o.Params) {
		return false
	}

	for i := range m.Params {
		if m.Params[i] != o.Params[i] {
			return false
		}
	}

	return true
}

func isNumeric(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
