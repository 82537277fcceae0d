package message

import (
	"strings"
	"unicode/utf8"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// ErrInvalidParam means a message can't be put on the wire as is.
var ErrInvalidParam = errors.New("invalid parameter")

// Encode encodes the Message into a raw protocol line with a trailing CRLF.
//
// The trailing parameter is always written with its ':' so that decoding the
// line gives back the same Message.
//
// If the line would exceed irc.MaxLineLength bytes we truncate the trailing
// parameter and return the truncated line along with irc.ErrTruncated. The
// truncated line is still usable.
func (m Message) Encode() (string, error) {
	if err := m.validate(); err != nil {
		return "", err
	}

	// Prefix, command, and middle params never need a ':' once validated, so
	// irc encodes them exactly as we want.
	buf, err := irc.Message{
		Prefix:  m.Prefix,
		Command: m.Command,
		Params:  m.Params,
	}.Encode()
	if err != nil {
		if err == irc.ErrTruncated {
			return buf, err
		}
		return "", errors.Wrap(err, "unable to encode message")
	}

	s := strings.TrimSuffix(buf, "\r\n")

	if m.HasTrailing {
		s += " :" + m.Trailing
	}

	if len(s)+2 > irc.MaxLineLength {
		return truncateUTF8(s, irc.MaxLineLength-2) + "\r\n", irc.ErrTruncated
	}

	return s + "\r\n", nil
}

// String gives the message in wire form without CRLF. Unlike Encode it does no
// validation, so it suits logging and display.
func (m Message) String() string {
	var sb strings.Builder

	if m.Prefix != "" {
		sb.WriteString(":")
		sb.WriteString(m.Prefix)
		sb.WriteString(" ")
	}

	sb.WriteString(m.Command)

	for _, param := range m.Params {
		sb.WriteString(" ")
		sb.WriteString(param)
	}

	if m.HasTrailing {
		sb.WriteString(" :")
		sb.WriteString(m.Trailing)
	}

	return sb.String()
}

func (m Message) validate() error {
	if m.Command == "" {
		return errors.Wrap(ErrInvalidParam, "blank command")
	}

	if strings.ContainsAny(m.Command, " :\r\n\x00") {
		return errors.Wrapf(ErrInvalidParam, "command %q", m.Command)
	}

	// Parse upper cases commands, so anything else would not decode to the
	// same Message.
	if m.Command != normalizeCommand(m.Command) {
		return errors.Wrapf(ErrInvalidParam, "command %q is not upper case", m.Command)
	}

	if strings.ContainsAny(m.Prefix, " \r\n\x00") {
		return errors.Wrapf(ErrInvalidParam, "prefix %q", m.Prefix)
	}

	for i, param := range m.Params {
		if param == "" || param[0] == ':' || strings.ContainsAny(param, " \r\n\x00") {
			return errors.Wrapf(ErrInvalidParam, "parameter %d %q", i, param)
		}
	}

	if strings.ContainsAny(m.Trailing, "\r\n\x00") {
		return errors.Wrap(ErrInvalidParam, "trailing parameter has CR, LF, or NUL")
	}

	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
