package message

import (
	"strings"
)

// Parse parses a single protocol line into a Message.
//
// The line should not include its terminator, though we strip one trailing
// CRLF (or LF) if it is there.
//
// We are parsing this:
// message    =  [ ":" prefix SPACE ] command [ params ]
// params     =  *( SPACE middle ) [ SPACE ":" trailing ]
//
// Runs of spaces separate tokens. The first parameter token that begins with
// ':' starts the trailing parameter, which runs to the end of the line
// verbatim.
//
// The only failure is a line that has no command.
func Parse(line string) (Message, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	m := Message{}

	rest := skipSpaces(line)

	// It is optional to have a prefix.
	if strings.HasPrefix(rest, ":") {
		var prefix string
		prefix, rest = nextToken(rest)
		m.Prefix = prefix[1:]
	}

	command, rest := nextToken(rest)
	if command == "" {
		return Message{}, ErrMalformedMessage
	}
	m.Command = normalizeCommand(command)

	for {
		rest = skipSpaces(rest)
		if rest == "" {
			break
		}

		if rest[0] == ':' {
			m.Trailing = rest[1:]
			m.HasTrailing = true
			break
		}

		var param string
		param, rest = nextToken(rest)
		m.Params = append(m.Params, param)
	}

	return m, nil
}

// nextToken returns the first token in s and what follows it.
func nextToken(s string) (string, string) {
	s = skipSpaces(s)

	idx := strings.IndexByte(s, ' ')
	if idx == -1 {
		return s, ""
	}

	return s[:idx], s[idx:]
}

func skipSpaces(s string) string {
	return strings.TrimLeft(s, " ")
}

// normalizeCommand upper cases alphabetic commands. Numerics stay as they are.
func normalizeCommand(command string) string {
	if isNumeric(command) {
		return command
	}
	return strings.ToUpper(command)
}
