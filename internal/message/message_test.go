package message

import (
	"strings"
	"testing"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		output  Message
		success bool
	}{
		{
			":alice!u@h PRIVMSG #g :hi",
			Message{Prefix: "alice!u@h", Command: "PRIVMSG", Params: []string{"#g"},
				Trailing: "hi", HasTrailing: true},
			true,
		},

		{"PING", Message{Command: "PING"}, true},

		{"PING :irc.example.org",
			Message{Command: "PING", Trailing: "irc.example.org", HasTrailing: true},
			true},

		// Commands are upper cased.
		{"privmsg bob :x",
			Message{Command: "PRIVMSG", Params: []string{"bob"}, Trailing: "x",
				HasTrailing: true},
			true},

		// Numerics stay as they are.
		{":irc 001 bob :Welcome to IRC",
			Message{Prefix: "irc", Command: "001", Params: []string{"bob"},
				Trailing: "Welcome to IRC", HasTrailing: true},
			true},

		// Unknown commands are fine.
		{"FROB a b c", Message{Command: "FROB", Params: []string{"a", "b", "c"}},
			true},

		// Trailing keeps embedded colons and spaces.
		{":bob NICK :robert", Message{Prefix: "bob", Command: "NICK",
			Trailing: "robert", HasTrailing: true}, true},
		{"PRIVMSG #g :a :b  c ", Message{Command: "PRIVMSG", Params: []string{"#g"},
			Trailing: "a :b  c ", HasTrailing: true}, true},

		// A colon inside a middle parameter does not start the trailing.
		{"MODE a:b c", Message{Command: "MODE", Params: []string{"a:b", "c"}}, true},

		// Empty trailing.
		{"TOPIC #g :", Message{Command: "TOPIC", Params: []string{"#g"},
			HasTrailing: true}, true},

		// Runs of spaces separate tokens.
		{":irc  PRIVMSG   bob   :hi", Message{Prefix: "irc", Command: "PRIVMSG",
			Params: []string{"bob"}, Trailing: "hi", HasTrailing: true}, true},

		// Trailing space without a parameter.
		{":irc PRIVMSG ", Message{Prefix: "irc", Command: "PRIVMSG"}, true},

		// A terminator is stripped.
		{"PING\r\n", Message{Command: "PING"}, true},
		{"PING\n", Message{Command: "PING"}, true},

		// No tokens.
		{"", Message{}, false},
		{"   ", Message{}, false},

		// Prefix only.
		{":irc", Message{}, false},
		{":irc ", Message{}, false},
	}

	for _, test := range tests {
		m, err := Parse(test.input)
		if !test.success {
			assert.Equal(t, ErrMalformedMessage, err, "Parse(%q)", test.input)
			continue
		}

		require.NoError(t, err, "Parse(%q)", test.input)
		assert.True(t, m.Equal(test.output), "Parse(%q) = %#v, wanted %#v",
			test.input, m, test.output)
	}
}

func TestParseEmptyLine(t *testing.T) {
	_, err := Parse("")
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestEncode(t *testing.T) {
	tests := []struct {
		input   Message
		output  string
		success bool
	}{
		{New("WHO"), "WHO\r\n", true},
		{New("NICK", "bob"), "NICK bob\r\n", true},
		{New("PASS", "secret"), "PASS secret\r\n", true},
		{New("PRIVMSG", "#g").WithTrailing("hi there"), "PRIVMSG #g :hi there\r\n",
			true},

		// Trailing always gets its colon, even when it would not need one.
		{New("QUIT").WithTrailing("bye"), "QUIT :bye\r\n", true},
		{New("TOPIC", "#g").WithTrailing(""), "TOPIC #g :\r\n", true},

		{Message{Prefix: "irc", Command: "001", Params: []string{"bob"},
			Trailing: "Welcome", HasTrailing: true}, ":irc 001 bob :Welcome\r\n", true},

		{Message{}, "", false},
		{New("PRIVMSG", "has space"), "", false},
		{New("PRIVMSG", ":colon"), "", false},
		{New("PRIVMSG", ""), "", false},
		{New("PRIVMSG", "#g").WithTrailing("two\r\nlines"), "", false},
		{Message{Prefix: "a b", Command: "PING"}, "", false},
		{Message{Command: "privmsg", Params: []string{"#g"}}, "", false},
		{Message{Command: "Join", Params: []string{"#g"}}, "", false},
	}

	for _, test := range tests {
		buf, err := test.input.Encode()
		if !test.success {
			assert.True(t, errors.Is(err, ErrInvalidParam), "%s.Encode() = %v",
				test.input, err)
			continue
		}

		require.NoError(t, err, "%s.Encode()", test.input)
		assert.Equal(t, test.output, buf)
	}
}

func TestEncodeTruncates(t *testing.T) {
	// Multi-byte runes so the cut point lands inside one.
	m := New("PRIVMSG", "#g").WithTrailing(strings.Repeat("é", 400))

	buf, err := m.Encode()
	assert.Equal(t, irc.ErrTruncated, err)
	assert.True(t, len(buf) <= irc.MaxLineLength)
	assert.True(t, strings.HasSuffix(buf, "\r\n"))

	parsed, err := Parse(buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.Trailing, parsed.Trailing))
	assert.Equal(t, 0, len(parsed.Trailing)%2, "cut a rune in half")
}

// Encoding then decoding gives back the same message.
func TestRoundTrip(t *testing.T) {
	messages := []Message{
		{Prefix: "alice!u@h", Command: "PRIVMSG", Params: []string{"a", "b"},
			Trailing: "T", HasTrailing: true},
		{Prefix: "irc.example.org", Command: "001", Params: []string{"bob"},
			Trailing: "Welcome to the network bob!u@h", HasTrailing: true},
		{Command: "PING"},
		{Command: "JOIN", Params: []string{"#g"}},
		{Command: "QUIT", Trailing: "", HasTrailing: true},
		{Command: "PRIVMSG", Params: []string{"#g"}, Trailing: ":-) :: x",
			HasTrailing: true},
		{Prefix: "bob!u@h", Command: "NICK", Trailing: "robert", HasTrailing: true},
	}

	for _, m := range messages {
		buf, err := m.Encode()
		require.NoError(t, err, "%s.Encode()", m)

		parsed, err := Parse(buf)
		require.NoError(t, err, "Parse(%q)", buf)

		assert.True(t, m.Equal(parsed), "round trip %#v gave %#v", m, parsed)
		assert.Equal(t, strings.TrimSuffix(buf, "\r\n"), m.String())
	}
}

// Our encoding must be understood by another decoder. irc.ParseMessage gives
// the trailing parameter as the last param.
func TestEncodeInteroperates(t *testing.T) {
	m := Message{Prefix: "alice!u@h", Command: "PRIVMSG", Params: []string{"#g"},
		Trailing: "hi there", HasTrailing: true}

	buf, err := m.Encode()
	require.NoError(t, err)

	im, err := irc.ParseMessage(buf)
	require.NoError(t, err)

	assert.Equal(t, m.Prefix, im.Prefix)
	assert.Equal(t, m.Command, im.Command)
	assert.Equal(t, []string{"#g", "hi there"}, im.Params)
}

func TestNewNormalizesCommand(t *testing.T) {
	m := New("privmsg", "#g").WithTrailing("hi")
	assert.Equal(t, "PRIVMSG", m.Command)

	buf, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG #g :hi\r\n", buf)

	parsed, err := Parse(buf)
	require.NoError(t, err)
	assert.True(t, m.Equal(parsed), "round trip %#v gave %#v", m, parsed)

	assert.Equal(t, "001", New("001", "bob").Command)
}

func TestNick(t *testing.T) {
	tests := []struct {
		input  Message
		output string
	}{
		{Message{}, ""},
		{Message{Prefix: "blah"}, "blah"},
		{Message{Prefix: "hi!"}, "hi"},
		{Message{Prefix: "hi!~hello@hey"}, "hi"},
		{Message{Prefix: "hi@hey"}, "hi"},
	}

	for _, test := range tests {
		assert.Equal(t, test.output, test.input.Nick(), "%#v.Nick()", test.input)
	}
}

func TestClassification(t *testing.T) {
	assert.True(t, New("001").IsNumeric())
	assert.False(t, New("PRIVMSG").IsNumeric())
	assert.False(t, New("1").IsNumeric())

	assert.True(t, New("433").IsErrorReply())
	assert.True(t, New("501").IsErrorReply())
	assert.False(t, New("332").IsErrorReply())

	assert.True(t, Message{Prefix: "irc.example.org"}.FromServer())
	assert.False(t, Message{Prefix: "bob!u@h.example.org"}.FromServer())
	assert.False(t, Message{}.FromServer())

	assert.Equal(t, "#g", Message{Command: "JOIN", Trailing: "#g",
		HasTrailing: true}.Target())
	assert.Equal(t, "#g", New("PART", "#g").Target())
	assert.Equal(t, "bye", New("PART", "#g", "bye").Text())
}
