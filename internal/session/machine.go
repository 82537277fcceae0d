// Package session tracks the protocol state of one IRC connection and drives
// the connection's reading and writing.
//
// Machine holds the state and applies messages and local intents to it. It
// does no I/O and is not safe for concurrent use. Session wraps a Machine with
// a transport, a reader goroutine, and a writer goroutine, and serializes all
// access to the Machine.
package session

import (
	"strings"

	"github.com/horgh/irc"
	"github.com/pkg/errors"

	"github.com/horgh/boxcat/internal/message"
)

var (
	// ErrClosed means the connection is closing or closed.
	ErrClosed = errors.New("connection is closed")

	// ErrNotConnected means we have not yet sent our registration.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected means Connect was called twice.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrEmptyIntent means there was nothing to send.
	ErrEmptyIntent = errors.New("nothing to send")

	// ErrUsage means a command was missing arguments. The error is a
	// *UsageError.
	ErrUsage = errors.New("usage")
)

// UsageError tells how a command should be typed.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string { return "usage: " + e.Usage }

// Is makes errors.Is(err, ErrUsage) true.
func (e *UsageError) Is(target error) bool { return target == ErrUsage }

// DefaultTarget is where plain text goes if not configured otherwise.
const DefaultTarget = "#general"

// ActivationPolicy decides whether an incoming message, received while
// Registered, shows the server accepted our registration.
type ActivationPolicy func(m message.Message) bool

// ActivateOnFirstReply accepts any message that is not an error.
func ActivateOnFirstReply(m message.Message) bool {
	return m.Command != "ERROR" && !m.IsErrorReply()
}

// ActivateOnWelcome waits for RPL_WELCOME.
func ActivateOnWelcome(m message.Message) bool {
	return m.Command == irc.ReplyWelcome
}

// MachineConfig holds settings for a Machine.
type MachineConfig struct {
	// Password is sent with PASS. If blank we send no PASS.
	Password string

	// Nick, if set, is registered along with USER right after PASS.
	Nick string

	// DefaultTarget receives plain text intents.
	DefaultTarget string

	// Activation defaults to ActivateOnFirstReply.
	Activation ActivationPolicy
}

// Machine is the protocol state machine for one connection.
type Machine struct {
	config MachineConfig

	phase Phase

	connected bool

	// Our nickname. Set provisionally while registering, and afterwards only
	// when the server confirms a change.
	nick string

	// Canonical name to name as the server gave it.
	channels map[string]string

	// Nickname to palette index.
	nickColors map[string]int

	// Outbound messages not yet written.
	pending []message.Message
}

// NewMachine creates a Machine in the Unregistered phase.
func NewMachine(config MachineConfig) *Machine {
	if config.DefaultTarget == "" {
		config.DefaultTarget = DefaultTarget
	}
	if config.Activation == nil {
		config.Activation = ActivateOnFirstReply
	}

	return &Machine{
		config:     config,
		phase:      Unregistered,
		channels:   map[string]string{},
		nickColors: map[string]int{},
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Nick returns our nickname.
func (m *Machine) Nick() string { return m.nick }

// Snapshot copies the current state.
func (m *Machine) Snapshot() Snapshot { return m.snapshot() }

// Pending returns how many outbound messages are queued.
func (m *Machine) Pending() int { return len(m.pending) }

// Next removes and returns the oldest queued outbound message.
func (m *Machine) Next() (message.Message, bool) {
	if len(m.pending) == 0 {
		return message.Message{}, false
	}

	msg := m.pending[0]
	m.pending[0] = message.Message{}
	m.pending = m.pending[1:]
	return msg, true
}

// Connect queues our registration. It must come before anything else we send:
// PASS first, then NICK and USER if we have a nick.
func (m *Machine) Connect() ([]message.Message, error) {
	if m.connected {
		return nil, ErrAlreadyConnected
	}
	if m.phase >= Closing {
		return nil, ErrClosed
	}

	m.connected = true

	var out []message.Message

	if m.config.Password != "" {
		out = append(out, message.New("PASS", m.config.Password))
	}

	if m.config.Nick != "" {
		out = append(out,
			message.New("NICK", m.config.Nick),
			message.New("USER", m.config.Nick, "0", "*").WithTrailing(m.config.Nick),
		)
	}

	for _, msg := range out {
		if _, err := msg.Encode(); err != nil && err != irc.ErrTruncated {
			m.connected = false
			return nil, errors.Wrap(err, "invalid registration")
		}
	}

	m.queue(out...)
	return out, nil
}

// Intent turns a line the user typed into outbound messages and queues them.
//
// Lines starting with / are commands. Anything else is a message to the
// default target.
func (m *Machine) Intent(line string) ([]message.Message, error) {
	if !m.connected {
		return nil, ErrNotConnected
	}
	if m.phase >= Closing {
		return nil, ErrClosed
	}

	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyIntent
	}

	msg, err := m.intentToMessage(line)
	if err != nil {
		return nil, err
	}

	if _, err := msg.Encode(); err != nil && err != irc.ErrTruncated {
		return nil, err
	}

	m.queue(msg)

	if msg.Command == "QUIT" {
		m.phase = Closing
	}

	return []message.Message{msg}, nil
}

func (m *Machine) intentToMessage(line string) (message.Message, error) {
	if !strings.HasPrefix(line, "/") {
		return message.New("PRIVMSG", m.config.DefaultTarget).WithTrailing(line), nil
	}

	word, rest, _ := strings.Cut(line[1:], " ")
	args := strings.Fields(rest)

	switch strings.ToUpper(word) {
	case "NICK":
		if len(args) > 0 {
			return message.New("NICK", args[0]), nil
		}
	case "JOIN":
		if len(args) > 0 {
			return message.New("JOIN", args...), nil
		}
	case "PART":
		if len(args) == 1 {
			return message.New("PART", args[0]), nil
		}
		if len(args) > 1 {
			_, reason, _ := strings.Cut(strings.TrimSpace(rest), " ")
			return message.New("PART", args[0]).WithTrailing(strings.TrimSpace(reason)), nil
		}
	case "MSG":
		target, text, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
		if target == "" || strings.TrimSpace(text) == "" {
			return message.Message{}, &UsageError{Usage: "/msg <target> <message>"}
		}
		return message.New("PRIVMSG", target).WithTrailing(text), nil
	case "WHO", "USERS":
		return message.New("WHO"), nil
	case "QUIT":
		reason := strings.TrimSpace(rest)
		if reason == "" {
			return message.New("QUIT"), nil
		}
		return message.New("QUIT").WithTrailing(reason), nil
	}

	// Anything else goes out as typed, minus the slash.
	msg, err := message.Parse(line[1:])
	if err != nil {
		return message.Message{}, errors.Wrap(ErrEmptyIntent, "no command after /")
	}
	return msg, nil
}

func (m *Machine) queue(msgs ...message.Message) {
	for _, msg := range msgs {
		m.pending = append(m.pending, msg)

		// Registration is local: PASS (if any) then NICK makes us Registered.
		// The nick we register with is ours until the server says otherwise.
		if msg.Command == "NICK" && len(msg.Params) > 0 && m.phase == Unregistered {
			m.nick = msg.Params[0]
			m.phase = Registered
		}
	}
}

// Receive applies an incoming message to the state. It returns any automatic
// replies, which it has already queued.
func (m *Machine) Receive(msg message.Message) []message.Message {
	if m.phase == Closed {
		return nil
	}

	if !msg.FromServer() {
		m.rememberColor(msg.Nick())
	}

	var replies []message.Message

	switch msg.Command {
	case "PING":
		if m.connected && m.phase < Closing {
			pong := message.New("PONG")
			if token := msg.Text(); token != "" {
				pong = pong.WithTrailing(token)
			}
			replies = append(replies, pong)
		}
	case "ERROR":
		// The server is closing the link.
		if m.phase < Closing {
			m.phase = Closing
		}
	case irc.ReplyWelcome:
		if len(msg.Params) > 0 {
			m.nick = msg.Params[0]
		}
		if m.phase < Active {
			m.phase = Active
		}
	case "NICK":
		if m.isMe(msg.Nick()) && msg.Target() != "" {
			m.nick = msg.Target()
			m.rememberColor(m.nick)
		}
	case "JOIN":
		if m.isMe(msg.Nick()) && msg.Target() != "" {
			m.channels[canonicalize(msg.Target())] = msg.Target()
		}
	case "PART":
		if m.isMe(msg.Nick()) {
			delete(m.channels, canonicalize(msg.Target()))
		}
	case "KICK":
		if len(msg.Params) > 1 && m.isMe(msg.Params[1]) {
			delete(m.channels, canonicalize(msg.Params[0]))
		}
	}

	if m.phase == Registered && m.config.Activation(msg) {
		m.phase = Active
	}

	m.queue(replies...)
	return replies
}

func (m *Machine) isMe(nick string) bool {
	return m.nick != "" && nick != "" && canonicalize(nick) == canonicalize(m.nick)
}

// TransportClosed moves to Closing from any phase and throws away anything we
// had yet to send.
func (m *Machine) TransportClosed() {
	if m.phase == Closed {
		return
	}
	m.phase = Closing
	m.pending = nil
}

// Flushed moves from Closing to Closed once nothing remains to send. It
// reports whether we are Closed.
func (m *Machine) Flushed() bool {
	if m.phase == Closing && len(m.pending) == 0 {
		m.phase = Closed
	}
	return m.phase == Closed
}

// Close moves to Closed, discarding anything unsent.
func (m *Machine) Close() {
	m.phase = Closed
	m.pending = nil
}
