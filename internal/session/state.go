package session

import (
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/horgh/boxcat/internal/render"
)

// Phase is a stage in the connection lifecycle.
type Phase int

const (
	// Unregistered means we have not yet sent our registration.
	Unregistered Phase = iota

	// Registered means we sent PASS and NICK. The server has not acknowledged
	// them yet.
	Registered

	// Active means the server accepted us.
	Active

	// Closing means we are shutting the connection down. We may still be
	// flushing a QUIT.
	Closing

	// Closed means the connection is gone.
	Closed
)

func (p Phase) String() string {
	switch p {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Remember at most this many nick colors per connection. Past this we compute
// them each time, which gives the same answer.
const maxRememberedColors = 4096

// canonicalize converts the given nick or channel to its canonical
// representation (which must be unique).
//
// Note: We don't check validity or strip whitespace.
func canonicalize(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Snapshot is a copy of a connection's state at one moment. Changes to the
// connection do not show up in it.
type Snapshot struct {
	phase    Phase
	nick     string
	channels []string
	colors   map[string]int
}

// Phase is the connection's phase.
func (s Snapshot) Phase() Phase { return s.phase }

// Nick is our nickname. It may be blank if we have not picked one.
func (s Snapshot) Nick() string { return s.nick }

// Channels lists the channels we are on, sorted.
func (s Snapshot) Channels() []string { return s.channels }

// InChannel tells whether we are on the given channel.
func (s Snapshot) InChannel(name string) bool {
	c := canonicalize(name)
	for _, channel := range s.channels {
		if canonicalize(channel) == c {
			return true
		}
	}
	return false
}

// NickColor returns the palette index remembered for a nickname.
func (s Snapshot) NickColor(nick string) (int, bool) {
	idx, ok := s.colors[nick]
	return idx, ok
}

var _ render.View = Snapshot{}

func (m *Machine) snapshot() Snapshot {
	channels := make([]string, 0, len(m.channels))
	for _, display := range m.channels {
		channels = append(channels, display)
	}
	sort.Strings(channels)

	colors := make(map[string]int, len(m.nickColors))
	for k, v := range m.nickColors {
		colors[k] = v
	}

	return Snapshot{
		phase:    m.phase,
		nick:     m.nick,
		channels: channels,
		colors:   colors,
	}
}

// rememberColor records the color for a nickname so every line from them
// renders the same way.
func (m *Machine) rememberColor(nick string) {
	if nick == "" {
		return
	}
	if _, ok := m.nickColors[nick]; ok {
		return
	}
	if len(m.nickColors) >= maxRememberedColors {
		return
	}
	m.nickColors[nick] = render.ColorIndex(nick)
}
