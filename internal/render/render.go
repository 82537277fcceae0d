// Package render turns protocol messages into lines for a terminal.
package render

import (
	"crypto/md5"
	"fmt"
	"math/big"

	"github.com/ergochat/irc-go/ircfmt"

	"github.com/horgh/boxcat/internal/message"
)

// ANSI escape sequences.
const (
	Reset = "\033[0m"

	// ServerColor is bold white.
	ServerColor = "\033[1;37m"
)

// Palette holds the colors we give nicknames. Dark colors are left out for
// readability.
var Palette = []string{
	"\033[91m", // Light Red
	"\033[92m", // Light Green
	"\033[93m", // Light Yellow
	"\033[94m", // Light Blue
	"\033[95m", // Light Magenta
	"\033[96m", // Light Cyan
	"\033[33m", // Yellow
	"\033[35m", // Magenta
	"\033[36m", // Cyan
}

// View is the read-only connection state the Renderer needs.
type View interface {
	// NickColor returns the palette index remembered for a nickname.
	NickColor(nick string) (int, bool)
}

// ColorIndex assigns a nickname its palette index.
//
// It is a pure function of the nickname (the MD5 sum taken as a number, modulo
// the palette size), so a nickname gets the same color every time, including
// across restarts.
func ColorIndex(nick string) int {
	sum := md5.Sum([]byte(nick))
	n := new(big.Int).SetBytes(sum[:])
	return int(n.Mod(n, big.NewInt(int64(len(Palette)))).Int64())
}

// Renderer formats messages for display.
type Renderer struct {
	// NoColor turns off escape sequences entirely.
	NoColor bool
}

// Render formats a message. It never modifies the view.
func (r Renderer) Render(m message.Message, v View) string {
	switch m.Command {
	case "PRIVMSG":
		return r.nickColored(m.Nick(), v, "<"+m.Nick()+">") + " " +
			ircfmt.Strip(m.Text())
	case "NOTICE":
		if m.Prefix == "" || m.FromServer() {
			return r.server(fmt.Sprintf("-%s- %s", m.Nick(), ircfmt.Strip(m.Text())))
		}
		return r.nickColored(m.Nick(), v, "-"+m.Nick()+"-") + " " +
			ircfmt.Strip(m.Text())
	case "NICK":
		return r.server(fmt.Sprintf("* %s is now known as %s", m.Nick(), m.Target()))
	case "QUIT":
		reason := "Quit"
		if m.HasTrailing || len(m.Params) > 0 {
			reason = ircfmt.Strip(m.Text())
		}
		return r.server(fmt.Sprintf("* %s has quit (%s)", m.Nick(), reason))
	case "JOIN":
		return r.server(r.membership(m, "has joined"))
	case "PART":
		return r.server(r.membership(m, "has left"))
	case "ERROR":
		return r.server(m.String())
	}

	if m.IsNumeric() {
		return r.server(m.String())
	}

	return m.String()
}

func (r Renderer) membership(m message.Message, verb string) string {
	channel := m.Target()
	if channel == "" {
		return fmt.Sprintf("* %s %s", m.Nick(), verb)
	}
	return fmt.Sprintf("* %s %s %s", m.Nick(), verb, channel)
}

// colorFor prefers the index the connection remembered for the nickname.
// Either way the answer is the same; the memo only saves work.
func (r Renderer) colorFor(nick string, v View) string {
	if v != nil {
		if idx, ok := v.NickColor(nick); ok && idx >= 0 && idx < len(Palette) {
			return Palette[idx]
		}
	}
	return Palette[ColorIndex(nick)]
}

func (r Renderer) nickColored(nick string, v View, s string) string {
	if r.NoColor {
		return s
	}
	return r.colorFor(nick, v) + s + Reset
}

func (r Renderer) server(s string) string {
	if r.NoColor {
		return s
	}
	return ServerColor + s + Reset
}
