package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/horgh/boxcat/internal/message"
	"github.com/horgh/boxcat/internal/render"
	"github.com/horgh/boxcat/internal/session"
)

// Client connects the terminal to a server: lines typed go out as intents,
// and messages from the server are rendered to the output.
type Client struct {
	config   Config
	log      zerolog.Logger
	renderer render.Renderer

	// outMu serializes writes to out. Both the session's reader and our input
	// loop print.
	outMu sync.Mutex
	out   io.Writer

	session *session.Session
}

// NewClient creates a Client that prints to out.
func NewClient(config Config, out io.Writer, color bool, log zerolog.Logger) *Client {
	if !color {
		// Also strips escape sequences the server sends us.
		out = colorable.NewNonColorable(out)
	}

	return &Client{
		config:   config,
		log:      log,
		renderer: render.Renderer{NoColor: !color},
		out:      out,
	}
}

// terminalOutput decides where we print and whether to use color.
func terminalOutput(config Config) (io.Writer, bool) {
	switch config.Color {
	case "always":
		return colorable.NewColorableStdout(), true
	case "never":
		return os.Stdout, false
	}

	fd := os.Stdout.Fd()
	color := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return colorable.NewColorableStdout(), color
}

// HandleMessage renders a message from the server.
func (c *Client) HandleMessage(m message.Message, s session.Snapshot) {
	c.println(c.renderer.Render(m, s))
}

// run talks to the server over transport until the connection closes or ctx
// is cancelled.
//
// Lines come from in. When in runs out we quit.
func (c *Client) run(ctx context.Context, transport session.Transport,
	in io.Reader) error {
	c.session = session.New(c.config.sessionConfig(c.log), transport, c)

	if err := c.session.Start(); err != nil {
		return errors.Wrap(err, "unable to start session")
	}

	if conn, ok := transport.(interface{ RemoteAddr() net.Addr }); ok {
		c.log.Info().Stringer("remote", conn.RemoteAddr()).Msg("connected")
	}

	c.println(fmt.Sprintf("Connected to %s. Type messages and press Enter.",
		net.JoinHostPort(c.config.Host, c.config.Port)))
	c.println("Commands: /nick <name>, /join <channel>, /part <channel>, " +
		"/msg <target> <message>, /who, /quit")

	go c.inputLoop(in)

	select {
	case <-ctx.Done():
		_ = c.session.Close()
	case <-c.session.Done():
	}

	err := c.session.Wait()
	c.println("[Disconnected]")
	return err
}

// inputLoop sends each line read as an intent.
func (c *Client) inputLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		if !c.sendIntent(scanner.Text()) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.log.Error().Err(err).Msg("error reading input")
	}

	c.sendIntent("/quit")
}

// sendIntent returns false once there's no point reading more input.
func (c *Client) sendIntent(line string) bool {
	err := c.session.Send(line)
	if err == nil {
		return true
	}

	var usageErr *session.UsageError
	switch {
	case errors.As(err, &usageErr):
		c.println("Usage: " + usageErr.Usage)
	case errors.Is(err, session.ErrEmptyIntent):
	case errors.Is(err, session.ErrClosed):
		return false
	default:
		c.println(fmt.Sprintf("Unable to send: %s", err))
	}

	return true
}

func (c *Client) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if _, err := io.WriteString(c.out, strings.TrimRight(s, "\r\n")+"\n"); err != nil {
		c.log.Debug().Err(err).Msg("error writing output")
	}
}
