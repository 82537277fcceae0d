package main

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Conn is a connection to the server. It satisfies session.Transport.
type Conn struct {
	conn         net.Conn
	writeTimeout time.Duration
}

// NewConn wraps a connection.
func NewConn(conn net.Conn, writeTimeout time.Duration) Conn {
	return Conn{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// dial connects to the configured server.
func dial(ctx context.Context, c Config) (Conn, error) {
	dialer := net.Dialer{Timeout: c.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(c.Host, c.Port))
	if err != nil {
		return Conn{}, errors.Wrap(err, "unable to connect")
	}

	return NewConn(conn, c.WriteTimeout), nil
}

// Close closes the underlying connection
func (c Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote network address.
func (c Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Read reads whatever is available.
//
// There is no read deadline. The server may have nothing to say for a long
// time, and it PINGs us if it wants to know we're alive.
func (c Conn) Read(p []byte) (int, error) {
	n, err := c.conn.Read(p)
	if err != nil {
		// There may be something read even with error.
		return n, errors.Wrap(err, "error reading")
	}
	return n, nil
}

// Write writes to the connection.
func (c Conn) Write(p []byte) (int, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return 0, errors.Wrap(err, "error setting write deadline")
	}

	n, err := c.conn.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "error writing")
	}

	return n, nil
}
