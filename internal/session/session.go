package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/horgh/boxcat/internal/framer"
	"github.com/horgh/boxcat/internal/message"
)

//go:generate mockgen -destination=../mocks/mock_session.go -package=mocks github.com/horgh/boxcat/internal/session Transport,Handler

// Transport is the byte stream to the server.
//
// Close must unblock a pending Read.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Handler receives each message from the server along with the state just
// after applying it.
//
// It is called from the reader goroutine, one message at a time.
type Handler interface {
	HandleMessage(m message.Message, s Snapshot)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(m message.Message, s Snapshot)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(m message.Message, s Snapshot) { f(m, s) }

// TransportError is a read or write failure. The connection is over when we
// see one.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

// Unwrap gives the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// Cause gives the underlying error to errors.Cause.
func (e *TransportError) Cause() error { return e.Err }

// Config holds settings for a Session.
type Config struct {
	MachineConfig

	Framer framer.Config

	// ReadBufferSize is how much we ask the transport for at once.
	ReadBufferSize int

	Logger zerolog.Logger
}

// Session runs one connection.
type Session struct {
	config    Config
	transport Transport
	handler   Handler
	log       zerolog.Logger

	// Only the reader goroutine touches this.
	framer *framer.Framer

	// mu guards everything below it.
	mu      sync.Mutex
	machine *Machine
	started bool

	// We started closing ourselves, so read and write errors are expected.
	closing bool

	err error

	// wake tells the writer there is something queued.
	wake chan struct{}

	// doneChan closes when the connection is being torn down.
	doneChan  chan struct{}
	closeOnce sync.Once

	// closedChan closes once both goroutines are gone and we are Closed.
	closedChan chan struct{}

	wg sync.WaitGroup
}

// New creates a Session. Call Start or Run to begin.
func New(config Config, transport Transport, handler Handler) *Session {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 4096
	}

	return &Session{
		config:     config,
		transport:  transport,
		handler:    handler,
		log:        config.Logger,
		framer:     framer.New(config.Framer),
		machine:    NewMachine(config.MachineConfig),
		wake:       make(chan struct{}, 1),
		doneChan:   make(chan struct{}),
		closedChan: make(chan struct{}),
	}
}

// Start sends our registration and starts the reader and writer goroutines.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}

	if _, err := s.machine.Connect(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.reader()

	s.wg.Add(1)
	go s.writer()

	go func() {
		s.wg.Wait()

		s.mu.Lock()
		if !s.machine.Flushed() {
			s.machine.Close()
		}
		s.mu.Unlock()

		s.log.Debug().Msg("connection closed")
		close(s.closedChan)
	}()

	s.signal()
	return nil
}

// Run starts the session and blocks until the connection closes.
//
// Cancelling ctx closes the connection. The error is the transport failure
// that ended the connection, if there was one.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		_ = s.Close()
	case <-s.closedChan:
	}

	return s.Wait()
}

// Send queues a line the user typed. It is safe to call from any goroutine.
func (s *Session) Send(intent string) error {
	s.mu.Lock()
	msgs, err := s.machine.Intent(intent)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, m := range msgs {
		s.log.Debug().Str("message", m.String()).Msg("queued")
	}

	s.signal()
	return nil
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Snapshot()
}

// Done closes once the connection is Closed.
func (s *Session) Done() <-chan struct{} {
	return s.closedChan
}

// Wait blocks until the connection is Closed and returns the transport error
// that ended it, if any.
func (s *Session) Wait() error {
	<-s.closedChan

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the connection now. Anything not yet sent is abandoned.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closing = true
	s.machine.TransportClosed()
	s.mu.Unlock()

	return s.shutdown()
}

// shutdown closes the transport once. This unblocks the reader.
func (s *Session) shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.doneChan)
		err = s.transport.Close()
	})
	return err
}

// fail records a transport failure and tears down the connection.
//
// If we were already closing then errors are expected (e.g. reading from the
// connection we just closed) and we don't record them.
func (s *Session) fail(op string, err error) {
	s.mu.Lock()
	expected := s.closing
	if !expected && s.err == nil {
		s.err = &TransportError{Op: op, Err: err}
	}
	s.closing = true
	s.machine.TransportClosed()
	s.mu.Unlock()

	if expected {
		s.log.Debug().Err(err).Str("op", op).Msg("connection finished")
	} else if errors.Is(err, io.EOF) {
		s.log.Info().Msg("server closed the connection")
	} else {
		s.log.Error().Err(err).Str("op", op).Msg("transport error")
	}

	if cerr := s.shutdown(); cerr != nil {
		s.log.Debug().Err(cerr).Msg("problem closing connection")
	}
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// reader endlessly reads from the transport, frames and parses what it gets,
// and applies each message to the state.
func (s *Session) reader() {
	defer s.wg.Done()

	buf := make([]byte, s.config.ReadBufferSize)

	for {
		n, err := s.transport.Read(buf)
		if n > 0 {
			if !s.processBytes(buf[:n]) {
				return
			}
		}

		if err != nil {
			s.fail("read", err)
			return
		}
	}
}

// processBytes handles a chunk read from the transport. It returns false if
// the connection must end.
func (s *Session) processBytes(p []byte) bool {
	for line, err := range s.framer.Feed(p) {
		if err != nil {
			if s.config.Framer.OversizedPolicy == framer.OversizedFail {
				s.fail("read", err)
				return false
			}
			s.log.Warn().Err(err).Msg("dropped line")
			continue
		}

		m, err := message.Parse(line)
		if err != nil {
			s.log.Warn().Err(err).Str("line", line).Msg("invalid message")
			continue
		}

		s.log.Debug().Str("message", m.String()).Msg("read")

		s.mu.Lock()
		before := s.machine.Phase()
		replies := s.machine.Receive(m)
		snapshot := s.machine.Snapshot()
		s.mu.Unlock()

		if before != snapshot.Phase() {
			s.log.Debug().Stringer("from", before).Stringer("to", snapshot.Phase()).
				Msg("phase change")
		}

		if len(replies) > 0 || snapshot.Phase() == Closing {
			s.signal()
		}

		if s.handler != nil {
			s.handler.HandleMessage(m, snapshot)
		}
	}

	return true
}

// writer sends queued messages in order.
//
// Once we are Closing and the queue is empty (e.g. the QUIT went out), it
// closes the transport.
func (s *Session) writer() {
	defer s.wg.Done()

	for {
		select {
		case <-s.doneChan:
			return
		default:
		}

		s.mu.Lock()
		m, ok := s.machine.Next()
		finished := !ok && s.machine.Phase() == Closing
		if finished {
			s.closing = true
		}
		s.mu.Unlock()

		if finished {
			if err := s.shutdown(); err != nil {
				s.log.Debug().Err(err).Msg("problem closing connection")
			}
			return
		}

		if !ok {
			select {
			case <-s.wake:
			case <-s.doneChan:
				return
			}
			continue
		}

		if err := s.writeMessage(m); err != nil {
			s.fail("write", err)
			return
		}
	}
}

// writeMessage encodes a message and writes it to the transport.
func (s *Session) writeMessage(m message.Message) error {
	buf, err := m.Encode()
	if err != nil {
		if err != irc.ErrTruncated {
			// Intents are checked when queued so this should not happen.
			s.log.Error().Err(err).Str("message", m.String()).Msg("unable to encode")
			return nil
		}
		s.log.Warn().Str("message", m.String()).Msg("message truncated")
	}

	sz, err := io.WriteString(s.transport, buf)
	if err != nil {
		return err
	}

	if sz != len(buf) {
		return errors.New("short write")
	}

	s.log.Debug().Str("message", strings.TrimRight(buf, "\r\n")).Msg("sent")
	return nil
}
