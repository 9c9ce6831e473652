package medium

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DefaultPort is the TCP port cairn servers listen on when none is given.
const DefaultPort = 7641

// ClientRequest frames one request/response exchange. The caller writes the
// request bytes, marks writing finished, reads the response, and marks
// reading finished; doing these out of order is an error.
type ClientRequest interface {
	// Accept buffers or sends request bytes.
	Accept(data []byte) error

	// FinishedWriting flushes the request to the server and switches the
	// request to its reading state.
	FinishedWriting() error

	// ReadBytes returns up to n response bytes.
	ReadBytes(n int) ([]byte, error)

	// ReadLine reads one newline-terminated response line.
	ReadLine() ([]byte, error)

	// FinishedReading releases the medium for the next request.
	FinishedReading() error
}

// ClientMedium is a client's connection to a smart server.
type ClientMedium interface {
	// GetRequest starts a new exchange. Stream mediums allow only one at a
	// time.
	GetRequest() (ClientRequest, error)

	// Disconnect drops the connection, if any. The medium may reconnect on
	// the next request.
	Disconnect() error

	// IsRemoteBefore reports whether the server is known not to support
	// the given protocol version.
	IsRemoteBefore(version int) bool

	// RememberRemoteBefore records that the server rejected the given
	// protocol version, so later requests skip it.
	RememberRemoteBefore(version int)
}

// baseClientMedium carries the protocol-version memory shared by all client
// mediums.
type baseClientMedium struct {
	// remoteBefore is the lowest protocol version the server is known to
	// lack; zero means nothing is known yet.
	remoteBefore int
	logger       *logrus.Entry
}

func (m *baseClientMedium) IsRemoteBefore(version int) bool {
	return m.remoteBefore != 0 && version >= m.remoteBefore
}

func (m *baseClientMedium) RememberRemoteBefore(version int) {
	if m.remoteBefore != 0 && version > m.remoteBefore {
		m.logger.WithFields(logrus.Fields{
			"known": m.remoteBefore,
			"new":   version,
		}).Warn("Already knew the server lacks an older protocol version")
		return
	}
	m.remoteBefore = version
}

// streamClientMedium is the shared machinery of pipe, TCP and SSH client
// mediums: a byte stream carrying sequential framed requests.
type streamClientMedium struct {
	baseClientMedium
	buffered
	writer  io.Writer
	current *streamRequest
	id      string
}

func (m *streamClientMedium) GetRequest() (ClientRequest, error) {
	if m.current != nil {
		return nil, ErrTooManyConcurrentRequests
	}
	if err := m.ensureConnection(); err != nil {
		return nil, err
	}
	countMediumCall(m.id)
	req := &streamRequest{medium: m}
	m.current = req
	return req, nil
}

// ensureConnection is overridden by mediums that connect lazily; the base
// stream is assumed live.
func (m *streamClientMedium) ensureConnection() error {
	return nil
}

func (m *streamClientMedium) write(data []byte) error {
	_, err := m.writer.Write(data)
	return err
}

// requestState tracks the strict write-then-read lifecycle of one request.
type requestState int

const (
	stateWriting requestState = iota
	stateReading
	stateDone
)

// streamRequest is the ClientRequest used over stream mediums.
type streamRequest struct {
	medium *streamClientMedium
	state  requestState
}

func (r *streamRequest) Accept(data []byte) error {
	if r.state != stateWriting {
		return ErrWritingCompleted
	}
	return r.medium.write(data)
}

func (r *streamRequest) FinishedWriting() error {
	if r.state != stateWriting {
		return ErrWritingCompleted
	}
	r.state = stateReading
	return nil
}

func (r *streamRequest) readGuard() error {
	switch r.state {
	case stateWriting:
		return ErrWritingNotComplete
	case stateDone:
		return ErrReadingCompleted
	}
	return nil
}

func (r *streamRequest) ReadBytes(n int) ([]byte, error) {
	if err := r.readGuard(); err != nil {
		return nil, err
	}
	return r.medium.ReadBytes(n)
}

func (r *streamRequest) ReadLine() ([]byte, error) {
	if err := r.readGuard(); err != nil {
		return nil, err
	}
	return r.medium.GetLine()
}

func (r *streamRequest) FinishedReading() error {
	if err := r.readGuard(); err != nil {
		return err
	}
	r.state = stateDone
	r.medium.current = nil
	return nil
}

// PipesClientMedium frames requests over an existing reader/writer pair,
// typically the pipes of a subprocess or an inherited stdin/stdout.
type PipesClientMedium struct {
	streamClientMedium
}

// NewPipesClientMedium wraps the given pipes.
func NewPipesClientMedium(r io.Reader, w io.Writer, logger *logrus.Entry) *PipesClientMedium {
	m := &PipesClientMedium{}
	m.raw = r
	m.writer = w
	m.logger = logger
	m.id = newMediumID("pipes")
	return m
}

// Disconnect closes the write side when it is closable; the read side
// belongs to whoever created the pipe.
func (m *PipesClientMedium) Disconnect() error {
	dropMediumCount(m.id)
	if c, ok := m.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// TCPClientMedium connects to host:port on first use.
type TCPClientMedium struct {
	streamClientMedium
	host string
	port int
	conn net.Conn
}

// NewTCPClientMedium prepares a medium for host:port; port zero selects
// DefaultPort. No connection is made until the first request.
func NewTCPClientMedium(host string, port int, logger *logrus.Entry) *TCPClientMedium {
	if port == 0 {
		port = DefaultPort
	}
	m := &TCPClientMedium{host: host, port: port}
	m.logger = logger
	m.id = newMediumID("tcp")
	return m
}

func (m *TCPClientMedium) GetRequest() (ClientRequest, error) {
	if m.current != nil {
		return nil, ErrTooManyConcurrentRequests
	}
	if err := m.ensureConnection(); err != nil {
		return nil, err
	}
	countMediumCall(m.id)
	req := &streamRequest{medium: &m.streamClientMedium}
	m.current = req
	return req, nil
}

func (m *TCPClientMedium) ensureConnection() error {
	if m.conn != nil {
		return nil
	}
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("medium: connecting to %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Request/response round trips suffer badly under Nagle.
		tcp.SetNoDelay(true)
	}
	m.logger.WithField("addr", addr).Debug("Connected")
	m.conn = conn
	m.raw = conn
	m.writer = conn
	return nil
}

// Disconnect drops the TCP connection; the next request redials.
func (m *TCPClientMedium) Disconnect() error {
	dropMediumCount(m.id)
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	m.raw = nil
	m.writer = nil
	m.pushback = nil
	m.current = nil
	return err
}

// SocketClientMedium frames requests over a connection somebody else
// already established, for example the server side of a tunneled stream.
type SocketClientMedium struct {
	streamClientMedium
	conn net.Conn
}

// NewSocketClientMedium wraps an established connection.
func NewSocketClientMedium(conn net.Conn, logger *logrus.Entry) *SocketClientMedium {
	m := &SocketClientMedium{conn: conn}
	m.raw = conn
	m.writer = conn
	m.logger = logger
	m.id = newMediumID("socket")
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return m
}

// Disconnect closes the wrapped connection.
func (m *SocketClientMedium) Disconnect() error {
	dropMediumCount(m.id)
	return m.conn.Close()
}
