package medium

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/protocol"
	"github.com/cairn-scm/cairn/src/smart"
	"github.com/cairn-scm/cairn/src/transport"
)

// DefaultConnectionTimeout is how long a server connection may sit idle
// between requests before it is dropped.
const DefaultConnectionTimeout = 300 * time.Second

var serverRequests = metrics.GetOrCreateCounter("cairn_server_requests_total")

// ServerMedium serves framed requests from one connection until it closes,
// times out, or is stopped.
type ServerMedium interface {
	Serve() error
	Stop()
}

// serverStreamMedium is the request loop shared by socket and pipe serving:
// wait for bytes, sniff the protocol version, feed the decoder until the
// request completes, repeat. Requests on one connection are strictly
// sequential.
type serverStreamMedium struct {
	buffered
	writer io.Writer

	backing        transport.Transport
	rootClientPath string
	refuseVFS      bool
	timeout        time.Duration
	logger         *logrus.Entry

	finished int32
}

func (m *serverStreamMedium) init(r io.Reader, w io.Writer, backing transport.Transport, rootClientPath string, refuseVFS bool, timeout time.Duration, logger *logrus.Entry) {
	if timeout == 0 {
		timeout = DefaultConnectionTimeout
	}
	m.raw = r
	m.writer = w
	m.backing = backing
	m.rootClientPath = rootClientPath
	m.refuseVFS = refuseVFS
	m.timeout = timeout
	m.logger = logger
}

// Stop asks the serve loop to exit. It is observed between requests and
// inside the idle poll, so shutdown latency is bounded by the poll slice.
func (m *serverStreamMedium) Stop() {
	atomic.StoreInt32(&m.finished, 1)
}

func (m *serverStreamMedium) stopped() bool {
	return atomic.LoadInt32(&m.finished) == 1
}

func (m *serverStreamMedium) newHandler() *smart.Handler {
	return smart.NewHandler(m.backing, m.rootClientPath, m.refuseVFS, m.logger)
}

func (m *serverStreamMedium) write(data []byte) error {
	_, err := m.writer.Write(data)
	return err
}

// Serve runs requests until the peer disconnects, the connection idles out,
// or Stop is called. All three are normal ends and return nil.
func (m *serverStreamMedium) Serve() error {
	for !m.stopped() {
		err := m.serveOneRequest()
		switch err {
		case nil:
			continue
		case io.EOF:
			m.logger.Debug("Client disconnected")
			return nil
		case ErrWaitTimeout:
			m.logger.WithField("timeout", m.timeout).Info("Connection idle, closing")
			return nil
		case ErrServerStopped:
			return nil
		default:
			m.logger.WithError(err).Debug("Connection failed")
			return err
		}
	}
	return nil
}

// ServeOne handles exactly one request, for carriers where each request
// arrives on its own stream (the HTTP front end).
func (m *serverStreamMedium) ServeOne() error {
	return m.serveOneRequest()
}

func (m *serverStreamMedium) serveOneRequest() error {
	if err := m.waitForBytes(m.timeout, m.stopped); err != nil {
		return err
	}

	proto, err := m.buildProtocol()
	if err != nil {
		return err
	}
	for proto.NextReadSize() != 0 {
		data, err := m.ReadBytes(MaxReadSize)
		if len(data) > 0 {
			if err := proto.AcceptBytes(data); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			// Mid-request disconnects are not clean; the decoder never
			// produced a response.
			return err
		}
	}
	m.PushBack(proto.UnusedData())
	serverRequests.Inc()
	return nil
}

// buildProtocol reads the first request line and picks the matching decoder.
// Legacy requests have no marker, so the sniffed line is re-fed to the
// decoder as payload.
func (m *serverStreamMedium) buildProtocol() (protocol.ServerProtocol, error) {
	line, err := m.GetLine()
	if err != nil {
		if len(line) == 0 {
			return nil, io.EOF
		}
		return nil, err
	}

	factory, unused, version := protocol.DetectVersion(line)
	m.logger.WithField("version", version).Debug("Serving request")

	proto := factory(m.newHandler, m.write, m.logger)
	if len(unused) > 0 {
		if err := proto.AcceptBytes(unused); err != nil {
			return nil, err
		}
	}
	return proto, nil
}

// SocketServerMedium serves one accepted network connection.
type SocketServerMedium struct {
	serverStreamMedium
	conn net.Conn
}

// NewSocketServerMedium wraps an accepted connection. A zero timeout means
// DefaultConnectionTimeout.
func NewSocketServerMedium(conn net.Conn, backing transport.Transport, rootClientPath string, refuseVFS bool, timeout time.Duration, logger *logrus.Entry) *SocketServerMedium {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	m := &SocketServerMedium{conn: conn}
	m.init(conn, conn, backing, rootClientPath, refuseVFS, timeout,
		logger.WithField("remote", conn.RemoteAddr().String()))
	return m
}

// Serve runs the request loop and closes the connection on exit.
func (m *SocketServerMedium) Serve() error {
	defer m.conn.Close()
	return m.serverStreamMedium.Serve()
}

// PipeServerMedium serves a reader/writer pair, typically stdin/stdout when
// running under inetd or an ssh tunnel, or an HTTP request/response pair.
type PipeServerMedium struct {
	serverStreamMedium
}

// NewPipeServerMedium wraps the given pipes.
func NewPipeServerMedium(r io.Reader, w io.Writer, backing transport.Transport, rootClientPath string, refuseVFS bool, timeout time.Duration, logger *logrus.Entry) *PipeServerMedium {
	m := &PipeServerMedium{}
	m.init(r, w, backing, rootClientPath, refuseVFS, timeout, logger)
	return m
}
