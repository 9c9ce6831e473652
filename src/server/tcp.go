// Package server provides the process-level front ends of a cairn server: a
// TCP listener, a single-connection pipe server for inetd/ssh operation, and
// an HTTP endpoint carrying one request per POST. All three resolve client
// paths against one backing transport and share the graceful-shutdown
// machinery.
package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/config"
	"github.com/cairn-scm/cairn/src/medium"
	"github.com/cairn-scm/cairn/src/signals"
	"github.com/cairn-scm/cairn/src/smart"
	"github.com/cairn-scm/cairn/src/transport"
)

var acceptedConns = metrics.GetOrCreateCounter("cairn_connections_accepted_total")

// acceptPollInterval bounds how long the accept loop can miss a shutdown
// request.
const acceptPollInterval = time.Second

// TCPServer serves smart requests on a TCP listener, one goroutine per
// connection.
type TCPServer struct {
	listener *net.TCPListener
	backing  transport.Transport
	timeout  time.Duration
	noVFS    bool
	logger   *logrus.Entry

	conns   *xsync.MapOf[uint64, *medium.SocketServerMedium]
	connSeq uint64

	shutdownCh   chan struct{}
	shutdown     bool
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

// NewTCPServer binds the listener described by the config. Serving starts
// with Serve.
func NewTCPServer(cfg *config.Config) (*TCPServer, error) {
	backing, err := transport.NewLocalTransport(cfg.Directory, cfg.ReadOnly)
	if err != nil {
		return nil, err
	}
	if cfg.SearchBudget > 0 {
		smart.SearchBudget = cfg.SearchBudget
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, err
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &TCPServer{
		listener:   listener,
		backing:    backing,
		timeout:    cfg.Timeout,
		noVFS:      cfg.NoVFS,
		logger:     cfg.Logger(),
		conns:      xsync.NewMapOf[uint64, *medium.SocketServerMedium](),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Addr returns the bound listen address.
func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown. The accept call polls with a
// short deadline so a shutdown request is noticed even while idle.
func (s *TCPServer) Serve() error {
	token := signals.Register(s.Shutdown)
	defer signals.Unregister(token)

	s.logger.WithField("addr", s.Addr().String()).Info("Listening")

	for {
		select {
		case <-s.shutdownCh:
			return nil
		default:
		}

		s.listener.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.shutdownCh:
				return nil
			default:
			}
			s.logger.WithError(err).Error("Accept failed")
			return err
		}
		s.handleConn(conn)
	}
}

func (s *TCPServer) handleConn(conn net.Conn) {
	acceptedConns.Inc()
	id := atomic.AddUint64(&s.connSeq, 1)
	m := medium.NewSocketServerMedium(conn, s.backing, "/", s.noVFS, s.timeout, s.logger)
	s.conns.Store(id, m)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.conns.Delete(id)
		m.Serve()
	}()
}

// Shutdown stops accepting, asks live connections to stop, and waits for
// them. Safe to call more than once, including from a signal callback.
func (s *TCPServer) Shutdown() {
	s.shutdownLock.Lock()
	if s.shutdown {
		s.shutdownLock.Unlock()
		return
	}
	s.shutdown = true
	close(s.shutdownCh)
	s.shutdownLock.Unlock()

	s.logger.Info("Shutting down")
	s.listener.Close()
	s.conns.Range(func(_ uint64, m *medium.SocketServerMedium) bool {
		m.Stop()
		return true
	})
	s.wg.Wait()
}
