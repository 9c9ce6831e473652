package server

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/config"
	"github.com/cairn-scm/cairn/src/medium"
	"github.com/cairn-scm/cairn/src/signals"
	"github.com/cairn-scm/cairn/src/smart"
	"github.com/cairn-scm/cairn/src/transport"
)

// HTTPServer carries one smart request per POST: the POST body is the framed
// request and the response body the framed reply. There is no per-connection
// state, which suits proxies and load balancers.
type HTTPServer struct {
	srv     *http.Server
	backing transport.Transport
	noVFS   bool
	logger  *logrus.Entry
}

// NewHTTPServer builds the HTTP front end per the config; it listens on
// cfg.HTTPAddr once Serve is called.
func NewHTTPServer(cfg *config.Config) (*HTTPServer, error) {
	backing, err := transport.NewLocalTransport(cfg.Directory, cfg.ReadOnly)
	if err != nil {
		return nil, err
	}
	if cfg.SearchBudget > 0 {
		smart.SearchBudget = cfg.SearchBudget
	}

	s := &HTTPServer{
		backing: backing,
		noVFS:   cfg.NoVFS,
		logger:  cfg.Logger(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSmart)
	s.srv = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
	return s, nil
}

func (s *HTTPServer) handleSmart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "smart requests are POST only", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", medium.SmartContentType)

	m := medium.NewPipeServerMedium(r.Body, w, s.backing, "/", s.noVFS, 0, s.logger)
	if err := m.ServeOne(); err != nil {
		s.logger.WithError(err).Debug("Smart POST failed")
		// Too late for an HTTP status if the response started; just drop.
	}
}

// Serve runs the listener until Shutdown.
func (s *HTTPServer) Serve() error {
	token := signals.Register(s.Shutdown)
	defer signals.Unregister(token)

	s.logger.WithField("addr", s.srv.Addr).Info("HTTP front end listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight POSTs and closes the listener.
func (s *HTTPServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.srv.Shutdown(ctx)
}
