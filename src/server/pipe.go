package server

import (
	"io"

	"github.com/cairn-scm/cairn/src/config"
	"github.com/cairn-scm/cairn/src/medium"
	"github.com/cairn-scm/cairn/src/signals"
	"github.com/cairn-scm/cairn/src/smart"
	"github.com/cairn-scm/cairn/src/transport"
)

// PipeServer serves exactly one connection over a reader/writer pair. This
// is the --inet mode: inetd or an ssh tunnel hands the process a connected
// stdin/stdout and the process exits when the peer goes away.
type PipeServer struct {
	medium *medium.PipeServerMedium
}

// NewPipeServer builds a pipe server over r and w per the config.
func NewPipeServer(cfg *config.Config, r io.Reader, w io.Writer) (*PipeServer, error) {
	backing, err := transport.NewLocalTransport(cfg.Directory, cfg.ReadOnly)
	if err != nil {
		return nil, err
	}
	if cfg.SearchBudget > 0 {
		smart.SearchBudget = cfg.SearchBudget
	}
	return &PipeServer{
		medium: medium.NewPipeServerMedium(r, w, backing, "/", cfg.NoVFS, cfg.Timeout, cfg.Logger()),
	}, nil
}

// Serve runs until the peer disconnects or a shutdown signal arrives.
func (s *PipeServer) Serve() error {
	token := signals.Register(s.medium.Stop)
	defer signals.Unregister(token)
	return s.medium.Serve()
}

// Stop asks the serve loop to exit.
func (s *PipeServer) Stop() {
	s.medium.Stop()
}
