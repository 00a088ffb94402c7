package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const readHeaderTimeout = 5 * time.Second

// Server exposes a metrics handler on /metrics.
type Server struct {
	listener net.Listener
	srv      *http.Server
}

// NewServer binds addr right away so that Addr is known before Run is called.
func NewServer(addr string, handler http.Handler) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	return &Server{
		listener: listener,
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout},
	}, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Run serves until Shutdown is called.
func (s *Server) Run(logger Logger) {
	err := s.srv.Serve(s.listener)
	if !errors.Is(err, http.ErrServerClosed) && logger != nil {
		logger.Errorf("error while serving metrics, err: %v", err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}

	return s.srv.Shutdown(ctx)
}
