package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/thushan/llamatap/internal/logger"
)

// HTTPService runs one http.Server. The proxy and the metrics listener both use it.
type HTTPService struct {
	server   *http.Server
	listener net.Listener
	done     chan struct{}
	logger   *logger.StyledLogger
	name     string
	deps     []string
}

func NewHTTPService(name string, server *http.Server, deps []string, log *logger.StyledLogger) *HTTPService {
	return &HTTPService{
		name:   name,
		server: server,
		deps:   deps,
		logger: log,
	}
}

func (s *HTTPService) Name() string           { return s.name }
func (s *HTTPService) Dependencies() []string { return s.deps }

// Start binds before returning so a port clash fails startup instead of a goroutine
func (s *HTTPService) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("%s listener on %s: %w", s.name, s.server.Addr, err)
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", "service", s.name, "error", err)
		}
	}()

	s.logger.Info("Listening", "service", s.name, "address", ln.Addr().String())
	return nil
}

func (s *HTTPService) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	<-s.done
	if err != nil {
		return fmt.Errorf("%s shutdown: %w", s.name, err)
	}
	return nil
}

// Addr is the bound address, useful when configured with port 0
func (s *HTTPService) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
