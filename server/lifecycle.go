package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/logger"
)

// ListenAndServe serves on the configured port until Stop is called
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.config().Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Infow("HTTP server listening", logger.FieldAddress, ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Stop drains the server: new connections are refused, every session is
// closed, every room flushes its pending snapshot and the HTTP listener
// shuts down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(ServerStateRunning), int32(ServerStateDraining)) {
		return nil
	}
	s.logger.Infow("Server state changed", "new_state", ServerStateDraining.String())

	var result error
	if err := s.hub.shutdown(ctx); err != nil {
		s.logger.Errorw("Rooms did not flush cleanly", logger.FieldError, err)
		result = err
	}

	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			result = errors.CombineErrors(result, errors.Wrap(err, "http shutdown"))
		}
	}

	s.setState(ServerStateStopped)
	return result
}
