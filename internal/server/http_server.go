// Package server runs the relay's HTTP lifecycle: bind, serve, and
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// listen binds the configured address. When the port was not explicitly
// configured and the default is already taken, it falls back to an
// ephemeral port; an explicitly configured port that cannot bind is fatal.
func (s *Server) listen() (net.Listener, error) {
	addr := s.cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		return ln, nil
	}

	if s.cfg.PortExplicit() {
		return nil, fmt.Errorf("unable to bind HTTP server to %s: %w", addr, err)
	}

	s.log.Warn().Int("port", s.cfg.Port).Msg("port is already in use, falling back to a random open port")
	ln, fallbackErr := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, "0"))
	if fallbackErr != nil {
		return nil, fmt.Errorf("unable to bind HTTP server to %s: %w", addr, fallbackErr)
	}
	return ln, nil
}

// Run starts the hub and HTTP server, then blocks until ctx is canceled or
// the server fails. On cancellation it shuts down the HTTP server and the
// hub within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run()

	ln, err := s.listen()
	if err != nil {
		s.hub.cancel()
		<-s.hub.done
		return err
	}

	httpServer := &http.Server{
		Handler:     s.Routes(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.log.Info().Msgf("server running at http://%s", displayAddr(s.cfg.Host, ln))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown(httpServer)
	case err := <-errCh:
		s.hub.cancel()
		<-s.hub.done
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// shutdown stops accepting connections, drains the HTTP server, and closes
// all hub clients.
func (s *Server) shutdown(httpServer *http.Server) error {
	s.log.Info().Msg("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	httpErr := httpServer.Shutdown(shutdownCtx)
	if httpErr != nil {
		s.log.Warn().Err(httpErr).Msg("HTTP server shutdown error")
	}

	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		s.log.Warn().Err(err).Msg("hub shutdown incomplete")
		if httpErr == nil {
			httpErr = err
		}
	}

	s.log.Info().Msg("shutdown completed")
	return httpErr
}

// displayAddr mirrors the bound address back for the startup log, using
// localhost when listening on the wildcard address.
func displayAddr(host string, ln net.Listener) string {
	displayed := host
	if displayed == "0.0.0.0" || displayed == "" || displayed == "::" {
		displayed = "localhost"
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf("%s:%d", displayed, tcp.Port)
	}
	return ln.Addr().String()
}
