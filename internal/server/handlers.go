// Package server exposes the relay's HTTP surface: the WebSocket upgrade
// endpoint, the runtime configuration script, static assets, and the health
// check.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/VaagenIM-CardSharp/intern-chat/internal/store"
)

// Server owns the relay's components and lifecycle state. Everything that
// used to be ambient process state (configuration, the hub, shutdown
// coordination) is explicit here.
type Server struct {
	cfg       *Config
	hub       *Hub
	store     *store.Store
	submitter *Submitter
	replayer  *Replayer
	origins   *originPolicy
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

// New assembles a Server from its configuration and an opened store. The
// caller retains ownership of the store and closes it after Run returns.
func New(cfg *Config, st *store.Store, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		origins: newOriginPolicy(cfg.AllowedOrigins, log),
		log:     log,
	}

	s.hub = NewHub(log, s.onRegister)
	s.submitter = NewSubmitter(st, s.hub, cfg.MaxMessageLength, log)
	s.replayer = NewReplayer(st, s.hub, log)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}

	return s
}

// onRegister runs in the hub loop once a client's pumps are started.
// Replay happens strictly after registration so backfilled events flow
// through the same guarded send path as live broadcasts.
func (s *Server) onRegister(client *Client) {
	if client.resumed {
		return
	}
	s.hub.wg.Add(1)
	go func() {
		defer s.hub.wg.Done()
		s.replayer.Backfill(s.hub.ctx, client, client.serverOffset)
	}()
}

// HandleWebSocket upgrades the HTTP connection, reads the client-declared
// replay offset and resumed flag from the handshake query, and registers
// the new client with the hub.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	query := r.URL.Query()
	client := newClient(conn, s.hub, s.submitter, s.cfg, r.RemoteAddr, s.log)
	client.serverOffset = parseOffset(query.Get("serverOffset"))
	client.resumed = query.Get("resumed") == "1" || query.Get("resumed") == "true"

	// The hub launches the pump goroutines and triggers replay.
	s.hub.register <- client
}

// HandleConfigScript serves the computed runtime configuration consumed by
// the static chat page. Never cached: the limit may differ per deployment.
func (s *Server) HandleConfigScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/javascript")
	script := fmt.Sprintf("window.__APP_CONFIG__ = Object.freeze({ maxMessageLength: %d });", s.cfg.MaxMessageLength)
	if _, err := fmt.Fprint(w, script); err != nil {
		s.log.Warn().Err(err).Msg("error writing config script")
	}
}

// HandleHealth provides a simple health check endpoint.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "intern-chat relay is running!")
}

// Hub returns the server's hub for shutdown coordination and tests.
func (s *Server) Hub() *Hub {
	return s.hub
}
