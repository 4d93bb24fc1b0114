// Package server wires HTTP handlers into a ServeMux for the relay.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application
// routes: the WebSocket endpoint, the runtime config script, the health
// check, and the static asset tree.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/config.js", s.HandleConfigScript)
	mux.HandleFunc("/healthz", s.HandleHealth)
	mux.Handle("/", http.FileServer(http.Dir(s.cfg.PublicDir)))
	return mux
}
