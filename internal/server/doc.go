// Package server implements the intern-chat message relay: WebSocket
// transport, idempotent message submission, broadcast fanout, and backlog
// replay for reconnecting clients.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, submission, replay, routing, and HTTP handlers
// to keep the codebase maintainable and testable as the project grows.
package server
