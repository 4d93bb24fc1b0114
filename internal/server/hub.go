// Package server coordinates client registration, message fanout, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub manages all WebSocket client connections and fans persisted messages
// out to them. Fanout is fire-and-forget per connection: a slow or
// disconnected recipient is dropped rather than blocking the submission
// path. Every connected client receives each broadcast, including the
// submitter, so acknowledgment and delivery stay independent.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	onRegister func(*Client)
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        zerolog.Logger
}

// NewHub creates a Hub ready to manage connections. onRegister, if non-nil,
// runs after a client is registered and its pumps are started; it must not
// block the hub loop.
func NewHub(log zerolog.Logger, onRegister func(*Client)) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		onRegister: onRegister,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// Broadcast queues a payload for delivery to every connected client.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	case <-h.ctx.Done():
	}
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// underneath us by an unregister.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop. It should be called in its own
// goroutine; it returns only after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.log.Info().
				Str("client", client.id).
				Str("addr", client.addr).
				Int("total", clientCount).
				Msg("client registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

			if h.onRegister != nil {
				h.onRegister(client)
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock
				close(client.send)
				h.log.Info().
					Str("client", client.id).
					Int("total", clientCount).
					Msg("client unregistered")
			} else {
				h.mutex.Unlock()
			}

		case payload := <-h.broadcast:
			h.handleBroadcast(payload)
		}
	}
}

// handleBroadcast delivers a payload to every connected client and removes
// the ones whose send buffers are full or already closed.
func (h *Hub) handleBroadcast(payload []byte) {
	clients := h.clientSnapshot()

	var clientsToRemove []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	h.removeFailedClients(clientsToRemove)
}

// clientSnapshot returns a thread-safe snapshot of all current clients.
func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn().
				Str("client", client.id).
				Msg("client removed due to full send buffer")
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.log.Warn().Err(err).Str("client", client.id).Msg("error closing client connection")
				}
			}
		}
	}

	h.log.Info().Int("count", len(clients)).Msg("closed client connections")
}

// Shutdown stops the hub, closes all connections, and waits for the pump
// goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
