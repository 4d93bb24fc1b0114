package server

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticClient(hub *Hub, buffer int) *Client {
	client := &Client{
		id:   "hub-test",
		send: make(chan []byte, buffer),
	}
	hub.clients[client] = true
	return client
}

func TestHandleBroadcast_DeliversToAllClientsIncludingSubmitter(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)

	a := syntheticClient(hub, 4)
	b := syntheticClient(hub, 4)

	hub.handleBroadcast([]byte(`{"type":"message","id":1,"content":"hello"}`))

	// Fanout excludes nobody; the submitter sees its own message too.
	require.Len(t, a.send, 1)
	require.Len(t, b.send, 1)
	assert.Equal(t, <-a.send, <-b.send)
}

func TestHandleBroadcast_DropsClientWithFullBuffer(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)

	healthy := syntheticClient(hub, 4)
	stuck := syntheticClient(hub, 1)
	stuck.send <- []byte("occupied")

	hub.handleBroadcast([]byte("payload"))

	// The healthy client got the payload; the stuck one was removed and its
	// channel closed without blocking the broadcast.
	require.Len(t, healthy.send, 1)
	_, stillRegistered := hub.clients[stuck]
	assert.False(t, stillRegistered)
	assert.True(t, stuck.closed)
}

func TestSafeSend_UnregisteredClient(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	client := &Client{id: "loose", send: make(chan []byte, 1)}

	assert.False(t, hub.safeSend(client, []byte("payload")))
	assert.Empty(t, client.send)
}

func TestHubRun_NilRegistrationIsSkipped(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	go hub.Run()

	select {
	case hub.register <- nil:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("hub did not accept registration")
	}

	require.NoError(t, hub.Shutdown(time.Second))
}

func TestHubShutdown_CompletesWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	go hub.Run()

	err := hub.Shutdown(time.Second)
	assert.NoError(t, err)
}

func TestBroadcast_DoesNotBlockAfterShutdown(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	done := make(chan struct{})
	go func() {
		hub.Broadcast([]byte("late payload"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked after hub shutdown")
	}
}
