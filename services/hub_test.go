package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(hub *Hub, userID uint, buffer int) *Client {
	return &Client{
		hub:    hub,
		id:     "test-device",
		send:   make(chan []byte, buffer),
		userID: userID,
		device: "test",
	}
}

func TestBroadcastToUserReachesOnlyThatUser(t *testing.T) {
	hub := NewHub()
	mine := newHubClient(hub, 1, 1)
	other := newHubClient(hub, 2, 1)
	hub.clients[mine] = true
	hub.clients[other] = true

	hub.BroadcastToUser(1, "usage_invalidated", nil)

	require.Len(t, mine.send, 1)
	assert.Empty(t, other.send)
	assert.Equal(t, 1, hub.ConnectedDevices(1))
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := newHubClient(hub, 1, 1)
	hub.clients[slow] = true

	// Fill the buffer so the next broadcast finds the device stuck.
	slow.send <- []byte("backlog")

	hub.BroadcastToUser(1, "usage_invalidated", nil)

	assert.Equal(t, 0, hub.ConnectedDevices(1))
	assert.True(t, slow.closed)
}

func TestClientSendAfterCloseDoesNotPanic(t *testing.T) {
	hub := NewHub()
	client := newHubClient(hub, 1, 1)

	// A pong queued while the hub is dropping the device must not write
	// to the closed channel.
	client.closeSend()
	assert.NotPanics(t, func() {
		assert.False(t, client.trySend([]byte("pong")))
	})

	// Closing twice is equally safe.
	assert.NotPanics(t, client.closeSend)
}
