package daemon

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentry-dev/agentry/internal/protocol"
)

func TestSubscriber_StalledPeerFailsFast(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	// No writer is draining, so the buffer fills; every enqueue must
	// still return promptly instead of blocking the broadcaster.
	sub := newSubscriber("/repo", server)
	defer sub.stop()

	var failed error
	for i := 0; i < outboundBuffer+1; i++ {
		if err := sub.enqueue(protocol.Ack{}); err != nil {
			failed = err
			break
		}
	}
	require.Error(t, failed)
	assert.Contains(t, failed.Error(), "stalled")
	assert.Contains(t, failed.Error(), sub.id)
}

func TestSubscriber_WriteLoopDeliversInOrder(t *testing.T) {
	server, client := net.Pipe()
	require.NoError(t, client.SetDeadline(time.Now().Add(2*time.Second)))

	sub := newSubscriber("/repo", server)
	go sub.writeLoop()
	defer sub.stop()

	require.NoError(t, sub.enqueue(protocol.Pong{Nonce: 1}))
	require.NoError(t, sub.enqueue(protocol.Pong{Nonce: 2}))

	for want := uint64(1); want <= 2; want++ {
		msg, err := protocol.ReadServer(client)
		require.NoError(t, err)
		pong, ok := msg.(protocol.Pong)
		require.True(t, ok)
		assert.Equal(t, want, pong.Nonce)
	}
	client.Close()
}

func TestSubscriber_EnqueueAfterStop(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	sub := newSubscriber("/repo", server)
	sub.stop()
	assert.ErrorIs(t, sub.enqueue(protocol.Ack{}), net.ErrClosed)
}

func TestSubscriberSet_AddRemove(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	set := newSubscriberSet()
	sub := newSubscriber("/repo", server)

	set.add(sub)
	require.Len(t, set.copyFor("/repo"), 1)
	assert.Equal(t, []string{"/repo"}, set.projects())

	set.remove(sub)
	assert.Empty(t, set.copyFor("/repo"))
	assert.Empty(t, set.projects())
}
