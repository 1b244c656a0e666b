package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docassist-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHub(nil, "test", logger.NewNopLogger())
	go h.Run(ctx)
	return h
}

func newTestClient(h *Hub, sessionID string, buffer int) *Client {
	c := NewClient(h, nil, sessionID)
	c.Send = make(chan []byte, buffer)
	return c
}

func TestDeliverReachesOnlyWatchers(t *testing.T) {
	h := startHub(t)

	a := newTestClient(h, "s-1", 4)
	b := newTestClient(h, "s-2", 4)
	require.True(t, h.join(a))
	require.True(t, h.join(b))
	assert.Equal(t, 1, h.Watchers("s-1"))
	assert.Equal(t, 1, h.Watchers("s-2"))

	h.Deliver("s-1", []byte(`{"type":"session_change"}`))

	select {
	case got := <-a.Send:
		assert.JSONEq(t, `{"type":"session_change"}`, string(got))
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
	assert.Empty(t, b.Send)
}

func TestUnregisterClosesSend(t *testing.T) {
	h := startHub(t)

	c := newTestClient(h, "s-1", 1)
	require.True(t, h.join(c))
	h.leave(c)

	require.Eventually(t, func() bool { return h.Watchers("s-1") == 0 }, time.Second, time.Millisecond)
	_, open := <-c.Send
	assert.False(t, open)
}

func TestFullBufferDropsClient(t *testing.T) {
	h := startHub(t)

	c := newTestClient(h, "s-1", 1)
	require.True(t, h.join(c))

	h.Deliver("s-1", []byte("1"))
	h.Deliver("s-1", []byte("2"))
	h.Deliver("s-1", []byte("3"))

	require.Eventually(t, func() bool { return h.Watchers("s-1") == 0 }, time.Second, time.Millisecond)
	assert.True(t, c.dropped.Load())
}

func TestDeliverWhileClientsLeave(t *testing.T) {
	h := startHub(t)

	clients := make([]*Client, 100)
	for i := range clients {
		clients[i] = newTestClient(h, "s-1", 1)
		require.True(t, h.join(clients[i]))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					assert.NotPanics(t, func() { h.Deliver("s-1", []byte("x")) })
				}
			}
		}()
	}

	for _, c := range clients {
		h.leave(c)
	}
	close(stop)
	wg.Wait()

	require.Eventually(t, func() bool { return h.Watchers("s-1") == 0 }, time.Second, time.Millisecond)
}

func TestLeaveAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil, "test", logger.NewNopLogger())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := newTestClient(h, "s-1", 1)
	require.True(t, h.join(c))
	cancel()
	<-stopped

	left := make(chan struct{})
	go func() {
		h.leave(c)
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leave blocked on a stopped hub")
	}
	assert.False(t, h.join(newTestClient(h, "s-2", 1)))
}

func TestAttachKeepsChangesCommittedDuringSnapshot(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h, "s-1", 4)

	err := h.Attach(c, func() ([]byte, error) {
		// a change lands between registration and the snapshot read
		h.Deliver("s-1", []byte(`{"seq":3}`))
		return []byte(`{"seq":3,"type":"session_snapshot"}`), nil
	})
	require.NoError(t, err)

	require.Len(t, c.Send, 2)
	assert.JSONEq(t, `{"seq":3}`, string(<-c.Send))
	assert.JSONEq(t, `{"seq":3,"type":"session_snapshot"}`, string(<-c.Send))
}

func TestAttachSnapshotErrorUnregisters(t *testing.T) {
	h := startHub(t)
	c := newTestClient(h, "s-1", 4)
	boom := errors.New("boom")

	err := h.Attach(c, func() ([]byte, error) { return nil, boom })

	assert.ErrorIs(t, err, boom)
	require.Eventually(t, func() bool { return h.Watchers("s-1") == 0 }, time.Second, time.Millisecond)
}
