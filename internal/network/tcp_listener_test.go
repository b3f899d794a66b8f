package network

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/protocol"
)

type recordingHub struct {
	mu       sync.Mutex
	attached []*Connection
	inbox    chan Envelope
}

func (h *recordingHub) Attach(ctx context.Context, conn *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached = append(h.attached, conn)
	return nil
}

func (h *recordingHub) Inbox() chan<- Envelope {
	return h.inbox
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.attached)
}

func TestTCPListenerAttachesBeforeReading(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Address = "127.0.0.1:0"

	hub := &recordingHub{inbox: make(chan Envelope, 8)}
	l := NewTCPListener(cfg, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Listen(ctx))

	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx) }()

	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)

	_, err = client.Write(handshake(protocol.NextStateStatus))
	require.NoError(t, err)

	select {
	case env := <-hub.inbox:
		assert.Equal(t, uint64(1), env.ConnID)
		assert.Equal(t, protocol.PhaseStatus, env.Phase)
		assert.Equal(t, 1, hub.count(), "connection must be attached before its first envelope")
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope received")
	}

	client.Close()
	select {
	case env := <-hub.inbox:
		assert.True(t, env.Closed)
	case <-time.After(2 * time.Second):
		t.Fatal("no close envelope")
	}

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestTCPListenerServeRequiresListen(t *testing.T) {
	l := NewTCPListener(config.DefaultConfig(), &recordingHub{}, nil)
	assert.Error(t, l.Serve(context.Background()))
	assert.Nil(t, l.Addr())
	assert.NoError(t, l.Stop())
}
