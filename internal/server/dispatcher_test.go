package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/metrics"
	"github.com/quarry-project/quarry/internal/network"
	"github.com/quarry-project/quarry/internal/protocol"
)

type harness struct {
	d      *Dispatcher
	bus    *events.EventBus
	ctx    context.Context
	cancel context.CancelFunc
	runErr chan error
	nextID uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.MOTD = "test server"

	bus := events.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		d:      NewDispatcher(cfg, bus, metrics.New(prometheus.NewRegistry())),
		bus:    bus,
		ctx:    ctx,
		cancel: cancel,
		runErr: make(chan error, 1),
	}
	go func() { h.runErr <- h.d.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-h.runErr
		bus.Stop()
	})
	return h
}

func (h *harness) connect(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	server, client := net.Pipe()
	h.nextID++
	id := h.nextID

	conn := network.NewConnection(id, server, time.Second)
	require.NoError(t, h.d.Attach(h.ctx, conn))
	go network.NewActor(id, server, h.d.Inbox(), 0, nil).Run(h.ctx)

	t.Cleanup(func() { client.Close() })
	client.SetDeadline(time.Now().Add(5 * time.Second))
	return client, bufio.NewReader(client)
}

func (h *harness) subscribe(t events.EventType) chan events.Event {
	ch := make(chan events.Event, 8)
	h.bus.Subscribe(t, "test", func(ctx context.Context, e events.Event) error {
		ch <- e
		return nil
	})
	return ch
}

func handshakeFrame(next int32) []byte {
	payload := protocol.NewPacketBuilder().
		WriteVarInt(protocol.ProtocolVersion).
		WriteString("localhost").
		WriteUint16(25565).
		WriteVarInt(next).
		Build()
	return protocol.AppendFrame(nil, protocol.PktHandshake, payload)
}

func frames(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func waitEvent(t *testing.T, ch chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestStatusAndPing(t *testing.T) {
	h := newHarness(t)
	client, r := h.connect(t)

	ping := protocol.AppendFrame(nil, protocol.PktPing,
		[]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	_, err := client.Write(frames(
		handshakeFrame(protocol.NextStateStatus),
		protocol.AppendFrame(nil, protocol.PktStatusRequest, nil),
		ping,
	))
	require.NoError(t, err)

	f, err := protocol.ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, protocol.PktStatusResponse, f.ID)

	body, err := protocol.NewDecoder(f.Payload).String()
	require.NoError(t, err)

	var doc protocol.StatusDocument
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, "1.18.2", doc.Version.Name)
	assert.Equal(t, 758, doc.Version.Protocol)
	assert.Equal(t, 1, doc.Players.Max)
	assert.Equal(t, 0, doc.Players.Online)
	assert.Empty(t, doc.Players.Sample)
	assert.Equal(t, "test server", doc.Description.Text)

	f, err = protocol.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, protocol.PktPong, f.ID)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, f.Payload)
}

func TestLoginSequence(t *testing.T) {
	h := newHarness(t)
	logins := h.subscribe(events.EventPlayerLogin)
	client, r := h.connect(t)

	login := protocol.AppendFrame(nil, protocol.PktLoginStart,
		protocol.NewPacketBuilder().WriteString("Steve").Build())
	_, err := client.Write(frames(handshakeFrame(protocol.NextStateLogin), login))
	require.NoError(t, err)

	f, err := protocol.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, protocol.PktLoginSuccess, f.ID)

	want := append(make([]byte, 16), 0x05, 'S', 't', 'e', 'v', 'e')
	assert.Equal(t, want, f.Payload)

	f, err = protocol.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, protocol.PktJoinGame, f.ID)

	e := waitEvent(t, logins)
	payload := e.Payload.(events.PlayerLoginPayload)
	assert.Equal(t, "Steve", payload.PlayerName)
	assert.Equal(t, int32(protocol.ProtocolVersion), payload.ProtocolVersion)

	stats, err := h.d.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Players)
	assert.Equal(t, uint64(1), stats.Logins)

	snap, err := h.d.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "Steve", snap[0].PlayerName)
	assert.Equal(t, "login", snap[0].Phase)

	doc, err := h.d.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Players.Online)
}

func TestUnknownPacketIsIgnored(t *testing.T) {
	h := newHarness(t)
	client, r := h.connect(t)

	_, err := client.Write(frames(
		protocol.AppendFrame(nil, 0x7F, []byte{0xDE, 0xAD}),
		handshakeFrame(protocol.NextStateStatus),
		protocol.AppendFrame(nil, 0x33, nil),
		protocol.AppendFrame(nil, protocol.PktStatusRequest, nil),
	))
	require.NoError(t, err)

	f, err := protocol.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, protocol.PktStatusResponse, f.ID)

	snap, err := h.d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

func TestWriteFailureRemovesConnection(t *testing.T) {
	h := newHarness(t)
	gone := h.subscribe(events.EventClientDisconnected)
	client, _ := h.connect(t)

	_, err := client.Write(frames(
		handshakeFrame(protocol.NextStateStatus),
		protocol.AppendFrame(nil, protocol.PktStatusRequest, nil),
	))
	require.NoError(t, err)
	client.Close()

	e := waitEvent(t, gone)
	assert.Equal(t, "write_failed", e.Payload.(events.ConnectionPayload).Reason)

	snap, err := h.d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestAbruptCloseOnlyAffectsThatConnection(t *testing.T) {
	h := newHarness(t)
	gone := h.subscribe(events.EventClientDisconnected)

	broken, _ := h.connect(t)
	healthy, r := h.connect(t)

	// declares a 10 byte body but sends 2
	_, err := broken.Write([]byte{0x0A, 0x00, 0x01})
	require.NoError(t, err)
	broken.Close()

	e := waitEvent(t, gone)
	payload := e.Payload.(events.ConnectionPayload)
	assert.Equal(t, uint64(1), payload.ConnID)
	assert.Equal(t, "truncated", payload.Reason)

	_, err = healthy.Write(frames(
		handshakeFrame(protocol.NextStateStatus),
		protocol.AppendFrame(nil, protocol.PktStatusRequest, nil),
	))
	require.NoError(t, err)

	f, err := protocol.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, protocol.PktStatusResponse, f.ID)
}

func TestCleanDisconnect(t *testing.T) {
	h := newHarness(t)
	connected := h.subscribe(events.EventClientConnected)
	gone := h.subscribe(events.EventClientDisconnected)

	client, _ := h.connect(t)
	waitEvent(t, connected)
	client.Close()

	e := waitEvent(t, gone)
	assert.Equal(t, "disconnected", e.Payload.(events.ConnectionPayload).Reason)
}

func TestDisconnectByID(t *testing.T) {
	h := newHarness(t)
	connected := h.subscribe(events.EventClientConnected)
	gone := h.subscribe(events.EventClientDisconnected)

	_, r := h.connect(t)
	waitEvent(t, connected)

	found, err := h.d.Disconnect(context.Background(), 1, "kicked")
	require.NoError(t, err)
	assert.True(t, found)

	e := waitEvent(t, gone)
	assert.Equal(t, "kicked", e.Payload.(events.ConnectionPayload).Reason)

	_, err = protocol.ReadFrame(r)
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)

	found, err = h.d.Disconnect(context.Background(), 1, "kicked")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestShutdownClosesConnections(t *testing.T) {
	h := newHarness(t)
	client, r := h.connect(t)

	h.cancel()
	require.NoError(t, <-h.runErr)
	h.runErr <- nil

	_, err := protocol.ReadFrame(r)
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)
	client.Close()

	server, other := net.Pipe()
	defer other.Close()
	err = h.d.Attach(context.Background(), network.NewConnection(99, server, 0))
	assert.ErrorIs(t, err, ErrStopped)

	_, err = h.d.Stats(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestShutdownEmitsDisconnectPerConnection(t *testing.T) {
	h := newHarness(t)

	type seen struct {
		payload events.ConnectionPayload
		ctxErr  error
	}
	got := make(chan seen, 4)
	h.bus.Subscribe(events.EventClientDisconnected, "test", func(ctx context.Context, e events.Event) error {
		got <- seen{payload: e.Payload.(events.ConnectionPayload), ctxErr: ctx.Err()}
		return nil
	})

	h.connect(t)
	h.connect(t)

	h.cancel()
	require.NoError(t, <-h.runErr)
	h.runErr <- nil

	ids := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			assert.Equal(t, "shutdown", s.payload.Reason)
			assert.NoError(t, s.ctxErr, "handlers must get a live context")
			assert.False(t, s.payload.DisconnectedAt.IsZero())
			ids[s.payload.ConnID] = true
		case <-time.After(2 * time.Second):
			t.Fatal("missing disconnect event")
		}
	}
	assert.Equal(t, map[uint64]bool{1: true, 2: true}, ids)
}
