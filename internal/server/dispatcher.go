package server

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/metrics"
	"github.com/quarry-project/quarry/internal/network"
	"github.com/quarry-project/quarry/internal/protocol"
	"github.com/quarry-project/quarry/internal/util"
)

// ErrStopped is returned by Attach and Query once the loop has exited.
var ErrStopped = errors.New("dispatcher stopped")

type query struct {
	fn   func(*ServerState)
	done chan struct{}
}

// Dispatcher is the single authoritative loop. It receives new connections
// from the listener, envelopes from every connection reader, and read-only
// queries from the API and console, and serializes all of them.
type Dispatcher struct {
	state    *ServerState
	eventBus *events.EventBus
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	attachCh chan *network.Connection
	inbox    chan network.Envelope
	queries  chan query
	done     chan struct{}
}

// NewDispatcher creates a dispatcher. eventBus and m may be nil.
func NewDispatcher(cfg *config.Config, eventBus *events.EventBus, m *metrics.Metrics) *Dispatcher {
	size := cfg.InboxSize
	if size < 1 {
		size = config.DefaultInboxSize
	}
	return &Dispatcher{
		state:    NewServerState(cfg),
		eventBus: eventBus,
		metrics:  m,
		logger:   util.ComponentLogger("dispatcher"),
		attachCh: make(chan *network.Connection),
		inbox:    make(chan network.Envelope, size),
		queries:  make(chan query),
		done:     make(chan struct{}),
	}
}

// Attach hands conn to the loop and returns once the loop has registered it.
func (d *Dispatcher) Attach(ctx context.Context, conn *network.Connection) error {
	select {
	case d.attachCh <- conn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrStopped
	}
}

// Inbox is the channel connection readers deliver envelopes to.
func (d *Dispatcher) Inbox() chan<- network.Envelope {
	return d.inbox
}

// Query runs fn on the loop goroutine and waits for it to finish.
func (d *Dispatcher) Query(ctx context.Context, fn func(*ServerState)) error {
	q := query{fn: fn, done: make(chan struct{})}
	select {
	case d.queries <- q:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrStopped
	}
	<-q.done
	return nil
}

// Snapshot returns the state of every connection in accept order.
func (d *Dispatcher) Snapshot(ctx context.Context) ([]network.ConnectionInfo, error) {
	var out []network.ConnectionInfo
	err := d.Query(ctx, func(s *ServerState) {
		out = s.Connections.Snapshot()
	})
	return out, err
}

// Stats returns a summary of the server state.
func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := d.Query(ctx, func(s *ServerState) {
		out = s.Stats()
	})
	return out, err
}

// Status returns the same status document a StatusRequest would receive.
func (d *Dispatcher) Status(ctx context.Context) (protocol.StatusDocument, error) {
	var out protocol.StatusDocument
	err := d.Query(ctx, func(s *ServerState) {
		out = d.statusDocument()
	})
	return out, err
}

// Disconnect closes connection id from the loop and reports whether it existed.
func (d *Dispatcher) Disconnect(ctx context.Context, id uint64, reason string) (bool, error) {
	var found bool
	err := d.Query(ctx, func(s *ServerState) {
		conn, ok := s.Connections.Get(id)
		if !ok {
			return
		}
		found = true
		// subscribers run after the caller's request may have ended
		d.remove(context.WithoutCancel(ctx), conn, reason)
	})
	return found, err
}

// Run blocks until ctx is cancelled. On return every connection is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)
	d.logger.Info().Int("inbox_size", cap(d.inbox)).Msg("dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.shutdown(ctx)
			return nil

		case conn := <-d.attachCh:
			d.register(ctx, conn)

		case env := <-d.inbox:
			d.handleEnvelope(ctx, env)

		case q := <-d.queries:
			q.fn(d.state)
			close(q.done)
		}
	}
}

func (d *Dispatcher) register(ctx context.Context, conn *network.Connection) {
	d.state.Connections.Register(conn)
	d.metrics.SetActive(d.state.Connections.Count())

	d.emit(ctx, events.EventClientConnected, events.ConnectionPayload{
		ConnID:      conn.ID(),
		Remote:      conn.RemoteAddr(),
		Phase:       conn.Phase().String(),
		ConnectedAt: conn.ConnectedAt(),
	})
}

func (d *Dispatcher) handleEnvelope(ctx context.Context, env network.Envelope) {
	conn, ok := d.state.Connections.Get(env.ConnID)
	if !ok {
		// Already removed after a write failure; the reader catches up later.
		d.logger.Debug().Uint64("conn_id", env.ConnID).Bool("closed", env.Closed).Msg("envelope for unknown connection dropped")
		return
	}

	if env.Closed {
		reason := "disconnected"
		if env.Err != nil && !errors.Is(env.Err, protocol.ErrConnectionClosed) {
			reason = protocol.Reason(env.Err)
		}
		d.remove(ctx, conn, reason)
		return
	}

	start := time.Now()
	conn.Touch()
	conn.SetPhase(env.Phase)

	if err := d.dispatch(ctx, conn, env.Packet); err != nil {
		d.metrics.WriteFailure()
		conn.Logger().Warn().Err(err).Msg("client is dead, removing")
		d.remove(ctx, conn, "write_failed")
	}
	d.metrics.ObserveDispatch(start)
}

func (d *Dispatcher) remove(ctx context.Context, conn *network.Connection, reason string) {
	if _, ok := d.state.Connections.Unregister(conn.ID()); !ok {
		return
	}
	d.metrics.SetActive(d.state.Connections.Count())

	conn.Logger().Info().Str("reason", reason).Msg("client disconnected")
	d.emitDisconnected(ctx, conn, reason)
}

func (d *Dispatcher) emitDisconnected(ctx context.Context, conn *network.Connection, reason string) {
	now := time.Now()
	d.emit(ctx, events.EventClientDisconnected, events.ConnectionPayload{
		ConnID:         conn.ID(),
		Remote:         conn.RemoteAddr(),
		Phase:          conn.Phase().String(),
		Reason:         reason,
		Duration:       now.Sub(conn.ConnectedAt()),
		PlayerName:     conn.PlayerName(),
		ConnectedAt:    conn.ConnectedAt(),
		DisconnectedAt: now,
	})
}

// shutdown closes every connection. Subscribers still get one disconnect
// event per connection, on a context that outlives the cancelled loop.
func (d *Dispatcher) shutdown(ctx context.Context) {
	n := d.state.Connections.Count()
	ctx = context.WithoutCancel(ctx)
	for _, info := range d.state.Connections.Snapshot() {
		if conn, ok := d.state.Connections.Get(info.ID); ok {
			d.emitDisconnected(ctx, conn, "shutdown")
		}
	}
	d.state.Connections.CloseAll()
	d.metrics.SetActive(0)
	d.logger.Info().Int("closed", n).Msg("dispatcher stopped")
}

func (d *Dispatcher) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if d.eventBus == nil {
		return
	}
	d.eventBus.Emit(ctx, events.Event{Type: t, Source: "dispatcher", Payload: payload})
}
