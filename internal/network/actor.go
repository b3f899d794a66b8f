package network

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quarry-project/quarry/internal/metrics"
	"github.com/quarry-project/quarry/internal/protocol"
)

// Envelope is one message from a connection reader to the dispatch loop.
// Exactly one of Packet or Closed is set. Phase is the reader's phase after
// decoding Packet.
type Envelope struct {
	ConnID uint64
	Phase  protocol.Phase
	Packet protocol.Inbound
	Closed bool
	Err    error
}

// Actor owns the read half of one connection. It decodes frames with its own
// state machine and forwards them, in order, to the dispatch inbox.
type Actor struct {
	id          uint64
	conn        net.Conn
	reader      *bufio.Reader
	sm          *protocol.StateMachine
	inbox       chan<- Envelope
	readTimeout time.Duration
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewActor creates a reader for conn that delivers to inbox. A zero
// readTimeout waits for data indefinitely.
func NewActor(id uint64, conn net.Conn, inbox chan<- Envelope, readTimeout time.Duration, m *metrics.Metrics) *Actor {
	return &Actor{
		id:          id,
		conn:        conn,
		reader:      bufio.NewReader(conn),
		sm:          protocol.NewStateMachine(),
		inbox:       inbox,
		readTimeout: readTimeout,
		metrics:     m,
		logger: log.With().
			Str("component", "actor").
			Uint64("conn_id", id).
			Logger(),
	}
}

// Run reads until the peer disconnects, a frame fails to decode, or ctx is
// cancelled. It always finishes by delivering a Closed envelope unless ctx
// was cancelled first.
func (a *Actor) Run(ctx context.Context) {
	for {
		if a.readTimeout > 0 {
			a.conn.SetReadDeadline(time.Now().Add(a.readTimeout))
		}

		frame, err := protocol.ReadFrame(a.reader)
		if err != nil {
			a.finish(ctx, err)
			return
		}

		decodedIn := a.sm.Phase()
		pkt, err := a.sm.Decode(frame)
		if err != nil {
			a.finish(ctx, err)
			return
		}

		a.metrics.PacketDecoded(decodedIn.String(), pkt.Name())
		a.logger.Debug().
			Str("packet", pkt.Name()).
			Str("phase", decodedIn.String()).
			Int32("id", frame.ID).
			Msg("client sent packet")

		if !a.deliver(ctx, Envelope{ConnID: a.id, Phase: a.sm.Phase(), Packet: pkt}) {
			return
		}
	}
}

func (a *Actor) finish(ctx context.Context, err error) {
	if cr, ok := a.conn.(interface{ CloseRead() error }); ok {
		cr.CloseRead()
	}

	if errors.Is(err, protocol.ErrConnectionClosed) {
		a.logger.Debug().Msg("client closed connection")
	} else if !errors.Is(err, net.ErrClosed) {
		reason := protocol.Reason(err)
		a.metrics.DecodeError(reason)
		a.logger.Warn().Err(err).Str("reason", reason).Msg("connection reader stopped")
	}

	a.deliver(ctx, Envelope{ConnID: a.id, Phase: a.sm.Phase(), Closed: true, Err: err})
}

func (a *Actor) deliver(ctx context.Context, env Envelope) bool {
	select {
	case a.inbox <- env:
		return true
	case <-ctx.Done():
		return false
	}
}
