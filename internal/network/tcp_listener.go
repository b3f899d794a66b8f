package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/metrics"
)

// Hub is the receiving side of the listener: the dispatch loop.
type Hub interface {
	// Attach hands a new connection to the hub. It must not return until the
	// hub has taken ownership, so no envelope can outrun its connection.
	Attach(ctx context.Context, conn *Connection) error
	// Inbox is the shared channel every Actor delivers to.
	Inbox() chan<- Envelope
}

// TCPListener accepts game clients and starts one Actor per connection.
type TCPListener struct {
	cfg      *config.Config
	hub      Hub
	metrics  *metrics.Metrics
	listener net.Listener
	nextID   atomic.Uint64
	wg       sync.WaitGroup
}

// NewTCPListener creates a new TCP listener.
func NewTCPListener(cfg *config.Config, hub Hub, m *metrics.Metrics) *TCPListener {
	return &TCPListener{
		cfg:     cfg,
		hub:     hub,
		metrics: m,
	}
}

// Listen binds the configured address.
func (l *TCPListener) Listen(ctx context.Context) error {
	// SO_REUSEADDR allows immediate rebinding after a restart
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %s: %w", l.cfg.Address, err)
	}
	l.listener = ln
	log.Info().Str("addr", ln.Addr().String()).Msg("game listener started")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *TCPListener) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Start binds the listener and serves until ctx is cancelled.
func (l *TCPListener) Start(ctx context.Context) error {
	if err := l.Listen(ctx); err != nil {
		return err
	}
	return l.Serve(ctx)
}

// Serve accepts connections on a bound listener until ctx is cancelled,
// then waits for every reader to exit.
func (l *TCPListener) Serve(ctx context.Context) error {
	if l.listener == nil {
		return errors.New("listener not bound")
	}

	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()
	defer l.wg.Wait()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("game listener stopping")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error().Err(err).Msg("failed to accept connection")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		l.metrics.ConnectionAccepted()

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection registers the connection with the hub and then runs its
// reader on this goroutine.
func (l *TCPListener) handleConnection(ctx context.Context, rawConn net.Conn) {
	id := l.nextID.Add(1)
	conn := NewConnection(id, rawConn, l.cfg.WriteTimeout())

	log.Info().
		Uint64("conn_id", id).
		Str("remote", conn.RemoteAddr()).
		Msg("new client")

	if err := l.hub.Attach(ctx, conn); err != nil {
		log.Warn().Err(err).Uint64("conn_id", id).Msg("failed to attach connection")
		conn.Close()
		return
	}

	NewActor(id, rawConn, l.hub.Inbox(), l.cfg.ReadTimeout(), l.metrics).Run(ctx)
}

// Stop closes the listening socket.
func (l *TCPListener) Stop() error {
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
