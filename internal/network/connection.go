// Package network implements the game listener, the per-connection reader
// and the write-capable connection handle used by the dispatch loop.
package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quarry-project/quarry/internal/protocol"
)

// ErrConnectionDead is returned by writes on a connection that was closed
// or whose previous write failed.
var ErrConnectionDead = errors.New("connection is dead")

// Connection is the write half of a client socket plus the per-connection
// state mirrored by the dispatch loop. Reads happen in the Actor.
type Connection struct {
	mu           sync.Mutex
	id           uint64
	conn         net.Conn
	remote       string
	writeTimeout time.Duration
	logger       zerolog.Logger

	connectedAt  time.Time
	lastActivity time.Time

	phase           protocol.Phase
	playerName      string
	protocolVersion int32
	dead            bool
	closed          bool
}

// ConnectionInfo is a point-in-time copy of a connection's state.
type ConnectionInfo struct {
	ID              uint64    `json:"id"`
	Remote          string    `json:"remote"`
	Phase           string    `json:"phase"`
	PlayerName      string    `json:"player_name,omitempty"`
	ProtocolVersion int32     `json:"protocol_version,omitempty"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastActivity    time.Time `json:"last_activity"`
}

// NewConnection wraps conn. A zero writeTimeout disables write deadlines.
func NewConnection(id uint64, conn net.Conn, writeTimeout time.Duration) *Connection {
	now := time.Now()
	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Connection{
		id:           id,
		conn:         conn,
		remote:       remote,
		writeTimeout: writeTimeout,
		connectedAt:  now,
		lastActivity: now,
		logger: log.With().
			Str("component", "connection").
			Uint64("conn_id", id).
			Str("remote", remote).
			Logger(),
	}
}

// ID returns the connection id assigned at accept time.
func (c *Connection) ID() uint64 {
	return c.id
}

// RemoteAddr returns the peer address as a string.
func (c *Connection) RemoteAddr() string {
	return c.remote
}

// ConnectedAt returns the time the connection was accepted.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// Logger returns the connection-scoped logger.
func (c *Connection) Logger() *zerolog.Logger {
	return &c.logger
}

// Send encodes p and writes it as one frame.
func (c *Connection) Send(p protocol.Outbound) error {
	frame, err := protocol.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.WritePacket(frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", p.Name(), err)
	}
	c.logger.Trace().Str("packet", p.Name()).Hex("frame", frame).Msg("sent packet")
	return nil
}

// WritePacket writes an already framed packet with a single Write call.
// After the first failure the connection is marked dead and every later
// write returns ErrConnectionDead.
func (c *Connection) WritePacket(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead || c.closed {
		return ErrConnectionDead
	}

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.dead = true
		return fmt.Errorf("failed to write %d bytes: %w", len(frame), err)
	}

	c.lastActivity = time.Now()
	return nil
}

// Touch records inbound activity.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// SetPhase mirrors the reader's protocol phase.
func (c *Connection) SetPhase(p protocol.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = p
}

// Phase returns the mirrored protocol phase.
func (c *Connection) Phase() protocol.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SetProtocolVersion records the version announced in the handshake.
func (c *Connection) SetProtocolVersion(v int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.protocolVersion = v
}

// ProtocolVersion returns the version announced in the handshake.
func (c *Connection) ProtocolVersion() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

// SetPlayerName records the name sent in LoginStart.
func (c *Connection) SetPlayerName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerName = name
	c.logger = c.logger.With().Str("player", name).Logger()
}

// PlayerName returns the logged-in player name, or "" before login.
func (c *Connection) PlayerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerName
}

// IsDead reports whether a write failed or the connection was closed.
func (c *Connection) IsDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead || c.closed
}

// Close closes the socket. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Debug().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Info returns a snapshot of the connection state.
func (c *Connection) Info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionInfo{
		ID:              c.id,
		Remote:          c.remote,
		Phase:           c.phase.String(),
		PlayerName:      c.playerName,
		ProtocolVersion: c.protocolVersion,
		ConnectedAt:     c.connectedAt,
		LastActivity:    c.lastActivity,
	}
}

// ConnectionRegistry is the table of live connections, kept in accept order.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[uint64]*Connection
	order []uint64
}

// NewConnectionRegistry creates a new ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[uint64]*Connection),
	}
}

// Register adds a connection to the registry. Registering an id twice
// replaces and closes the previous connection.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[conn.ID()]; ok {
		existing.Close()
	} else {
		r.order = append(r.order, conn.ID())
	}

	r.conns[conn.ID()] = conn
	log.Debug().Uint64("conn_id", conn.ID()).Msg("connection registered")
}

// Unregister closes and removes a connection. It returns the removed
// connection, if any.
func (r *ConnectionRegistry) Unregister(id uint64) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return nil, false
	}

	conn.Close()
	delete(r.conns, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Debug().Uint64("conn_id", id).Msg("connection unregistered")
	return conn, true
}

// Get returns the connection for an id.
func (r *ConnectionRegistry) Get(id uint64) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Count returns the number of registered connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Players returns the number of connections that completed LoginStart.
func (r *ConnectionRegistry) Players() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.conns {
		if c.PlayerName() != "" {
			n++
		}
	}
	return n
}

// Snapshot returns the state of every connection in accept order.
func (r *ConnectionRegistry) Snapshot() []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.conns[id].Info())
	}
	return out
}

// CloseAll closes and removes every connection.
func (r *ConnectionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conn := range r.conns {
		conn.Close()
	}
	r.conns = make(map[uint64]*Connection)
	r.order = nil
}
