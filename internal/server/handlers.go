package server

import (
	"context"
	"time"

	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/network"
	"github.com/quarry-project/quarry/internal/protocol"
)

// dispatch runs the handler for pkt. A non-nil error means a write to conn
// failed and the connection must be removed.
func (d *Dispatcher) dispatch(ctx context.Context, conn *network.Connection, pkt protocol.Inbound) error {
	switch p := pkt.(type) {
	case protocol.Handshake:
		return d.onHandshake(conn, p)
	case protocol.StatusRequest:
		return d.onStatusRequest(ctx, conn)
	case protocol.Ping:
		return d.onPing(conn, p)
	case protocol.LoginStart:
		return d.onLoginStart(ctx, conn, p)
	case protocol.Unknown:
		conn.Logger().Debug().
			Str("phase", p.Phase.String()).
			Int32("id", p.ID).
			Int("len", len(p.Payload)).
			Msg("ignoring unknown packet")
		return nil
	default:
		conn.Logger().Warn().Str("packet", pkt.Name()).Msg("no handler for packet")
		return nil
	}
}

func (d *Dispatcher) send(conn *network.Connection, p protocol.Outbound) error {
	if err := conn.Send(p); err != nil {
		return err
	}
	d.metrics.PacketSent(p.Name())
	return nil
}

func (d *Dispatcher) onHandshake(conn *network.Connection, p protocol.Handshake) error {
	conn.SetProtocolVersion(p.ProtocolVersion)
	conn.Logger().Debug().
		Int32("protocol", p.ProtocolVersion).
		Str("server_address", p.ServerAddress).
		Uint16("server_port", p.ServerPort).
		Int32("next_state", p.NextState).
		Msg("handshake")
	return nil
}

func (d *Dispatcher) statusDocument() protocol.StatusDocument {
	cfg := d.state.Config
	return protocol.NewStatusDocument(cfg.GetMOTD(), cfg.GetMaxPlayers(), d.state.Connections.Players())
}

func (d *Dispatcher) onStatusRequest(ctx context.Context, conn *network.Connection) error {
	doc := d.statusDocument()
	resp, err := protocol.NewStatusResponse(doc)
	if err != nil {
		conn.Logger().Error().Err(err).Msg("failed to build status response")
		return nil
	}
	if err := d.send(conn, resp); err != nil {
		return err
	}

	d.state.statusQueries++
	d.emit(ctx, events.EventStatusQuery, events.StatusQueryPayload{
		ConnID: conn.ID(),
		Remote: conn.RemoteAddr(),
		Online: doc.Players.Online,
	})
	return nil
}

func (d *Dispatcher) onPing(conn *network.Connection, p protocol.Ping) error {
	return d.send(conn, protocol.Pong{Payload: p.Payload})
}

// onLoginStart sends LoginSuccess followed by JoinGame. JoinGame is skipped
// when LoginSuccess could not be written.
func (d *Dispatcher) onLoginStart(ctx context.Context, conn *network.Connection, p protocol.LoginStart) error {
	if err := d.send(conn, protocol.NewLoginSuccess(p.PlayerName)); err != nil {
		return err
	}
	if err := d.send(conn, protocol.NewJoinGame(int32(d.state.Config.GetMaxPlayers()))); err != nil {
		return err
	}

	conn.SetPlayerName(p.PlayerName)
	d.state.logins++
	conn.Logger().Info().Msg("player logged in")

	d.emit(ctx, events.EventPlayerLogin, events.PlayerLoginPayload{
		ConnID:          conn.ID(),
		Remote:          conn.RemoteAddr(),
		PlayerName:      p.PlayerName,
		ProtocolVersion: conn.ProtocolVersion(),
		At:              time.Now(),
	})
	return nil
}
