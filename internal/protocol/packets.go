// Package protocol implements the wire codec for the game protocol: VarInts
// and big-endian primitives, length-prefixed frames, the per-phase packet
// state machine, and the typed inbound and outbound packet catalogue.
package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Version advertised in the status document.
const (
	VersionName     = "1.18.2"
	ProtocolVersion = 758
)

// Inbound packet ids, relative to their phase.
const (
	PktHandshake     int32 = 0x00 // handshake phase
	PktStatusRequest int32 = 0x00 // status phase
	PktPing          int32 = 0x01 // status phase
	PktLoginStart    int32 = 0x00 // login phase
)

// Outbound packet ids.
const (
	PktStatusResponse int32 = 0x00
	PktPong           int32 = 0x01
	PktLoginSuccess   int32 = 0x02
	PktJoinGame       int32 = 0x26
)

// Handshake next-state values.
const (
	NextStateStatus = 1
	NextStateLogin  = 2
)

// Inbound is a decoded client request. The set of implementations is closed.
type Inbound interface {
	Name() string
	inbound()
}

// Handshake opens every connection and selects the next phase.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

// StatusRequest asks for the status document. It has no fields.
type StatusRequest struct{}

// Ping carries an opaque value the server echoes back.
type Ping struct {
	Payload int64
}

// LoginStart begins the login sequence.
type LoginStart struct {
	PlayerName string
}

// Unknown is any (phase, id) pair without a decoder. It is not an error.
type Unknown struct {
	Phase   Phase
	ID      int32
	Payload []byte
}

func (Handshake) Name() string     { return "handshake" }
func (StatusRequest) Name() string { return "status_request" }
func (Ping) Name() string          { return "ping" }
func (LoginStart) Name() string    { return "login_start" }
func (Unknown) Name() string       { return "unknown" }

func (Handshake) inbound()     {}
func (StatusRequest) inbound() {}
func (Ping) inbound()          {}
func (LoginStart) inbound()    {}
func (Unknown) inbound()       {}

// Outbound is a server response that knows its id and payload layout.
type Outbound interface {
	PacketID() int32
	Name() string
	Encode(b *PacketBuilder)
	outbound()
}

// StatusResponse carries the JSON status document as a string.
type StatusResponse struct {
	JSON string
}

// Pong echoes a Ping payload.
type Pong struct {
	Payload int64
}

// LoginSuccess confirms the login with the player's id and name.
type LoginSuccess struct {
	UUID     uuid.UUID
	Username string
}

// JoinGame places the player into the world.
// Fields are written in declaration order.
type JoinGame struct {
	EntityID            int32
	Hardcore            bool
	GameMode            uint8
	PreviousGameMode    int8
	DimensionNames      []string
	DimensionCodec      DimensionCodec
	Dimension           DimensionType
	DimensionName       string
	HashedSeed          int64
	MaxPlayers          int32
	ViewDistance        int32
	SimulationDistance  int32
	ReducedDebugInfo    bool
	EnableRespawnScreen bool
	IsDebug             bool
	IsFlat              bool
}

func (StatusResponse) PacketID() int32 { return PktStatusResponse }
func (Pong) PacketID() int32           { return PktPong }
func (LoginSuccess) PacketID() int32   { return PktLoginSuccess }
func (JoinGame) PacketID() int32       { return PktJoinGame }

func (StatusResponse) Name() string { return "status_response" }
func (Pong) Name() string           { return "pong" }
func (LoginSuccess) Name() string   { return "login_success" }
func (JoinGame) Name() string       { return "join_game" }

func (StatusResponse) outbound() {}
func (Pong) outbound()           {}
func (LoginSuccess) outbound()   {}
func (JoinGame) outbound()       {}

func (p StatusResponse) Encode(b *PacketBuilder) {
	b.WriteString(p.JSON)
}

func (p Pong) Encode(b *PacketBuilder) {
	b.WriteInt64(p.Payload)
}

func (p LoginSuccess) Encode(b *PacketBuilder) {
	b.WriteUUID(p.UUID).WriteString(p.Username)
}

func (p JoinGame) Encode(b *PacketBuilder) {
	b.WriteInt32(p.EntityID).
		WriteBool(p.Hardcore).
		WriteUint8(p.GameMode).
		WriteInt8(p.PreviousGameMode).
		WriteVarInt(int32(len(p.DimensionNames)))
	for _, name := range p.DimensionNames {
		b.WriteString(name)
	}
	b.WriteNBT(p.DimensionCodec).
		WriteNBT(p.Dimension).
		WriteString(p.DimensionName).
		WriteInt64(p.HashedSeed).
		WriteVarInt(p.MaxPlayers).
		WriteVarInt(p.ViewDistance).
		WriteVarInt(p.SimulationDistance).
		WriteBool(p.ReducedDebugInfo).
		WriteBool(p.EnableRespawnScreen).
		WriteBool(p.IsDebug).
		WriteBool(p.IsFlat)
}

// Marshal encodes p into a complete frame ready to be written.
func Marshal(p Outbound) ([]byte, error) {
	b := NewPacketBuilder()
	p.Encode(b)
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", p.Name(), err)
	}
	return AppendFrame(nil, p.PacketID(), b.Build()), nil
}
