package protocol

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StateMachine classifies raw frames according to the connection's phase.
// It is owned by a single connection reader and is not safe for concurrent use.
type StateMachine struct {
	phase  Phase
	logger zerolog.Logger
}

// NewStateMachine creates a state machine in the handshake phase.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		phase:  PhaseHandshake,
		logger: log.With().Str("component", "state_machine").Logger(),
	}
}

// Phase returns the current phase.
func (s *StateMachine) Phase() Phase {
	return s.phase
}

// Decode turns f into a typed packet for the current phase. A successful
// handshake moves the machine to the status or login phase; any other
// next-state value leaves it in the handshake phase. Frames with no decoder
// come back as Unknown rather than an error.
func (s *StateMachine) Decode(f RawFrame) (Inbound, error) {
	d := NewDecoder(f.Payload)

	switch s.phase {
	case PhaseHandshake:
		if f.ID == PktHandshake {
			return s.decodeHandshake(d)
		}
	case PhaseStatus:
		switch f.ID {
		case PktStatusRequest:
			return StatusRequest{}, nil
		case PktPing:
			return decodePing(d)
		}
	case PhaseLogin:
		if f.ID == PktLoginStart {
			return decodeLoginStart(d)
		}
	}

	return Unknown{Phase: s.phase, ID: f.ID, Payload: f.Payload}, nil
}

func (s *StateMachine) decodeHandshake(d *Decoder) (Inbound, error) {
	var (
		h   Handshake
		err error
	)
	if h.ProtocolVersion, err = d.VarInt(); err != nil {
		return nil, fmt.Errorf("failed to parse handshake protocol version: %w", err)
	}
	if h.ServerAddress, err = d.String(); err != nil {
		return nil, fmt.Errorf("failed to parse handshake server address: %w", err)
	}
	if h.ServerPort, err = d.Uint16(); err != nil {
		return nil, fmt.Errorf("failed to parse handshake server port: %w", err)
	}
	if h.NextState, err = d.VarInt(); err != nil {
		return nil, fmt.Errorf("failed to parse handshake next state: %w", err)
	}

	switch h.NextState {
	case NextStateStatus:
		s.phase = PhaseStatus
	case NextStateLogin:
		s.phase = PhaseLogin
	default:
		s.logger.Debug().Int32("next_state", h.NextState).Msg("handshake requested unsupported state, staying in handshake")
	}
	return h, nil
}

func decodePing(d *Decoder) (Inbound, error) {
	v, err := d.Int64()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ping: %w", err)
	}
	return Ping{Payload: v}, nil
}

func decodeLoginStart(d *Decoder) (Inbound, error) {
	name, err := d.String()
	if err != nil {
		return nil, fmt.Errorf("failed to parse login start: %w", err)
	}
	return LoginStart{PlayerName: name}, nil
}
