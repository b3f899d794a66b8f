// Package events defines the event types published by the quarry server.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle
	EventClientConnected    EventType = "client_connected"
	EventClientDisconnected EventType = "client_disconnected"
	EventStatusQuery        EventType = "status_query"
	EventPlayerLogin        EventType = "player_login"

	// System
	EventHeartbeat EventType = "heartbeat"
	EventShutdown  EventType = "shutdown"
)

// Event is a single message on the bus.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// ConnectionPayload describes a connection joining or leaving the dispatcher.
type ConnectionPayload struct {
	ConnID      uint64        `json:"conn_id"`
	Remote      string        `json:"remote"`
	Phase       string        `json:"phase"`
	Reason      string        `json:"reason,omitempty"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
	PlayerName  string        `json:"player_name,omitempty"`
	ConnectedAt time.Time     `json:"connected_at"`

	DisconnectedAt time.Time `json:"disconnected_at,omitempty"`
}

// StatusQueryPayload is published when a client requests the status document.
type StatusQueryPayload struct {
	ConnID uint64 `json:"conn_id"`
	Remote string `json:"remote"`
	Online int    `json:"online"`
}

// PlayerLoginPayload is published after the login sequence was sent.
type PlayerLoginPayload struct {
	ConnID          uint64    `json:"conn_id"`
	Remote          string    `json:"remote"`
	PlayerName      string    `json:"player_name"`
	ProtocolVersion int32     `json:"protocol_version"`
	At              time.Time `json:"at"`
}

// HeartbeatPayload carries periodic server health figures.
type HeartbeatPayload struct {
	Connections int     `json:"connections"`
	Players     int     `json:"players"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	Uptime      string  `json:"uptime"`
}

// ShutdownPayload is published once when the server begins shutting down.
type ShutdownPayload struct {
	Reason string `json:"reason"`
}
