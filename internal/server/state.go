// Package server implements the dispatch loop: the single goroutine that owns
// the connection table and runs a handler for every decoded packet.
package server

import (
	"time"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/network"
)

// ServerState is the state owned by the dispatch loop. Only the loop
// goroutine mutates it; other goroutines reach it through Dispatcher.Query.
type ServerState struct {
	Config      *config.Config
	Connections *network.ConnectionRegistry
	StartedAt   time.Time

	statusQueries uint64
	logins        uint64
}

// NewServerState creates an empty state for cfg.
func NewServerState(cfg *config.Config) *ServerState {
	return &ServerState{
		Config:      cfg,
		Connections: network.NewConnectionRegistry(),
		StartedAt:   time.Now(),
	}
}

// Stats is a summary of the server state.
type Stats struct {
	Connections   int       `json:"connections"`
	Players       int       `json:"players"`
	MaxPlayers    int       `json:"max_players"`
	StatusQueries uint64    `json:"status_queries"`
	Logins        uint64    `json:"logins"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
}

// Stats summarizes s. Call it from the loop goroutine.
func (s *ServerState) Stats() Stats {
	return Stats{
		Connections:   s.Connections.Count(),
		Players:       s.Connections.Players(),
		MaxPlayers:    s.Config.GetMaxPlayers(),
		StatusQueries: s.statusQueries,
		Logins:        s.logins,
		StartedAt:     s.StartedAt,
		Uptime:        time.Since(s.StartedAt).Truncate(time.Second).String(),
	}
}
