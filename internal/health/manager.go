// Package health runs periodic checks: a heartbeat carrying server and host
// figures, and a host resource watchdog.
package health

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/server"
	"github.com/quarry-project/quarry/internal/util"
)

// Resource thresholds, in percent.
const (
	MemoryWarnPercent = 90
	DiskWarnPercent   = 90
)

// StatsSource reports the dispatcher's counters.
type StatsSource interface {
	Stats(ctx context.Context) (server.Stats, error)
}

// Manager runs the health checks until its context ends.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	stats    StatsSource

	probe util.Probe
}

// NewManager creates a health manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus, stats StatsSource) *Manager {
	return &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		stats:    stats,
		probe:    util.HostProbe(),
	}
}

// Start launches each check on its own ticker and blocks until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	timers := m.cfg.Timers

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"heartbeat", timers.HeartbeatInterval, m.heartbeat},
		{"system_resources", timers.SystemCheckInterval, m.checkSystemResources},
	}

	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++

		check := check
		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			log.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	log.Info().Int("checks", started).Msg("health check manager started")

	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

// heartbeat publishes the current counts and host load.
func (m *Manager) heartbeat(ctx context.Context) {
	stats, err := m.stats.Stats(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("heartbeat skipped")
		return
	}

	payload := events.HeartbeatPayload{
		Connections: stats.Connections,
		Players:     stats.Players,
		Uptime:      stats.Uptime,
	}
	if cpu, err := m.probe.CPU(); err == nil {
		payload.CPUPercent = cpu
	}
	if mem, err := m.probe.Memory(); err == nil {
		payload.MemPercent = mem.UsedPercent
	}

	log.Debug().
		Int("connections", payload.Connections).
		Int("players", payload.Players).
		Float64("cpu_percent", payload.CPUPercent).
		Float64("mem_percent", payload.MemPercent).
		Msg("heartbeat")

	m.eventBus.Emit(ctx, events.Event{
		Type:    events.EventHeartbeat,
		Source:  "health_check",
		Payload: payload,
	})
}

// checkSystemResources warns when memory or disk use crosses a threshold.
func (m *Manager) checkSystemResources(ctx context.Context) {
	m.resourcesOverThreshold()
}

// resourcesOverThreshold reports whether any threshold was crossed.
func (m *Manager) resourcesOverThreshold() bool {
	sample := m.probe.Sample(m.dataDir())
	over := false

	switch {
	case sample.Memory == nil:
		log.Warn().Msg("memory check failed")
	case sample.Memory.UsedPercent >= MemoryWarnPercent:
		over = true
		log.Warn().
			Float64("used_percent", sample.Memory.UsedPercent).
			Uint64("available_mb", sample.Memory.AvailableMB).
			Msg("memory usage high")
	}

	switch {
	case sample.Disk == nil:
		log.Warn().Msg("disk check failed")
	case sample.Disk.UsedPercent >= DiskWarnPercent:
		over = true
		log.Warn().
			Str("path", sample.Disk.Path).
			Float64("used_percent", sample.Disk.UsedPercent).
			Uint64("free_gb", sample.Disk.FreeGB).
			Msg("disk usage high")
	}

	return over
}

// dataDir is the directory holding the login database, or the working
// directory when the database is off.
func (m *Manager) dataDir() string {
	if m.cfg.Database.Enabled && m.cfg.Database.Path != "" {
		return filepath.Dir(m.cfg.Database.Path)
	}
	return "."
}
