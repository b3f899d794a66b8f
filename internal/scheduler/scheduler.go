// Package scheduler runs daily maintenance: pruning the login history past
// its retention window.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quarry-project/quarry/internal/config"
)

// Pruner deletes history older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg    *config.Config
	pruner Pruner
}

// NewScheduler creates a scheduler. pruner may be nil when the login history
// is disabled.
func NewScheduler(cfg *config.Config, pruner Pruner) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		pruner: pruner,
	}
}

// Start runs the scheduled tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.pruner != nil && s.cfg.Database.RetentionDays > 0 {
		go s.runRetentionLoop(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runRetentionLoop(ctx context.Context) {
	for {
		nextRun := calculateNextCleanupTime(s.cfg.Database.CleanupTime, time.Now())
		sleepDuration := time.Until(nextRun)
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("login history cleanup scheduled")

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runRetention(ctx, time.Now())
		}
	}
}

// runRetention deletes logins older than the retention window ending at now.
func (s *Scheduler) runRetention(ctx context.Context, now time.Time) (int64, error) {
	days := s.cfg.Database.RetentionDays
	cutoff := now.AddDate(0, 0, -days)

	removed, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("login history cleanup failed")
		return 0, err
	}

	log.Info().
		Int64("removed", removed).
		Int("retention_days", days).
		Time("cutoff", cutoff).
		Msg("login history cleanup completed")
	return removed, nil
}

// calculateNextCleanupTime returns the next occurrence of the HH:MM clock
// time after now. Unparseable values fall back to 04:00.
func calculateNextCleanupTime(cleanupTime string, now time.Time) time.Time {
	hour, minute := 4, 0

	parts := strings.Split(cleanupTime, ":")
	if len(parts) == 2 {
		var h, m int
		_, errH := fmt.Sscanf(parts[0], "%d", &h)
		_, errM := fmt.Sscanf(parts[1], "%d", &m)
		if errH == nil && errM == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			hour, minute = h, m
		}
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
