package service

import (
	"context"
	"therapyroom/internal/room"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper is the part of the coordinator the reaper drives
type Sweeper interface {
	Sweep(ctx context.Context, idleThreshold, emptyGrace time.Duration) ([]room.Eviction, error)
}

// Reaper periodically destroys rooms nobody is using
type Reaper struct {
	target        Sweeper
	interval      time.Duration
	idleThreshold time.Duration
	emptyGrace    time.Duration
}

// NewReaper creates a reaper sweeping every interval
func NewReaper(target Sweeper, interval, idleThreshold, emptyGrace time.Duration) *Reaper {
	return &Reaper{
		target:        target,
		interval:      interval,
		idleThreshold: idleThreshold,
		emptyGrace:    emptyGrace,
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of rooms destroyed.
func (r *Reaper) SweepOnce(ctx context.Context) int {
	evicted, err := r.target.Sweep(ctx, r.idleThreshold, r.emptyGrace)
	if err != nil {
		if !isShutdown(err) {
			log.Error().Err(err).Msg("room sweep failed")
		}
		return 0
	}
	if len(evicted) > 0 {
		log.Debug().Int("rooms", len(evicted)).Msg("sweep complete")
	}
	return len(evicted)
}
