package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Ticker is the part of the coordinator the turn clock drives
type Ticker interface {
	Tick(ctx context.Context, elapsed int) error
}

// TurnClock drives every room countdown from a single ticker
type TurnClock struct {
	target   Ticker
	interval time.Duration
}

// NewTurnClock creates a turn clock. interval must be a whole number of seconds.
func NewTurnClock(target Ticker, interval time.Duration) *TurnClock {
	if interval < time.Second {
		interval = time.Second
	}
	return &TurnClock{target: target, interval: interval}
}

// Run ticks until ctx is cancelled.
func (c *TurnClock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	elapsed := int(c.interval / time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.target.Tick(ctx, elapsed); err != nil && !isShutdown(err) {
				log.Error().Err(err).Msg("turn clock tick failed")
			}
		}
	}
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrStopped)
}
