package config

import (
	"fmt"
	"time"
)

// GameConfig holds the tunables of the turn-based session game
type GameConfig struct {
	// RoundDurationSeconds is the countdown every turn starts from
	RoundDurationSeconds int `env:"ROUND_DURATION_SECONDS" envDefault:"30"`

	MaxRounds      int `env:"MAX_ROUNDS" envDefault:"10"`
	ScoreIncrement int `env:"SCORE_INCREMENT" envDefault:"10"`

	// MaxAttempts is how many wrong answers close a round without a score
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"2"`

	// IdleThreshold evicts any room without activity for this long
	IdleThreshold time.Duration `env:"IDLE_THRESHOLD" envDefault:"10m"`

	// EmptyRoomGrace keeps a room with no participants around for reconnects
	EmptyRoomGrace time.Duration `env:"EMPTY_ROOM_GRACE" envDefault:"30s"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	TickInterval  time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
}

// DefaultGameConfig returns the values used when nothing is configured
func DefaultGameConfig() GameConfig {
	return GameConfig{
		RoundDurationSeconds: 30,
		MaxRounds:            10,
		ScoreIncrement:       10,
		MaxAttempts:          2,
		IdleThreshold:        10 * time.Minute,
		EmptyRoomGrace:       30 * time.Second,
		SweepInterval:        30 * time.Second,
		TickInterval:         time.Second,
	}
}

// Validate rejects configurations the state machine cannot honor.
func (g GameConfig) Validate() error {
	if g.RoundDurationSeconds < 1 {
		return fmt.Errorf("GAME_ROUND_DURATION_SECONDS must be at least 1, got %d", g.RoundDurationSeconds)
	}
	if g.MaxRounds < 1 {
		return fmt.Errorf("GAME_MAX_ROUNDS must be at least 1, got %d", g.MaxRounds)
	}
	if g.ScoreIncrement < 1 {
		return fmt.Errorf("GAME_SCORE_INCREMENT must be at least 1, got %d", g.ScoreIncrement)
	}
	if g.MaxAttempts < 1 {
		return fmt.Errorf("GAME_MAX_ATTEMPTS must be at least 1, got %d", g.MaxAttempts)
	}
	if g.IdleThreshold <= 0 || g.SweepInterval <= 0 {
		return fmt.Errorf("GAME_IDLE_THRESHOLD and GAME_SWEEP_INTERVAL must be positive")
	}
	if g.EmptyRoomGrace < 0 || g.EmptyRoomGrace > g.IdleThreshold {
		return fmt.Errorf("GAME_EMPTY_ROOM_GRACE must be between 0 and GAME_IDLE_THRESHOLD")
	}
	if g.TickInterval < time.Second || g.TickInterval%time.Second != 0 {
		return fmt.Errorf("GAME_TICK_INTERVAL must be a whole number of seconds, got %s", g.TickInterval)
	}
	return nil
}

// TickSeconds is the countdown decrement applied per clock tick.
func (g GameConfig) TickSeconds() int {
	return int(g.TickInterval / time.Second)
}
