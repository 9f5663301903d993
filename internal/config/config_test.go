package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "therapyroom", cfg.MongoDatabase)
	assert.Equal(t, DefaultGameConfig(), cfg.Game)
	assert.Equal(t, 1, cfg.Game.TickSeconds())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PORT":                        "9000",
		"REDIS_URI":                   "redis://cache:6379",
		"GAME_MAX_ROUNDS":             "3",
		"GAME_ROUND_DURATION_SECONDS": "15",
		"GAME_IDLE_THRESHOLD":         "2m",
		"GAME_EMPTY_ROOM_GRACE":       "5s",
	})
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.Game.MaxRounds)
	assert.Equal(t, 15, cfg.Game.RoundDurationSeconds)
	assert.Equal(t, 2*time.Minute, cfg.Game.IdleThreshold)
	assert.Equal(t, 5*time.Second, cfg.Game.EmptyRoomGrace)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr string
	}{
		{
			name:    "not a number",
			vars:    map[string]string{"GAME_MAX_ROUNDS": "three"},
			wantErr: "parse env",
		},
		{
			name:    "zero rounds",
			vars:    map[string]string{"GAME_MAX_ROUNDS": "0"},
			wantErr: "GAME_MAX_ROUNDS",
		},
		{
			name:    "grace longer than idle threshold",
			vars:    map[string]string{"GAME_IDLE_THRESHOLD": "1m", "GAME_EMPTY_ROOM_GRACE": "2m"},
			wantErr: "GAME_EMPTY_ROOM_GRACE",
		},
		{
			name:    "fractional tick",
			vars:    map[string]string{"GAME_TICK_INTERVAL": "1500ms"},
			wantErr: "GAME_TICK_INTERVAL",
		},
		{
			name:    "unknown log format",
			vars:    map[string]string{"LOG_FORMAT": "xml"},
			wantErr: "LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
