package service

import (
	"errors"
	"therapyroom/internal/metrics"
	"therapyroom/internal/model"
	"therapyroom/internal/room"

	"github.com/rs/zerolog/log"
)

// Broadcaster fans events out to the connections of a room. It is only used
// from the coordinator loop, so events for a room go out in commit order.
type Broadcaster struct {
	registry *room.Registry
}

// NewBroadcaster creates a broadcaster over registry
func NewBroadcaster(registry *room.Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast sends an event to every live connection in roomID except
// exclude. It returns the number of connections that accepted it.
func (b *Broadcaster) Broadcast(roomID string, t model.EventType, payload interface{}, exclude string) int {
	data, err := model.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Str("event", string(t)).Msg("encode broadcast")
		return 0
	}
	sent := 0
	for _, connID := range b.registry.BroadcastTargets(roomID) {
		if connID == exclude {
			continue
		}
		if b.deliver(connID, t, data) {
			sent++
		}
	}
	return sent
}

// SendTo sends an event to a single connection.
func (b *Broadcaster) SendTo(connID string, t model.EventType, payload interface{}) bool {
	data, err := model.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("conn", connID).Str("event", string(t)).Msg("encode event")
		return false
	}
	return b.deliver(connID, t, data)
}

func (b *Broadcaster) deliver(connID string, t model.EventType, data []byte) bool {
	peer, ok := b.registry.Peer(connID)
	if !ok {
		return false
	}
	err := peer.Send(data)
	switch {
	case err == nil:
		metrics.EventsBroadcast.WithLabelValues(string(t)).Inc()
		return true
	case errors.Is(err, room.ErrPeerClosed):
		b.registry.MarkDead(connID)
	case errors.Is(err, room.ErrPeerBacklogged):
		metrics.EventsDropped.Inc()
		log.Warn().Str("conn", connID).Str("event", string(t)).Msg("send buffer full, dropping event")
	default:
		log.Error().Err(err).Str("conn", connID).Msg("send failed")
	}
	return false
}
