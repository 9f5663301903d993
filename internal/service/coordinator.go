package service

import (
	"context"
	"errors"
	"fmt"
	"therapyroom/internal/game"
	"therapyroom/internal/metrics"
	"therapyroom/internal/model"
	"therapyroom/internal/room"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Authorizer checks session access before a join or a game start
type Authorizer interface {
	Authorize(ctx context.Context, sessionID, userID string, role model.Role) (*model.Session, error)
	AuthorizeStart(ctx context.Context, sessionID, userID string, role model.Role) (*model.Session, error)
}

// LifecycleRecorder persists game start and completion
type LifecycleRecorder interface {
	Started(sessionID string)
	Completed(sessionID string, final model.Scores)
}

// NotificationEmitter sends user-facing notifications
type NotificationEmitter interface {
	Notify(userIDs []string, p model.NotificationPayload)
}

// Client is the coordinator handle of one connection
type Client struct {
	ConnID   string
	Identity model.Identity
}

// Coordinator owns the room registry. Every registry mutation, game
// transition and broadcast runs on the goroutine executing Run, one
// command at a time.
type Coordinator struct {
	registry    *room.Registry
	broadcaster *Broadcaster
	machine     *game.Machine
	gate        Authorizer
	recorder    LifecycleRecorder
	notifier    NotificationEmitter

	now   func() time.Time
	newID func() string

	commands chan func()
	stopped  chan struct{}
}

// NewCoordinator creates a coordinator. Run must be started before use.
func NewCoordinator(machine *game.Machine, gate Authorizer, recorder LifecycleRecorder, notifier NotificationEmitter) *Coordinator {
	registry := room.NewRegistry(machine.NewState)
	return &Coordinator{
		registry:    registry,
		broadcaster: NewBroadcaster(registry),
		machine:     machine,
		gate:        gate,
		recorder:    recorder,
		notifier:    notifier,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		commands:    make(chan func()),
		stopped:     make(chan struct{}),
	}
}

// Run executes commands until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.stopped)
	log.Info().Msg("coordinator started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("coordinator stopped")
			return
		case fn := <-c.commands:
			fn()
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (c *Coordinator) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}
	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

func (c *Coordinator) run(ctx context.Context, fn func() error) error {
	var err error
	if doErr := c.do(ctx, func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

// Connect registers a new connection with no room.
func (c *Coordinator) Connect(ctx context.Context, peer room.Peer, id model.Identity) (*Client, error) {
	cl := &Client{ConnID: c.newID(), Identity: id}
	err := c.do(ctx, func() {
		c.registry.Connect(room.ConnRecord{
			ID:     cl.ConnID,
			UserID: id.UserID,
			Role:   id.Role,
			Peer:   peer,
		})
		metrics.TotalConnections.Inc()
		c.updateGauges()
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("conn", cl.ConnID).Str("user", id.UserID).Str("role", string(id.Role)).Msg("connection registered")
	return cl, nil
}

// Disconnect forgets a connection, leaving its room if it had one.
func (c *Coordinator) Disconnect(ctx context.Context, cl *Client) error {
	return c.do(ctx, func() {
		if dep, left := c.registry.Disconnect(cl.ConnID, c.now()); left {
			c.announceDeparture(dep)
		}
		c.updateGauges()
	})
}

// Join authorizes the client for sessionID and attaches it to the room.
// The joining connection receives a state snapshot; the others are told
// about the participant only on the user's first connection.
func (c *Coordinator) Join(ctx context.Context, cl *Client, sessionID string) (model.RoomSnapshot, error) {
	session, err := c.gate.Authorize(ctx, sessionID, cl.Identity.UserID, cl.Identity.Role)
	if err != nil {
		return model.RoomSnapshot{}, err
	}

	var snap model.RoomSnapshot
	err = c.run(ctx, func() error {
		res, err := c.registry.Join(cl.ConnID, sessionID, c.now())
		if err != nil {
			return err
		}
		c.registry.SetOwners(sessionID, session.Participants())
		if res.Previous != nil {
			c.announceDeparture(*res.Previous)
		}
		if res.Created {
			log.Info().Str("room", sessionID).Msg("room created")
		}
		if res.FirstForUser {
			c.broadcaster.Broadcast(sessionID, model.EvtParticipantJoined, model.ParticipantPayload{
				SessionID: sessionID,
				UserID:    cl.Identity.UserID,
				Role:      cl.Identity.Role,
			}, cl.ConnID)
			log.Info().Str("room", sessionID).Str("user", cl.Identity.UserID).Str("role", string(cl.Identity.Role)).Msg("participant joined")
		}
		c.broadcaster.SendTo(cl.ConnID, model.EvtStateSnapshot, res.Snapshot)
		c.updateGauges()
		snap = res.Snapshot
		return nil
	})
	return snap, err
}

// Leave detaches the client from its room.
func (c *Coordinator) Leave(ctx context.Context, cl *Client) error {
	return c.run(ctx, func() error {
		dep, err := c.registry.Leave(cl.ConnID, c.now())
		if err != nil {
			return err
		}
		c.announceDeparture(dep)
		c.updateGauges()
		return nil
	})
}

func (c *Coordinator) announceDeparture(dep room.Departure) {
	if !dep.LastForUser {
		return
	}
	c.broadcaster.Broadcast(dep.RoomID, model.EvtParticipantLeft, model.ParticipantPayload{
		SessionID: dep.RoomID,
		UserID:    dep.UserID,
		Role:      dep.Role,
	}, "")
	log.Info().Str("room", dep.RoomID).Str("user", dep.UserID).Bool("room_empty", dep.RoomEmpty).Msg("participant left")
}

// Handle applies a decoded client command. A refusal is returned and also
// sent to the client's connection as an error event.
func (c *Coordinator) Handle(ctx context.Context, cl *Client, cmd model.Command) error {
	err := c.dispatch(ctx, cl, cmd)
	if err != nil && !errors.Is(err, ErrStopped) && ctx.Err() == nil {
		c.Refuse(ctx, cl, err)
	}
	return err
}

// Refuse sends err to the client's connection as an error event.
func (c *Coordinator) Refuse(ctx context.Context, cl *Client, err error) {
	payload := errorPayload(err)
	metrics.Refusals.WithLabelValues(string(payload.Code)).Inc()
	log.Debug().Err(err).Str("conn", cl.ConnID).Str("code", string(payload.Code)).Msg("event refused")
	_ = c.do(ctx, func() {
		c.broadcaster.SendTo(cl.ConnID, model.EvtError, payload)
	})
}

func (c *Coordinator) dispatch(ctx context.Context, cl *Client, cmd model.Command) error {
	switch cmd := cmd.(type) {
	case model.JoinRoom:
		_, err := c.Join(ctx, cl, cmd.SessionID)
		return err
	case model.LeaveRoom:
		return c.Leave(ctx, cl)
	case model.StartGame:
		return c.start(ctx, cl)
	case model.SubmitAnswer:
		return c.inRoom(ctx, cl, false, func(roomID string, role model.Role, st model.GameState) error {
			return c.submitAnswer(roomID, role, st, cmd.Answer)
		})
	case model.PauseGame:
		return c.inRoom(ctx, cl, true, c.pauseGame)
	case model.ResumeGame:
		return c.inRoom(ctx, cl, true, c.resumeGame)
	case model.EndGame:
		return c.inRoom(ctx, cl, true, c.endGame)
	case model.TimeUp:
		return c.inRoom(ctx, cl, false, c.timeUp)
	}
	return fmt.Errorf("%w: unsupported command %s", model.ErrMalformedEvent, cmd.Type())
}

// inRoom runs apply on the loop with the state of the client's room.
// authority restricts the command to the therapist.
func (c *Coordinator) inRoom(ctx context.Context, cl *Client, authority bool, apply func(roomID string, role model.Role, st model.GameState) error) error {
	return c.run(ctx, func() error {
		rec, ok := c.registry.Connection(cl.ConnID)
		if !ok {
			return room.ErrUnknownConnection
		}
		if rec.RoomID == "" {
			return room.ErrNotInRoom
		}
		if authority && rec.Role != model.RoleTherapist {
			return ErrNotAuthority
		}
		st, ok := c.registry.State(rec.RoomID)
		if !ok {
			return room.ErrRoomNotFound
		}
		return apply(rec.RoomID, rec.Role, st)
	})
}

// start reads the session again before the game starts, off the loop, so a
// room left idle after its session was cancelled or completed cannot be played.
func (c *Coordinator) start(ctx context.Context, cl *Client) error {
	var roomID string
	err := c.inRoom(ctx, cl, true, func(id string, _ model.Role, _ model.GameState) error {
		roomID = id
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := c.gate.AuthorizeStart(ctx, roomID, cl.Identity.UserID, cl.Identity.Role); err != nil {
		return err
	}
	return c.inRoom(ctx, cl, true, func(id string, role model.Role, st model.GameState) error {
		if id != roomID {
			return fmt.Errorf("%w: room changed before start", game.ErrInvalidState)
		}
		return c.startGame(id, role, st)
	})
}

func (c *Coordinator) startGame(roomID string, _ model.Role, st model.GameState) error {
	next, err := c.machine.Start(st)
	if err != nil {
		return err
	}
	if err := c.registry.Commit(roomID, next, c.now(), true); err != nil {
		return err
	}
	c.broadcaster.Broadcast(roomID, model.EvtRoundStarted, roundStarted(next), "")
	c.recorder.Started(roomID)
	c.notifier.Notify(c.registry.Owners(roomID), sessionStartedNotice(roomID))
	log.Info().Str("room", roomID).Int("max_rounds", next.MaxRounds).Msg("game started")
	return nil
}

func (c *Coordinator) submitAnswer(roomID string, role model.Role, st model.GameState, answer string) error {
	next, out, err := c.machine.SubmitAnswer(st, role, answer)
	if err != nil {
		return err
	}
	if err := c.registry.Commit(roomID, next, c.now(), true); err != nil {
		return err
	}
	c.broadcaster.Broadcast(roomID, model.EvtAnswerResult, model.AnswerResultPayload{
		Round:    st.Round,
		Role:     role,
		Answer:   answer,
		Correct:  out.Correct,
		Scores:   next.Scores,
		Revealed: out.Revealed,
	}, "")

	switch {
	case out.Ended:
		c.finishGame(roomID, next)
	case out.RoundComplete:
		c.broadcaster.Broadcast(roomID, model.EvtRoundStarted, roundStarted(next), "")
	default:
		c.broadcaster.Broadcast(roomID, model.EvtTurnChanged, turnChanged(next), "")
	}
	return nil
}

func (c *Coordinator) pauseGame(roomID string, _ model.Role, st model.GameState) error {
	next, err := c.machine.Pause(st)
	if err != nil {
		return err
	}
	if err := c.registry.Commit(roomID, next, c.now(), true); err != nil {
		return err
	}
	c.broadcaster.Broadcast(roomID, model.EvtGamePaused, model.GamePausePayload{
		Round:         next.Round,
		TimeRemaining: next.TimeRemaining,
	}, "")
	return nil
}

func (c *Coordinator) resumeGame(roomID string, _ model.Role, st model.GameState) error {
	next, err := c.machine.Resume(st)
	if err != nil {
		return err
	}
	if err := c.registry.Commit(roomID, next, c.now(), true); err != nil {
		return err
	}
	c.broadcaster.Broadcast(roomID, model.EvtGameResumed, model.GamePausePayload{
		Round:         next.Round,
		TimeRemaining: next.TimeRemaining,
	}, "")
	return nil
}

func (c *Coordinator) endGame(roomID string, _ model.Role, st model.GameState) error {
	next, err := c.machine.End(st, model.EndEarly)
	if err != nil {
		return err
	}
	if err := c.registry.Commit(roomID, next, c.now(), true); err != nil {
		return err
	}
	c.finishGame(roomID, next)
	return nil
}

// timeUp is the client's claim that the countdown ran out. The server
// clock decides.
func (c *Coordinator) timeUp(roomID string, _ model.Role, st model.GameState) error {
	next, err := c.machine.TimeExpire(st)
	if err != nil {
		return err
	}
	return c.expireTurn(roomID, st, next, true)
}

func (c *Coordinator) expireTurn(roomID string, prev, next model.GameState, touch bool) error {
	if err := c.registry.Commit(roomID, next, c.now(), touch); err != nil {
		return err
	}
	c.broadcaster.Broadcast(roomID, model.EvtTimeExpired, model.TimeExpiredPayload{
		Round: prev.Round,
		Role:  prev.TurnOwner,
	}, "")
	c.broadcaster.Broadcast(roomID, model.EvtTurnChanged, turnChanged(next), "")
	return nil
}

func (c *Coordinator) finishGame(roomID string, st model.GameState) {
	c.broadcaster.Broadcast(roomID, model.EvtGameEnded, model.GameEndedPayload{
		Round:  st.Round,
		Scores: st.Scores,
		Winner: st.Winner,
		Reason: st.EndReason,
	}, "")
	log.Info().Str("room", roomID).Str("winner", st.Winner).Str("reason", string(st.EndReason)).Msg("game ended")
	if st.EndReason == model.EndCancelled {
		return
	}
	c.recorder.Completed(roomID, st.Scores)
	c.notifier.Notify(c.registry.Owners(roomID), sessionCompletedNotice(roomID, st))
}

// Tick advances the countdown of every playing room by elapsed seconds.
// A turn whose countdown reaches zero expires on the server.
func (c *Coordinator) Tick(ctx context.Context, elapsed int) error {
	return c.do(ctx, func() {
		now := c.now()
		for _, roomID := range c.registry.PlayingRooms() {
			st, ok := c.registry.State(roomID)
			if !ok {
				continue
			}
			next, expired := c.machine.Tick(st, elapsed)
			if !expired {
				_ = c.registry.Commit(roomID, next, now, false)
				continue
			}
			after, err := c.machine.TimeExpire(next)
			if err != nil {
				log.Error().Err(err).Str("room", roomID).Msg("expire turn")
				_ = c.registry.Commit(roomID, next, now, false)
				continue
			}
			if err := c.expireTurn(roomID, next, after, false); err != nil {
				log.Error().Err(err).Str("room", roomID).Msg("commit expired turn")
			}
		}
	})
}

// Sweep destroys idle rooms. Connections still attached to a destroyed
// room are told to join again.
func (c *Coordinator) Sweep(ctx context.Context, idleThreshold, emptyGrace time.Duration) ([]room.Eviction, error) {
	var evicted []room.Eviction
	err := c.do(ctx, func() {
		evicted = c.registry.Sweep(c.now(), idleThreshold, emptyGrace)
		for _, ev := range evicted {
			metrics.RoomsReaped.Inc()
			log.Info().Str("room", ev.RoomID).Dur("idle", ev.Idle).Int("attached", len(ev.ConnIDs)).Msg("room reaped")
			for _, connID := range ev.ConnIDs {
				c.broadcaster.SendTo(connID, model.EvtError, model.ErrorPayload{
					Code:    model.CodeNotFound,
					Message: "room closed after inactivity, join again",
				})
			}
		}
		if len(evicted) > 0 {
			c.updateGauges()
		}
	})
	return evicted, err
}

// CloseRoom ends a running game in sessionID, for example when the session
// is cancelled. Rooms without a running game are left alone.
func (c *Coordinator) CloseRoom(ctx context.Context, sessionID string, reason model.EndReason) error {
	return c.do(ctx, func() {
		st, ok := c.registry.State(sessionID)
		if !ok || (st.Phase != model.PhasePlaying && st.Phase != model.PhasePaused) {
			return
		}
		next, err := c.machine.End(st, reason)
		if err != nil {
			return
		}
		if err := c.registry.Commit(sessionID, next, c.now(), true); err != nil {
			return
		}
		c.finishGame(sessionID, next)
	})
}

// Snapshot returns the client view of a room.
func (c *Coordinator) Snapshot(ctx context.Context, sessionID string) (model.RoomSnapshot, bool, error) {
	var (
		snap model.RoomSnapshot
		ok   bool
	)
	err := c.do(ctx, func() {
		snap, ok = c.registry.Snapshot(sessionID)
	})
	return snap, ok, err
}

// Stats returns registry counters.
func (c *Coordinator) Stats(ctx context.Context) (room.Stats, error) {
	var s room.Stats
	err := c.do(ctx, func() { s = c.registry.Stats() })
	return s, err
}

func (c *Coordinator) updateGauges() {
	s := c.registry.Stats()
	metrics.ActiveRooms.Set(float64(s.Rooms))
	metrics.ActiveConnections.Set(float64(s.Connections))
}

func roundStarted(s model.GameState) model.RoundStartedPayload {
	return model.RoundStartedPayload{
		Round:         s.Round,
		MaxRounds:     s.MaxRounds,
		TurnOwner:     s.TurnOwner,
		Challenge:     s.Challenge.Redacted(),
		TimeRemaining: s.TimeRemaining,
		Scores:        s.Scores,
	}
}

func turnChanged(s model.GameState) model.TurnChangedPayload {
	return model.TurnChangedPayload{
		Round:         s.Round,
		TurnOwner:     s.TurnOwner,
		TimeRemaining: s.TimeRemaining,
		Attempts:      s.Attempts,
	}
}
