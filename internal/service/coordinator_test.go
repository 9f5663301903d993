package service

import (
	"context"
	"fmt"
	"testing"
	"therapyroom/internal/game"
	"therapyroom/internal/model"
	"therapyroom/internal/room"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appleChallenges answers "apple" every round
type appleChallenges struct{}

func (appleChallenges) Next(sessionID string, round int) model.Challenge {
	return model.Challenge{
		ID:      fmt.Sprintf("%s-%d", sessionID, round),
		Prompt:  "Which one is a fruit?",
		Options: []string{"apple", "chair"},
		Answer:  "apple",
	}
}

type fixture struct {
	coord    *Coordinator
	sessions *fakeSessions
	recorder *fakeRecorder
	notifier *fakeNotifier
	clock    *fakeClock
	stop     func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sessions := newFakeSessions(
		&model.Session{ID: "s1", TherapistID: "t1", StudentID: "k1", Status: model.SessionScheduled},
		&model.Session{ID: "s2", TherapistID: "t1", StudentID: "k2", Status: model.SessionScheduled},
		&model.Session{ID: "s-cancelled", TherapistID: "t1", StudentID: "k1", Status: model.SessionCancelled},
	)
	machine := game.NewMachine(game.Rules{
		MaxRounds:      2,
		RoundDuration:  30,
		ScoreIncrement: 10,
		MaxAttempts:    2,
		FirstTurn:      model.RoleTherapist,
	}, appleChallenges{})

	f := &fixture{
		sessions: sessions,
		recorder: newFakeRecorder(),
		notifier: &fakeNotifier{},
		clock:    &fakeClock{now: t0},
	}
	f.coord = NewCoordinator(machine, NewAccessGate(sessions), f.recorder, f.notifier)
	f.coord.now = f.clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.coord.Run(ctx)
		close(done)
	}()
	f.stop = func() {
		cancel()
		<-done
	}
	t.Cleanup(f.stop)
	return f
}

func (f *fixture) connect(t *testing.T, userID string, role model.Role) (*Client, *recordingPeer) {
	t.Helper()
	peer := &recordingPeer{}
	cl, err := f.coord.Connect(context.Background(), peer, model.Identity{UserID: userID, Role: role})
	require.NoError(t, err)
	return cl, peer
}

func (f *fixture) join(t *testing.T, userID string, role model.Role, sessionID string) (*Client, *recordingPeer) {
	t.Helper()
	cl, peer := f.connect(t, userID, role)
	require.NoError(t, f.coord.Handle(context.Background(), cl, model.JoinRoom{SessionID: sessionID}))
	return cl, peer
}

func (f *fixture) handle(t *testing.T, cl *Client, cmd model.Command) error {
	t.Helper()
	return f.coord.Handle(context.Background(), cl, cmd)
}

func (f *fixture) state(t *testing.T, sessionID string) model.GameState {
	t.Helper()
	snap, ok, err := f.coord.Snapshot(context.Background(), sessionID)
	require.NoError(t, err)
	require.True(t, ok)
	return snap.State
}

// started returns a therapist and a student in s1 with the game running
// and both peers cleared.
func (f *fixture) started(t *testing.T) (*Client, *recordingPeer, *Client, *recordingPeer) {
	t.Helper()
	th, tp := f.join(t, "t1", model.RoleTherapist, "s1")
	st, sp := f.join(t, "k1", model.RoleStudent, "s1")
	require.NoError(t, f.handle(t, th, model.StartGame{}))
	tp.reset()
	sp.reset()
	return th, tp, st, sp
}

func lastError(t *testing.T, p *recordingPeer) model.ErrorPayload {
	t.Helper()
	env := p.last(t)
	require.Equal(t, model.EvtError, env.Type)
	return decodePayload[model.ErrorPayload](t, env)
}

func TestCoordinator_JoinSendsSnapshot(t *testing.T) {
	f := newFixture(t)

	_, tp := f.join(t, "t1", model.RoleTherapist, "s1")
	assert.Equal(t, []model.EventType{model.EvtStateSnapshot}, tp.types())

	_, sp := f.join(t, "k1", model.RoleStudent, "s1")
	assert.Equal(t, []model.EventType{model.EvtStateSnapshot}, sp.types())
	assert.Equal(t, []model.EventType{model.EvtStateSnapshot, model.EvtParticipantJoined}, tp.types())

	snap := decodePayload[model.RoomSnapshot](t, sp.last(t))
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, model.PhaseIdle, snap.State.Phase)
	assert.Equal(t, []model.Participant{
		{UserID: "t1", Role: model.RoleTherapist, Connections: 1},
		{UserID: "k1", Role: model.RoleStudent, Connections: 1},
	}, snap.Participants)

	joined := decodePayload[model.ParticipantPayload](t, tp.last(t))
	assert.Equal(t, model.ParticipantPayload{SessionID: "s1", UserID: "k1", Role: model.RoleStudent}, joined)
}

func TestCoordinator_RejoinDoesNotAnnounceTwice(t *testing.T) {
	f := newFixture(t)
	_, sp := f.join(t, "k1", model.RoleStudent, "s1")
	th, tp := f.join(t, "t1", model.RoleTherapist, "s1")

	require.NoError(t, f.handle(t, th, model.JoinRoom{SessionID: "s1"}))

	assert.Len(t, sp.find(model.EvtParticipantJoined), 1)
	assert.Len(t, tp.find(model.EvtStateSnapshot), 2)

	snap, _, err := f.coord.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 2)
}

func TestCoordinator_MultipleTabs(t *testing.T) {
	f := newFixture(t)
	_, sp := f.join(t, "k1", model.RoleStudent, "s1")
	tab1, _ := f.join(t, "t1", model.RoleTherapist, "s1")
	tab2, tp2 := f.join(t, "t1", model.RoleTherapist, "s1")

	assert.Len(t, sp.find(model.EvtParticipantJoined), 1, "second tab is not a new participant")
	snap := decodePayload[model.RoomSnapshot](t, tp2.last(t))
	assert.Equal(t, model.Participant{UserID: "t1", Role: model.RoleTherapist, Connections: 2}, snap.Participants[0])

	require.NoError(t, f.handle(t, tab1, model.LeaveRoom{}))
	assert.Empty(t, sp.find(model.EvtParticipantLeft), "therapist still has a tab open")

	require.NoError(t, f.coord.Disconnect(context.Background(), tab2))
	left := sp.find(model.EvtParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "t1", decodePayload[model.ParticipantPayload](t, left[0]).UserID)
}

func TestCoordinator_JoinAnotherRoomLeavesPrevious(t *testing.T) {
	f := newFixture(t)
	_, sp := f.join(t, "k1", model.RoleStudent, "s1")
	th, _ := f.join(t, "t1", model.RoleTherapist, "s1")

	require.NoError(t, f.handle(t, th, model.JoinRoom{SessionID: "s2"}))

	assert.Len(t, sp.find(model.EvtParticipantLeft), 1)
	snap, _, err := f.coord.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []model.Participant{{UserID: "k1", Role: model.RoleStudent, Connections: 1}}, snap.Participants)
}

func TestCoordinator_JoinDenied(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		role      model.Role
		sessionID string
		wantErr   error
		wantCode  model.ErrorCode
	}{
		{"stranger", "intruder", model.RoleTherapist, "s1", ErrForbidden, model.CodeForbidden},
		{"wrong role", "k1", model.RoleTherapist, "s1", ErrForbidden, model.CodeForbidden},
		{"other student", "k2", model.RoleStudent, "s1", ErrForbidden, model.CodeForbidden},
		{"missing session", "t1", model.RoleTherapist, "nope", ErrSessionNotFound, model.CodeNotFound},
		{"cancelled session", "t1", model.RoleTherapist, "s-cancelled", ErrSessionClosed, model.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			cl, peer := f.connect(t, tt.userID, tt.role)

			err := f.handle(t, cl, model.JoinRoom{SessionID: tt.sessionID})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCode, lastError(t, peer).Code)

			stats, err := f.coord.Stats(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, stats.Rooms)
		})
	}
}

func TestCoordinator_CommandOutsideRoom(t *testing.T) {
	f := newFixture(t)
	cl, peer := f.connect(t, "t1", model.RoleTherapist)

	err := f.handle(t, cl, model.StartGame{})
	assert.ErrorIs(t, err, room.ErrNotInRoom)
	assert.Equal(t, model.CodeNotFound, lastError(t, peer).Code)
}

func TestCoordinator_GameScenario(t *testing.T) {
	f := newFixture(t)
	th, tp := f.join(t, "t1", model.RoleTherapist, "s1")
	st, sp := f.join(t, "k1", model.RoleStudent, "s1")
	tp.reset()
	sp.reset()

	// only the therapist opens the game
	err := f.handle(t, st, model.StartGame{})
	assert.ErrorIs(t, err, ErrNotAuthority)
	assert.Equal(t, model.CodeForbidden, lastError(t, sp).Code)
	assert.Empty(t, tp.types())

	require.NoError(t, f.handle(t, th, model.StartGame{}))
	for _, p := range []*recordingPeer{tp, sp} {
		rs := decodePayload[model.RoundStartedPayload](t, p.last(t))
		assert.Equal(t, 1, rs.Round)
		assert.Equal(t, model.RoleTherapist, rs.TurnOwner)
		assert.Equal(t, 30, rs.TimeRemaining)
		require.NotNil(t, rs.Challenge)
		assert.Empty(t, rs.Challenge.Answer, "answer is hidden while the round is open")
	}
	assert.Equal(t, []string{"s1"}, f.recorder.started)
	assert.Equal(t, []string{"Session started"}, f.notifier.titles())
	assert.Equal(t, []string{"t1", "k1"}, f.notifier.calls[0].userIDs)
	tp.reset()
	sp.reset()

	// out-of-turn answers are refused and only the sender hears about it
	err = f.handle(t, st, model.SubmitAnswer{Answer: "apple"})
	assert.ErrorIs(t, err, game.ErrNotYourTurn)
	assert.Equal(t, model.CodeNotYourTurn, lastError(t, sp).Code)
	assert.Empty(t, tp.types())
	sp.reset()

	require.NoError(t, f.handle(t, th, model.SubmitAnswer{Answer: "Apple"}))
	assert.Equal(t, []model.EventType{model.EvtAnswerResult, model.EvtRoundStarted}, sp.types())
	result := decodePayload[model.AnswerResultPayload](t, sp.find(model.EvtAnswerResult)[0])
	assert.True(t, result.Correct)
	assert.Equal(t, "apple", result.Revealed)
	assert.Equal(t, model.Scores{Therapist: 10}, result.Scores)
	round2 := decodePayload[model.RoundStartedPayload](t, sp.last(t))
	assert.Equal(t, 2, round2.Round)
	assert.Equal(t, model.RoleStudent, round2.TurnOwner)
	tp.reset()
	sp.reset()

	// a wrong answer passes the turn inside the round
	require.NoError(t, f.handle(t, st, model.SubmitAnswer{Answer: "chair"}))
	assert.Equal(t, []model.EventType{model.EvtAnswerResult, model.EvtTurnChanged}, tp.types())
	turn := decodePayload[model.TurnChangedPayload](t, tp.last(t))
	assert.Equal(t, model.TurnChangedPayload{Round: 2, TurnOwner: model.RoleTherapist, TimeRemaining: 30, Attempts: 1}, turn)
	tp.reset()
	sp.reset()

	require.NoError(t, f.handle(t, th, model.SubmitAnswer{Answer: "apple"}))
	assert.Equal(t, []model.EventType{model.EvtAnswerResult, model.EvtGameEnded}, sp.types())
	ended := decodePayload[model.GameEndedPayload](t, sp.last(t))
	assert.Equal(t, model.Scores{Therapist: 20}, ended.Scores)
	assert.Equal(t, string(model.RoleTherapist), ended.Winner)
	assert.Equal(t, model.EndCompleted, ended.Reason)
	assert.Equal(t, model.Scores{Therapist: 20}, f.recorder.completed["s1"])
	assert.Equal(t, []string{"Session started", "Session completed"}, f.notifier.titles())

	err = f.handle(t, th, model.StartGame{})
	assert.ErrorIs(t, err, game.ErrAlreadyEnded)
	assert.Equal(t, model.CodeAlreadyEnded, lastError(t, tp).Code)
}

func TestCoordinator_TickExpiresTurn(t *testing.T) {
	f := newFixture(t)
	_, tp, _, sp := f.started(t)
	ctx := context.Background()

	require.NoError(t, f.coord.Tick(ctx, 10))
	assert.Empty(t, tp.types())
	assert.Equal(t, 20, f.state(t, "s1").TimeRemaining)

	require.NoError(t, f.coord.Tick(ctx, 20))
	for _, p := range []*recordingPeer{tp, sp} {
		assert.Equal(t, []model.EventType{model.EvtTimeExpired, model.EvtTurnChanged}, p.types())
	}
	expired := decodePayload[model.TimeExpiredPayload](t, sp.find(model.EvtTimeExpired)[0])
	assert.Equal(t, model.TimeExpiredPayload{Round: 1, Role: model.RoleTherapist}, expired)

	s := f.state(t, "s1")
	assert.Equal(t, 1, s.Round, "a timeout does not advance the round")
	assert.Equal(t, model.RoleStudent, s.TurnOwner)
	assert.Equal(t, 30, s.TimeRemaining)
	assert.Equal(t, 0, s.Attempts)
}

func TestCoordinator_TimeUpNeedsServerExpiry(t *testing.T) {
	f := newFixture(t)
	th, tp, _, sp := f.started(t)

	err := f.handle(t, th, model.TimeUp{})
	assert.ErrorIs(t, err, game.ErrInvalidState)
	assert.Equal(t, model.CodeInvalidTransition, lastError(t, tp).Code)
	assert.Empty(t, sp.types())
	assert.Equal(t, model.RoleTherapist, f.state(t, "s1").TurnOwner)
}

func TestCoordinator_PauseFreezesCountdown(t *testing.T) {
	f := newFixture(t)
	th, _, st, sp := f.started(t)
	ctx := context.Background()

	require.NoError(t, f.handle(t, th, model.PauseGame{}))
	assert.Equal(t, []model.EventType{model.EvtGamePaused}, sp.types())

	require.NoError(t, f.coord.Tick(ctx, 10))
	assert.Equal(t, 30, f.state(t, "s1").TimeRemaining)

	err := f.handle(t, th, model.SubmitAnswer{Answer: "apple"})
	assert.ErrorIs(t, err, game.ErrInvalidState)

	err = f.handle(t, st, model.ResumeGame{})
	assert.ErrorIs(t, err, ErrNotAuthority)

	require.NoError(t, f.handle(t, th, model.ResumeGame{}))
	assert.Equal(t, model.EvtGameResumed, sp.last(t).Type)
	require.NoError(t, f.coord.Tick(ctx, 10))
	assert.Equal(t, 20, f.state(t, "s1").TimeRemaining)
}

func TestCoordinator_EndEarly(t *testing.T) {
	f := newFixture(t)
	th, _, st, sp := f.started(t)

	err := f.handle(t, st, model.EndGame{})
	assert.ErrorIs(t, err, ErrNotAuthority)

	require.NoError(t, f.handle(t, th, model.EndGame{}))
	ended := decodePayload[model.GameEndedPayload](t, sp.last(t))
	assert.Equal(t, model.EndEarly, ended.Reason)
	assert.Equal(t, model.WinnerTie, ended.Winner)
	assert.Contains(t, f.recorder.completed, "s1")

	err = f.handle(t, th, model.EndGame{})
	assert.ErrorIs(t, err, game.ErrAlreadyEnded)
}

func TestCoordinator_CloseRoomOnCancel(t *testing.T) {
	f := newFixture(t)
	_, _, _, sp := f.started(t)
	ctx := context.Background()

	require.NoError(t, f.coord.CloseRoom(ctx, "s1", model.EndCancelled))
	ended := decodePayload[model.GameEndedPayload](t, sp.last(t))
	assert.Equal(t, model.EndCancelled, ended.Reason)
	assert.Empty(t, f.recorder.completed, "cancelled sessions are not completed")
	assert.Equal(t, []string{"Session started"}, f.notifier.titles())

	require.NoError(t, f.coord.CloseRoom(ctx, "unknown", model.EndCancelled))
}

func TestCoordinator_StartRefusedForClosedSession(t *testing.T) {
	tests := []struct {
		name  string
		close func(t *testing.T, f *fixture)
	}{
		{"cancelled while idle", func(t *testing.T, f *fixture) {
			ctx := context.Background()
			ok, err := f.sessions.Cancel(ctx, "s1")
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, f.coord.CloseRoom(ctx, "s1", model.EndCancelled))
		}},
		{"completed", func(t *testing.T, f *fixture) {
			f.sessions.setStatus("s1", model.SessionCompleted)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			th, tp := f.join(t, "t1", model.RoleTherapist, "s1")
			_, sp := f.join(t, "k1", model.RoleStudent, "s1")
			tt.close(t, f)
			tp.reset()
			sp.reset()

			err := f.handle(t, th, model.StartGame{})
			assert.ErrorIs(t, err, ErrSessionClosed)
			assert.Equal(t, model.CodeForbidden, lastError(t, tp).Code)
			assert.Empty(t, sp.types())
			assert.Equal(t, model.PhaseIdle, f.state(t, "s1").Phase)
			assert.Empty(t, f.recorder.started)
			assert.Empty(t, f.notifier.titles())
		})
	}
}

func TestCoordinator_CompletedSessionNotReplayedAfterSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, _, _, _ := f.started(t)
	f.sessions.setStatus("s1", model.SessionCompleted)

	f.clock.Advance(11 * time.Minute)
	_, err := f.coord.Sweep(ctx, 10*time.Minute, 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, f.handle(t, th, model.JoinRoom{SessionID: "s1"}))
	err = f.handle(t, th, model.StartGame{})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, []string{"s1"}, f.recorder.started)
	assert.Equal(t, []string{"Session started"}, f.notifier.titles())
}

func TestCoordinator_Sweep(t *testing.T) {
	tests := []struct {
		name    string
		leave   bool
		advance time.Duration
		evicted bool
	}{
		{"occupied and recent", false, time.Minute, false},
		{"occupied past idle threshold", false, 11 * time.Minute, true},
		{"empty within grace", true, 10 * time.Second, false},
		{"empty past grace", true, 31 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			th, tp := f.join(t, "t1", model.RoleTherapist, "s1")
			if tt.leave {
				require.NoError(t, f.handle(t, th, model.LeaveRoom{}))
			}
			tp.reset()
			f.clock.Advance(tt.advance)

			evicted, err := f.coord.Sweep(ctx, 10*time.Minute, 30*time.Second)
			require.NoError(t, err)

			stats, err := f.coord.Stats(ctx)
			require.NoError(t, err)
			if !tt.evicted {
				assert.Empty(t, evicted)
				assert.Equal(t, 1, stats.Rooms)
				return
			}
			require.Len(t, evicted, 1)
			assert.Equal(t, "s1", evicted[0].RoomID)
			assert.Equal(t, 0, stats.Rooms)
			if !tt.leave {
				assert.Equal(t, []string{th.ConnID}, evicted[0].ConnIDs)
				assert.Equal(t, model.CodeNotFound, lastError(t, tp).Code)
			}
		})
	}
}

func TestCoordinator_SweptRoomStartsFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th, _, _, _ := f.started(t)

	f.clock.Advance(11 * time.Minute)
	_, err := f.coord.Sweep(ctx, 10*time.Minute, 30*time.Second)
	require.NoError(t, err)

	err = f.handle(t, th, model.SubmitAnswer{Answer: "apple"})
	assert.ErrorIs(t, err, room.ErrNotInRoom)

	require.NoError(t, f.handle(t, th, model.JoinRoom{SessionID: "s1"}))
	s := f.state(t, "s1")
	assert.Equal(t, model.PhaseIdle, s.Phase)
	assert.Equal(t, 0, s.Round)
}

func TestCoordinator_ClosedPeerDoesNotBlockRoom(t *testing.T) {
	f := newFixture(t)
	th, tp := f.join(t, "t1", model.RoleTherapist, "s1")
	_, sp := f.join(t, "k1", model.RoleStudent, "s1")
	sp.Close()
	tp.reset()

	require.NoError(t, f.handle(t, th, model.StartGame{}))
	assert.Equal(t, []model.EventType{model.EvtRoundStarted}, tp.types())
	assert.Empty(t, sp.types())
}

func TestCoordinator_Stopped(t *testing.T) {
	f := newFixture(t)
	f.stop()

	_, err := f.coord.Connect(context.Background(), &recordingPeer{}, model.Identity{UserID: "t1", Role: model.RoleTherapist})
	assert.ErrorIs(t, err, ErrStopped)
}
