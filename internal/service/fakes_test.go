package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"therapyroom/internal/model"
	"therapyroom/internal/room"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

// fakeSessions is an in-memory session store
type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[string]*model.Session
	started   []string
	completed map[string]model.Scores
	getErr    error
}

func newFakeSessions(sessions ...*model.Session) *fakeSessions {
	f := &fakeSessions{
		sessions:  make(map[string]*model.Session),
		completed: make(map[string]model.Scores),
	}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Cancel(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || (s.Status != model.SessionScheduled && s.Status != model.SessionActive) {
		return false, nil
	}
	s.Status = model.SessionCancelled
	return true, nil
}

func (f *fakeSessions) MarkSessionStarted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeSessions) MarkSessionCompleted(_ context.Context, id string, final model.Scores) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = final
	return nil
}

func (f *fakeSessions) setStatus(id string, status model.SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].Status = status
}

func (f *fakeSessions) status(id string) model.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id].Status
}

// recordingPeer keeps every event it is sent
type recordingPeer struct {
	mu     sync.Mutex
	events []model.Envelope
	closed bool
}

func (p *recordingPeer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return room.ErrPeerClosed
	}
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	p.events = append(p.events, env)
	return nil
}

func (p *recordingPeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *recordingPeer) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPeer) find(t model.EventType) []model.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Envelope
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPeer) last(t *testing.T) model.Envelope {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.events)
	return p.events[len(p.events)-1]
}

func (p *recordingPeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func decodePayload[T any](t *testing.T, env model.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

// fakeRecorder records lifecycle calls
type fakeRecorder struct {
	mu        sync.Mutex
	started   []string
	completed map[string]model.Scores
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{completed: make(map[string]model.Scores)}
}

func (r *fakeRecorder) Started(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, sessionID)
}

func (r *fakeRecorder) Completed(sessionID string, final model.Scores) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[sessionID] = final
}

type notifyCall struct {
	userIDs []string
	payload model.NotificationPayload
}

// fakeNotifier records notifications instead of sending them
type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *fakeNotifier) Notify(userIDs []string, p model.NotificationPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{userIDs: append([]string(nil), userIDs...), payload: p})
}

func (n *fakeNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, c := range n.calls {
		out = append(out, c.payload.Title)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
