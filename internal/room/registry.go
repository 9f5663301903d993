package room

import (
	"errors"
	"sort"
	"therapyroom/internal/model"
	"time"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotInRoom         = errors.New("connection is not in a room")
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerClosed        = errors.New("peer closed")
	ErrPeerBacklogged    = errors.New("peer send buffer full")
)

// Peer is the transport side of a connection
type Peer interface {
	// Send queues data without blocking.
	Send(data []byte) error
	Close()
}

// ConnRecord is the bookkeeping for one live connection
type ConnRecord struct {
	ID     string
	UserID string
	Role   model.Role
	RoomID string // empty when not attached to a room
	Alive  bool
	Peer   Peer
}

type member struct {
	role  model.Role
	conns map[string]struct{}
}

// Room is one session's coordination unit
type Room struct {
	ID           string
	State        model.GameState
	LastActivity time.Time
	CreatedAt    time.Time
	// Owners are the user ids entitled to the room, kept for notifications
	Owners  []string
	members map[string]*member // userID -> member
}

func (r *Room) empty() bool {
	return len(r.members) == 0
}

func (r *Room) snapshot() model.RoomSnapshot {
	participants := make([]model.Participant, 0, len(r.members))
	for userID, m := range r.members {
		participants = append(participants, model.Participant{
			UserID:      userID,
			Role:        m.role,
			Connections: len(m.conns),
		})
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Role != participants[j].Role {
			return participants[i].Role == model.RoleTherapist
		}
		return participants[i].UserID < participants[j].UserID
	})
	return model.RoomSnapshot{
		SessionID:    r.ID,
		State:        r.State.Public(),
		Participants: participants,
	}
}

// JoinResult is returned by Join
type JoinResult struct {
	Snapshot model.RoomSnapshot
	Created  bool
	// FirstForUser is true when this connection made the user a participant
	FirstForUser bool
	// Previous is set when the connection had to leave another room first
	Previous *Departure
}

// Departure describes a connection leaving a room
type Departure struct {
	RoomID string
	ConnID string
	UserID string
	Role   model.Role
	// LastForUser is true when the user has no connection left in the room
	LastForUser bool
	RoomEmpty   bool
}

// Eviction describes a room destroyed by Sweep
type Eviction struct {
	RoomID  string
	ConnIDs []string
	Idle    time.Duration
}

// Registry maps session ids to rooms and connection ids to records.
//
// Registry is not safe for concurrent use. It is owned by a single goroutine
// (the coordinator loop) and every mutation goes through its methods.
type Registry struct {
	rooms    map[string]*Room
	conns    map[string]*ConnRecord
	newState func(roomID string) model.GameState
}

// NewRegistry creates a registry. newState builds the game state of a new room.
func NewRegistry(newState func(roomID string) model.GameState) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		conns:    make(map[string]*ConnRecord),
		newState: newState,
	}
}

// Connect records a new connection. It is not attached to any room yet.
func (r *Registry) Connect(rec ConnRecord) {
	rec.RoomID = ""
	rec.Alive = true
	r.conns[rec.ID] = &rec
}

// Disconnect forgets a connection, leaving its room first if it had one.
func (r *Registry) Disconnect(connID string, now time.Time) (Departure, bool) {
	rec, ok := r.conns[connID]
	if !ok {
		return Departure{}, false
	}
	rec.Alive = false

	var dep Departure
	left := false
	if rec.RoomID != "" {
		dep, left = r.detach(rec, now), true
	}
	delete(r.conns, connID)
	return dep, left
}

// Join attaches a connection to roomID, creating the room if needed.
// Joining the room the connection is already in only refreshes activity.
func (r *Registry) Join(connID, roomID string, now time.Time) (JoinResult, error) {
	rec, ok := r.conns[connID]
	if !ok {
		return JoinResult{}, ErrUnknownConnection
	}

	var res JoinResult
	if rec.RoomID != "" && rec.RoomID != roomID {
		dep := r.detach(rec, now)
		res.Previous = &dep
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &Room{
			ID:        roomID,
			State:     r.newState(roomID),
			CreatedAt: now,
			members:   make(map[string]*member),
		}
		r.rooms[roomID] = rm
		res.Created = true
	}

	m, ok := rm.members[rec.UserID]
	if !ok {
		m = &member{role: rec.Role, conns: make(map[string]struct{})}
		rm.members[rec.UserID] = m
		res.FirstForUser = true
	}
	m.conns[connID] = struct{}{}
	rec.RoomID = roomID
	rm.LastActivity = now

	res.Snapshot = rm.snapshot()
	return res, nil
}

// Leave detaches a connection from its room. Rooms left empty are kept;
// only Sweep destroys rooms.
func (r *Registry) Leave(connID string, now time.Time) (Departure, error) {
	rec, ok := r.conns[connID]
	if !ok {
		return Departure{}, ErrUnknownConnection
	}
	if rec.RoomID == "" {
		return Departure{}, ErrNotInRoom
	}
	return r.detach(rec, now), nil
}

func (r *Registry) detach(rec *ConnRecord, now time.Time) Departure {
	dep := Departure{
		RoomID: rec.RoomID,
		ConnID: rec.ID,
		UserID: rec.UserID,
		Role:   rec.Role,
	}
	rec.RoomID = ""

	rm, ok := r.rooms[dep.RoomID]
	if !ok {
		return dep
	}
	if m, ok := rm.members[dep.UserID]; ok {
		delete(m.conns, dep.ConnID)
		if len(m.conns) == 0 {
			delete(rm.members, dep.UserID)
			dep.LastForUser = true
		}
	}
	rm.LastActivity = now
	dep.RoomEmpty = rm.empty()
	return dep
}

// Connection returns a copy of the record for connID.
func (r *Registry) Connection(connID string) (ConnRecord, bool) {
	rec, ok := r.conns[connID]
	if !ok {
		return ConnRecord{}, false
	}
	return *rec, true
}

// Peer returns the transport of a live connection.
func (r *Registry) Peer(connID string) (Peer, bool) {
	rec, ok := r.conns[connID]
	if !ok || !rec.Alive {
		return nil, false
	}
	return rec.Peer, true
}

// MarkDead stops delivery to a connection until it is disconnected.
func (r *Registry) MarkDead(connID string) {
	if rec, ok := r.conns[connID]; ok {
		rec.Alive = false
	}
}

// BroadcastTargets returns the live connections attached to roomID.
func (r *Registry) BroadcastTargets(roomID string) []string {
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	var ids []string
	for _, m := range rm.members {
		for connID := range m.conns {
			if rec, ok := r.conns[connID]; ok && rec.Alive {
				ids = append(ids, connID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// State returns the game state of roomID.
func (r *Registry) State(roomID string) (model.GameState, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return model.GameState{}, false
	}
	return rm.State, true
}

// Commit stores a new game state. touch marks the room as active.
func (r *Registry) Commit(roomID string, state model.GameState, now time.Time, touch bool) error {
	rm, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	rm.State = state
	if touch {
		rm.LastActivity = now
	}
	return nil
}

// Snapshot returns the client view of roomID.
func (r *Registry) Snapshot(roomID string) (model.RoomSnapshot, bool) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return model.RoomSnapshot{}, false
	}
	return rm.snapshot(), true
}

// SetOwners records the session participants of roomID.
func (r *Registry) SetOwners(roomID string, owners []string) {
	if rm, ok := r.rooms[roomID]; ok {
		rm.Owners = append([]string(nil), owners...)
	}
}

// Owners returns the session participants recorded for roomID.
func (r *Registry) Owners(roomID string) []string {
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]string(nil), rm.Owners...)
}

// PlayingRooms returns the ids of rooms whose game is counting down.
func (r *Registry) PlayingRooms() []string {
	var ids []string
	for id, rm := range r.rooms {
		if rm.State.Phase == model.PhasePlaying {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Sweep destroys rooms idle for longer than idleThreshold, and empty rooms
// idle for longer than emptyGrace. Connections still attached are detached.
func (r *Registry) Sweep(now time.Time, idleThreshold, emptyGrace time.Duration) []Eviction {
	var evicted []Eviction
	for id, rm := range r.rooms {
		idle := now.Sub(rm.LastActivity)
		if idle <= idleThreshold && !(rm.empty() && idle > emptyGrace) {
			continue
		}

		ev := Eviction{RoomID: id, Idle: idle}
		for _, m := range rm.members {
			for connID := range m.conns {
				if rec, ok := r.conns[connID]; ok {
					rec.RoomID = ""
				}
				ev.ConnIDs = append(ev.ConnIDs, connID)
			}
		}
		sort.Strings(ev.ConnIDs)
		delete(r.rooms, id)
		evicted = append(evicted, ev)
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].RoomID < evicted[j].RoomID })
	return evicted
}

// Stats is a point-in-time count of registry contents
type Stats struct {
	Rooms        int `json:"rooms"`
	Connections  int `json:"connections"`
	Participants int `json:"participants"`
}

// Stats counts rooms, connections and attached users.
func (r *Registry) Stats() Stats {
	s := Stats{Rooms: len(r.rooms), Connections: len(r.conns)}
	for _, rm := range r.rooms {
		s.Participants += len(rm.members)
	}
	return s
}
