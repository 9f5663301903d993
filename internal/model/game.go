package model

// Phase is the lifecycle position of a game.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
)

// Winner values for a finished game. A winning role uses the role name.
const (
	WinnerTie = "tie"
)

type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndEarly     EndReason = "ended_early"
	EndCancelled EndReason = "cancelled"
)

// Scores holds one counter per participant role.
type Scores struct {
	Therapist int `json:"therapist" bson:"therapist"`
	Student   int `json:"student" bson:"student"`
}

// Of returns the score of role.
func (s Scores) Of(role Role) int {
	if role == RoleTherapist {
		return s.Therapist
	}
	return s.Student
}

// Add returns a copy of s with n added to role's score.
func (s Scores) Add(role Role, n int) Scores {
	if role == RoleTherapist {
		s.Therapist += n
	} else {
		s.Student += n
	}
	return s
}

// Winner compares final scores. Equal scores are a tie.
func (s Scores) Winner() string {
	switch {
	case s.Therapist > s.Student:
		return string(RoleTherapist)
	case s.Student > s.Therapist:
		return string(RoleStudent)
	}
	return WinnerTie
}

// Challenge is one vocabulary prompt. The core only compares Answer.
type Challenge struct {
	ID      string   `json:"id"`
	Word    string   `json:"word,omitempty"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Answer  string   `json:"answer,omitempty"`
}

// Redacted returns a copy safe to send to clients while the round is open.
func (c *Challenge) Redacted() *Challenge {
	if c == nil {
		return nil
	}
	out := *c
	out.Answer = ""
	if c.Options != nil {
		out.Options = append([]string(nil), c.Options...)
	}
	return &out
}

// GameState is the authoritative turn-based state of one room.
type GameState struct {
	SessionID     string     `json:"sessionId"`
	Phase         Phase      `json:"phase"`
	Round         int        `json:"round"`
	MaxRounds     int        `json:"maxRounds"`
	TurnOwner     Role       `json:"turnOwner,omitempty"`
	Scores        Scores     `json:"scores"`
	Challenge     *Challenge `json:"challenge,omitempty"`
	Attempts      int        `json:"attempts"`
	TimeRemaining int        `json:"timeRemaining"`
	RoundDuration int        `json:"roundDuration"`
	IsPlaying     bool       `json:"isPlaying"`
	Paused        bool       `json:"paused"`
	Winner        string     `json:"winner,omitempty"`
	EndReason     EndReason  `json:"endReason,omitempty"`
}

// Public returns the client view of the state: the open challenge has its answer removed.
func (g GameState) Public() GameState {
	g.Challenge = g.Challenge.Redacted()
	return g
}

// Participant describes one attached user in a room snapshot.
type Participant struct {
	UserID      string `json:"userId"`
	Role        Role   `json:"role"`
	Connections int    `json:"connections"`
}

// RoomSnapshot is sent to a joining connection to resynchronize it.
type RoomSnapshot struct {
	SessionID    string        `json:"sessionId"`
	State        GameState     `json:"state"`
	Participants []Participant `json:"participants"`
}
