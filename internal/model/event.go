package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventType names a message on the real-time channel
type EventType string

// Client -> server
const (
	EvtJoinRoom     EventType = "join-room"
	EvtLeaveRoom    EventType = "leave-room"
	EvtStartGame    EventType = "start-game"
	EvtSubmitAnswer EventType = "submit-answer"
	EvtPauseGame    EventType = "pause-game"
	EvtResumeGame   EventType = "resume-game"
	EvtEndGame      EventType = "end-game"
	EvtTimeUp       EventType = "time-up"
)

// Server -> client
const (
	EvtParticipantJoined EventType = "participant-joined"
	EvtParticipantLeft   EventType = "participant-left"
	EvtStateSnapshot     EventType = "state-snapshot"
	EvtRoundStarted      EventType = "round-started"
	EvtAnswerResult      EventType = "answer-result"
	EvtTurnChanged       EventType = "turn-changed"
	EvtTimeExpired       EventType = "time-expired"
	EvtGamePaused        EventType = "game-paused"
	EvtGameResumed       EventType = "game-resumed"
	EvtGameEnded         EventType = "game-ended"
	EvtError             EventType = "error"
)

// Envelope is the wire format for every event
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps payload in an envelope and marshals it.
func Encode(t EventType, payload interface{}) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = data
	}
	return json.Marshal(env)
}

// ErrMalformedEvent is returned for input rejected at the boundary.
var ErrMalformedEvent = errors.New("malformed event")

// Command is a decoded, validated client event. The set is closed.
type Command interface {
	Type() EventType
}

type JoinRoom struct {
	SessionID string `json:"sessionId"`
}

type LeaveRoom struct{}

type StartGame struct{}

type SubmitAnswer struct {
	Answer string `json:"answer"`
}

type PauseGame struct{}

type ResumeGame struct{}

type EndGame struct{}

// TimeUp is a client claim that the countdown finished. The server checks its own clock.
type TimeUp struct{}

func (JoinRoom) Type() EventType     { return EvtJoinRoom }
func (LeaveRoom) Type() EventType    { return EvtLeaveRoom }
func (StartGame) Type() EventType    { return EvtStartGame }
func (SubmitAnswer) Type() EventType { return EvtSubmitAnswer }
func (PauseGame) Type() EventType    { return EvtPauseGame }
func (ResumeGame) Type() EventType   { return EvtResumeGame }
func (EndGame) Type() EventType      { return EvtEndGame }
func (TimeUp) Type() EventType       { return EvtTimeUp }

const maxAnswerLength = 256

// DecodeCommand parses a raw client frame into one of the command types.
func DecodeCommand(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Type {
	case EvtJoinRoom:
		var cmd JoinRoom
		if err := decodePayload(env.Payload, &cmd); err != nil {
			return nil, err
		}
		cmd.SessionID = strings.TrimSpace(cmd.SessionID)
		if cmd.SessionID == "" {
			return nil, fmt.Errorf("%w: sessionId is required", ErrMalformedEvent)
		}
		return cmd, nil
	case EvtSubmitAnswer:
		var cmd SubmitAnswer
		if err := decodePayload(env.Payload, &cmd); err != nil {
			return nil, err
		}
		cmd.Answer = strings.TrimSpace(cmd.Answer)
		if cmd.Answer == "" {
			return nil, fmt.Errorf("%w: answer is required", ErrMalformedEvent)
		}
		if len(cmd.Answer) > maxAnswerLength {
			return nil, fmt.Errorf("%w: answer too long", ErrMalformedEvent)
		}
		return cmd, nil
	case EvtLeaveRoom:
		return LeaveRoom{}, nil
	case EvtStartGame:
		return StartGame{}, nil
	case EvtPauseGame:
		return PauseGame{}, nil
	case EvtResumeGame:
		return ResumeGame{}, nil
	case EvtEndGame:
		return EndGame{}, nil
	case EvtTimeUp:
		return TimeUp{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, env.Type)
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// ErrorCode classifies a refusal sent to the originating connection.
type ErrorCode string

const (
	CodeUnauthenticated   ErrorCode = "unauthenticated"
	CodeForbidden         ErrorCode = "forbidden"
	CodeNotYourTurn       ErrorCode = "not_your_turn"
	CodeInvalidTransition ErrorCode = "invalid_transition"
	CodeAlreadyEnded      ErrorCode = "already_ended"
	CodeNotFound          ErrorCode = "not_found"
	CodeMalformedEvent    ErrorCode = "malformed_event"
	CodeInternal          ErrorCode = "internal"
)

// Outbound payloads

type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ParticipantPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Role      Role   `json:"role"`
}

type RoundStartedPayload struct {
	Round         int        `json:"round"`
	MaxRounds     int        `json:"maxRounds"`
	TurnOwner     Role       `json:"turnOwner"`
	Challenge     *Challenge `json:"challenge"`
	TimeRemaining int        `json:"timeRemaining"`
	Scores        Scores     `json:"scores"`
}

type AnswerResultPayload struct {
	Round   int    `json:"round"`
	Role    Role   `json:"role"`
	Answer  string `json:"answer"`
	Correct bool   `json:"correct"`
	Scores  Scores `json:"scores"`
	// Revealed is set once the round is over.
	Revealed string `json:"revealed,omitempty"`
}

type TurnChangedPayload struct {
	Round         int  `json:"round"`
	TurnOwner     Role `json:"turnOwner"`
	TimeRemaining int  `json:"timeRemaining"`
	Attempts      int  `json:"attempts"`
}

type TimeExpiredPayload struct {
	Round int  `json:"round"`
	Role  Role `json:"role"`
}

type GamePausePayload struct {
	Round         int `json:"round"`
	TimeRemaining int `json:"timeRemaining"`
}

type GameEndedPayload struct {
	Round  int       `json:"round"`
	Scores Scores    `json:"scores"`
	Winner string    `json:"winner"`
	Reason EndReason `json:"reason"`
}
