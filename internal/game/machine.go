package game

import (
	"fmt"
	"strings"
	"therapyroom/internal/config"
	"therapyroom/internal/model"
)

// Rules fixes the numeric policy of a game
type Rules struct {
	MaxRounds      int
	RoundDuration  int // seconds
	ScoreIncrement int
	MaxAttempts    int
	FirstTurn      model.Role
}

// RulesFrom maps the game configuration to state machine rules.
// The therapist always opens the game.
func RulesFrom(cfg config.GameConfig) Rules {
	return Rules{
		MaxRounds:      cfg.MaxRounds,
		RoundDuration:  cfg.RoundDurationSeconds,
		ScoreIncrement: cfg.ScoreIncrement,
		MaxAttempts:    cfg.MaxAttempts,
		FirstTurn:      model.RoleTherapist,
	}
}

// ChallengeSource supplies the challenge for a round
type ChallengeSource interface {
	Next(sessionID string, round int) model.Challenge
}

// Machine applies transitions to game states. It holds no state of its own;
// every method takes a state value and returns a new one.
type Machine struct {
	rules      Rules
	challenges ChallengeSource
}

// NewMachine creates a state machine
func NewMachine(rules Rules, challenges ChallengeSource) *Machine {
	if !rules.FirstTurn.Valid() {
		rules.FirstTurn = model.RoleTherapist
	}
	return &Machine{rules: rules, challenges: challenges}
}

// Rules returns the rules the machine was built with.
func (m *Machine) Rules() Rules {
	return m.rules
}

// NewState returns the idle state of a fresh room.
func (m *Machine) NewState(sessionID string) model.GameState {
	return model.GameState{
		SessionID:     sessionID,
		Phase:         model.PhaseIdle,
		MaxRounds:     m.rules.MaxRounds,
		RoundDuration: m.rules.RoundDuration,
	}
}

// AnswerOutcome describes what a submitted answer did
type AnswerOutcome struct {
	Role          model.Role
	Correct       bool
	RoundComplete bool
	Ended         bool
	// Answer of the round that just closed, empty while the round is open
	Revealed string
}

// Start begins round one.
func (m *Machine) Start(s model.GameState) (model.GameState, error) {
	if s.Phase == model.PhaseEnded {
		return s, ErrAlreadyEnded
	}
	if s.Phase != model.PhaseIdle {
		return s, fmt.Errorf("%w: cannot start while %s", ErrInvalidState, s.Phase)
	}

	next := s
	next.Phase = model.PhasePlaying
	next.IsPlaying = true
	next.Paused = false
	next.Round = 1
	next.MaxRounds = m.rules.MaxRounds
	next.RoundDuration = m.rules.RoundDuration
	next.Scores = model.Scores{}
	next.TurnOwner = m.rules.FirstTurn
	next.Attempts = 0
	next.TimeRemaining = m.rules.RoundDuration
	next.Winner = ""
	next.EndReason = ""
	c := m.challenges.Next(s.SessionID, 1)
	next.Challenge = &c
	return next, nil
}

// SubmitAnswer scores an answer from role, which must hold the turn.
func (m *Machine) SubmitAnswer(s model.GameState, role model.Role, answer string) (model.GameState, AnswerOutcome, error) {
	if err := playing(s); err != nil {
		return s, AnswerOutcome{}, err
	}
	if role != s.TurnOwner {
		return s, AnswerOutcome{}, ErrNotYourTurn
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return s, AnswerOutcome{}, ErrEmptyAnswer
	}

	out := AnswerOutcome{Role: role}
	next := s
	if s.Challenge != nil && strings.EqualFold(answer, strings.TrimSpace(s.Challenge.Answer)) {
		out.Correct = true
		next.Scores = next.Scores.Add(role, m.rules.ScoreIncrement)
	} else {
		next.Attempts++
	}

	if !out.Correct && next.Attempts < m.rules.MaxAttempts {
		// Turn passes within the same round.
		next.TurnOwner = s.TurnOwner.Other()
		next.TimeRemaining = m.rules.RoundDuration
		return next, out, nil
	}

	out.RoundComplete = true
	if s.Challenge != nil {
		out.Revealed = s.Challenge.Answer
	}
	if next.Round >= m.rules.MaxRounds {
		out.Ended = true
		return finish(next, model.EndCompleted), out, nil
	}

	next.Round++
	next.TurnOwner = s.TurnOwner.Other()
	next.Attempts = 0
	next.TimeRemaining = m.rules.RoundDuration
	c := m.challenges.Next(s.SessionID, next.Round)
	next.Challenge = &c
	return next, out, nil
}

// Tick runs the countdown down by elapsed seconds. It reports true when this
// tick brought the countdown to zero. Only a playing game counts down.
func (m *Machine) Tick(s model.GameState, elapsed int) (model.GameState, bool) {
	if s.Phase != model.PhasePlaying || elapsed <= 0 || s.TimeRemaining == 0 {
		return s, false
	}
	next := s
	next.TimeRemaining -= elapsed
	if next.TimeRemaining < 0 {
		next.TimeRemaining = 0
	}
	return next, next.TimeRemaining == 0
}

// TimeExpire ends the current turn once the countdown is at zero. The turn
// rotates and the countdown restarts; the round does not advance.
func (m *Machine) TimeExpire(s model.GameState) (model.GameState, error) {
	if err := playing(s); err != nil {
		return s, err
	}
	if s.TimeRemaining > 0 {
		return s, fmt.Errorf("%w: %ds remaining", ErrInvalidState, s.TimeRemaining)
	}
	next := s
	next.TurnOwner = s.TurnOwner.Other()
	next.TimeRemaining = m.rules.RoundDuration
	return next, nil
}

// Pause freezes a playing game.
func (m *Machine) Pause(s model.GameState) (model.GameState, error) {
	if err := playing(s); err != nil {
		return s, err
	}
	next := s
	next.Phase = model.PhasePaused
	next.Paused = true
	return next, nil
}

// Resume continues a paused game.
func (m *Machine) Resume(s model.GameState) (model.GameState, error) {
	if s.Phase == model.PhaseEnded {
		return s, ErrAlreadyEnded
	}
	if s.Phase != model.PhasePaused {
		return s, fmt.Errorf("%w: cannot resume while %s", ErrInvalidState, s.Phase)
	}
	next := s
	next.Phase = model.PhasePlaying
	next.Paused = false
	return next, nil
}

// End terminates a started game early. Scores are kept as final.
func (m *Machine) End(s model.GameState, reason model.EndReason) (model.GameState, error) {
	if s.Phase == model.PhaseEnded {
		return s, ErrAlreadyEnded
	}
	if s.Phase != model.PhasePlaying && s.Phase != model.PhasePaused {
		return s, fmt.Errorf("%w: cannot end while %s", ErrInvalidState, s.Phase)
	}
	if reason == "" {
		reason = model.EndEarly
	}
	return finish(s, reason), nil
}

func playing(s model.GameState) error {
	if s.Phase == model.PhaseEnded {
		return ErrAlreadyEnded
	}
	if s.Phase != model.PhasePlaying {
		return fmt.Errorf("%w: game is %s", ErrInvalidState, s.Phase)
	}
	return nil
}

func finish(s model.GameState, reason model.EndReason) model.GameState {
	s.Phase = model.PhaseEnded
	s.IsPlaying = false
	s.Paused = false
	s.TimeRemaining = 0
	s.Winner = s.Scores.Winner()
	s.EndReason = reason
	return s
}
