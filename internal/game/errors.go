package game

import (
	"errors"
	"fmt"
)

// Refusals. A refused transition never changes state.
var (
	ErrInvalidState = errors.New("transition not allowed in current state")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrAlreadyEnded = errors.New("game already ended")
	ErrEmptyAnswer  = fmt.Errorf("%w: empty answer", ErrInvalidState)
)
