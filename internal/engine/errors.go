package engine

import (
	"errors"
	"fmt"
)

// #region validation

var (
	// ErrEmptyQuery rejects a blank query before any turn is created.
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrEmptyScope rejects a missing course scope before any turn is created.
	ErrEmptyScope = errors.New("course scope must not be empty")
	// ErrSessionBusy signals that the session already has an active turn.
	ErrSessionBusy = errors.New("session has an active turn")
	// ErrSessionNotFound signals an unknown session identifier.
	ErrSessionNotFound = errors.New("session not found")
)

// #endregion validation

// #region aborted

// AbortedError marks a turn whose required stage exhausted all retries.
type AbortedError struct {
	Stage string
	Err   error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("stage %s aborted: %v", e.Stage, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }

// #endregion aborted
