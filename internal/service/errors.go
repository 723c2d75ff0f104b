package service

import (
	"errors"
	"fmt"
)

// Validation failures: the request never reaches grading and leaves no trace
// in the ledger.
var (
	ErrProblemNotFound    = errors.New("problem not found")
	ErrCompetitorNotFound = errors.New("competitor not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrNoTeam             = errors.New("competitor has no team")
)

// PersistenceError wraps a storage failure. The whole operation fails; the
// score update and the ledger append either both happened or neither did.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
