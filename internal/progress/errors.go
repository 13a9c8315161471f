package progress

import (
	"errors"
	"fmt"

	"docflow/internal/history"
)

// ErrInvalidTransition classifies illegal stage-order requests. These are
// user-correctable, returned synchronously, and never retried automatically.
var ErrInvalidTransition = errors.New("invalid stage transition")

// TransitionError carries the rejected transition's context.
type TransitionError struct {
	FileID  string
	Current history.Stage
	Target  history.Stage
	Reason  string
}

func (e *TransitionError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("file %s cannot enter %s: %s", e.FileID, e.Target, e.Reason)
	}
	return fmt.Sprintf("file %s cannot move %s -> %s: %s", e.FileID, e.Current, e.Target, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
