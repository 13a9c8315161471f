package history

import "errors"

// ErrNoActiveStage indicates a completion attempt found no open entry for the
// file. This is a data consistency problem the caller must resolve upstream;
// it is never retried automatically.
var ErrNoActiveStage = errors.New("no active stage for file")

// ErrAlreadyCompleted indicates a concurrent completion won the race for the
// same open entry. Exactly one caller progresses; the rest observe this.
var ErrAlreadyCompleted = errors.New("stage entry already completed")
