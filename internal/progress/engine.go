package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docflow/internal/history"
	"docflow/internal/logging"
	"docflow/internal/sla"
)

// Result reports the outcome of a stage completion.
type Result struct {
	FileID          string
	PreviousStage   history.Stage
	DurationMinutes int
	NextStage       history.Stage
	Delivered       bool
	Opened          *history.Entry
	Breach          *sla.Breach
}

// Engine validates stage transitions and drives the close-and-open-next state
// transition against the stage-history store.
type Engine struct {
	store    *history.Store
	policies sla.PolicyTable
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine constructs a progression engine.
func NewEngine(store *history.Store, policies sla.PolicyTable, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		policies: policies,
		logger:   logging.WithComponent(logger, "progression"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine clock. Tests use this to pin durations.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ValidateTransition reports whether a file may move to the target stage.
// Only the immediate successor of the file's current stage is legal, plus
// same-stage re-entry for rework. A file with no history may only enter the
// first stage.
func (e *Engine) ValidateTransition(ctx context.Context, fileID string, target history.Stage) error {
	if _, ok := history.ParseStage(string(target)); !ok {
		return &TransitionError{FileID: fileID, Target: target, Reason: "unknown stage"}
	}

	latest, err := e.store.LatestEntry(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load latest entry: %w", err)
	}
	if latest == nil {
		if target != history.FirstStage() {
			return &TransitionError{
				FileID: fileID,
				Target: target,
				Reason: fmt.Sprintf("new files start at %s", history.FirstStage()),
			}
		}
		return nil
	}

	current := latest.Stage
	if current.Terminal() {
		return &TransitionError{FileID: fileID, Current: current, Target: target, Reason: "file already delivered"}
	}
	if target == current {
		// Rework re-entry is always legal; it opens a fresh entry for the
		// same stage via Reassign.
		return nil
	}
	next, ok := current.Next()
	if !ok || target != next {
		return &TransitionError{
			FileID:  fileID,
			Current: current,
			Target:  target,
			Reason:  fmt.Sprintf("expected %s after %s", next, current),
		}
	}
	return nil
}

// CompleteStage closes the file's open entry, computes the elapsed stage
// duration, and opens the next stage's entry in the same transaction. The
// opened entry awaits worker assignment by the external assignment service.
// When the closed stage precedes delivery, a closed delivered marker row is
// appended instead and the result reports Delivered.
func (e *Engine) CompleteStage(ctx context.Context, fileID, workerID, workerName string) (Result, error) {
	open, err := e.store.OpenEntry(ctx, fileID)
	if err != nil {
		return Result{}, fmt.Errorf("load open entry: %w", err)
	}
	if open == nil {
		e.logger.Error("completion attempted with no active stage",
			logging.String(logging.FieldFileID, fileID),
			logging.String(logging.FieldWorker, workerID),
		)
		return Result{}, fmt.Errorf("file %s: %w", fileID, history.ErrNoActiveStage)
	}

	now := e.now()
	closedEntry := *open
	completed := now
	closedEntry.CompletedAt = &completed
	duration := sla.Minutes(closedEntry, now)

	next, hasNext := open.Stage.Next()
	var opened *history.Entry
	result := Result{
		FileID:          fileID,
		PreviousStage:   open.Stage,
		DurationMinutes: duration,
	}

	if hasNext && !next.Terminal() {
		opened, err = e.store.CloseAndOpenNext(ctx, open.ID, now, &history.Entry{
			FileID:    fileID,
			Stage:     next,
			EnteredAt: now,
		})
		result.NextStage = next
	} else if hasNext {
		// Delivery closes the file: the delivered marker enters and
		// completes in the same instant, crediting the finishing worker.
		opened, err = e.store.CloseAndOpenNext(ctx, open.ID, now, &history.Entry{
			FileID:      fileID,
			Stage:       next,
			WorkerID:    workerID,
			WorkerName:  workerName,
			EnteredAt:   now,
			CompletedAt: &completed,
			Notes:       "file delivered",
		})
		result.NextStage = next
		result.Delivered = true
	} else {
		_, err = e.store.CloseAndOpenNext(ctx, open.ID, now, nil)
		result.Delivered = true
		result.NextStage = open.Stage
	}
	if err != nil {
		if errors.Is(err, history.ErrAlreadyCompleted) {
			return Result{}, fmt.Errorf("file %s stage %s: %w", fileID, open.Stage, err)
		}
		return Result{}, fmt.Errorf("complete stage: %w", err)
	}
	result.Opened = opened

	if breach, ok := sla.BreachFor(closedEntry, e.policies, now); ok {
		result.Breach = &breach
	}

	e.logger.Info("stage completed",
		logging.String(logging.FieldFileID, fileID),
		logging.String(logging.FieldStage, string(open.Stage)),
		logging.String(logging.FieldWorker, workerID),
		logging.Int("duration_minutes", duration),
		logging.Bool("delivered", result.Delivered),
	)
	return result, nil
}

// Reassign opens a fresh entry for a stage after rework or a worker change.
// Any dangling open entry for the file is closed first with a superseded
// note, so reassignment never leaves an abandoned open entry behind.
func (e *Engine) Reassign(ctx context.Context, fileID string, stage history.Stage, workerID, workerName string) (*history.Entry, error) {
	if err := e.ValidateTransition(ctx, fileID, stage); err != nil {
		return nil, err
	}

	now := e.now()
	closed, err := e.store.CloseDangling(ctx, fileID, "superseded by reassignment", now)
	if err != nil {
		return nil, fmt.Errorf("close dangling entries: %w", err)
	}
	if closed > 0 {
		e.logger.Info("closed dangling entries before reassignment",
			logging.String(logging.FieldFileID, fileID),
			logging.Int64("closed", closed),
		)
	}

	entry, err := e.store.Append(ctx, history.Entry{
		FileID:     fileID,
		Stage:      stage,
		WorkerID:   workerID,
		WorkerName: workerName,
		EnteredAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("append reassignment entry: %w", err)
	}

	e.logger.Info("worker reassigned",
		logging.String(logging.FieldFileID, fileID),
		logging.String(logging.FieldStage, string(stage)),
		logging.String(logging.FieldWorker, workerID),
	)
	return entry, nil
}
