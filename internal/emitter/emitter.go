package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"docflow/internal/config"
	"docflow/internal/history"
	"docflow/internal/logging"
	"docflow/internal/sla"
)

// Source supplies the lookback windows the emitter re-queries every tick.
// *history.Store satisfies it.
type Source interface {
	RecentAssignments(ctx context.Context, since time.Time) ([]*history.Entry, error)
	RecentWorkerStatus(ctx context.Context, since time.Time) ([]history.WorkerStatus, error)
	StaleOpenEntries(ctx context.Context, cutoff time.Time, limit int) ([]*history.Entry, error)
}

// Emitter streams recent activity to SSE clients. Delivery is at-least-once
// with no cursor; each tick re-reads a short lookback window so consumers
// dedupe on entry id. An event missed because a tick stalled past the window
// simply does not repeat.
type Emitter struct {
	source   Source
	policies sla.PolicyTable

	tick       time.Duration
	lookback   time.Duration
	staleAfter time.Duration
	staleLimit int

	now    func() time.Time
	logger *slog.Logger
}

// New builds an emitter from config timing.
func New(source Source, policies sla.PolicyTable, cfg *config.Config, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Emitter{
		source:     source,
		policies:   policies,
		tick:       time.Duration(cfg.Workflow.EmitterTickInterval) * time.Second,
		lookback:   time.Duration(cfg.Workflow.EmitterLookbackWindow) * time.Second,
		staleAfter: time.Duration(cfg.Workflow.StaleBreachWindowHours) * time.Hour,
		staleLimit: cfg.Workflow.StaleBreachResultLimit,
		now:        time.Now,
		logger:     logging.WithComponent(logger, "emitter"),
	}
}

// WithClock overrides the time source for tests.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	e.now = now
	return e
}

type assignmentUpdate struct {
	EntryID    int64         `json:"entry_id"`
	FileID     string        `json:"file_id"`
	Stage      history.Stage `json:"stage"`
	WorkerID   string        `json:"worker_id,omitempty"`
	WorkerName string        `json:"worker_name,omitempty"`
	EnteredAt  time.Time     `json:"entered_at"`
}

type statusUpdate struct {
	WorkerID  string    `json:"worker_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Serve writes the SSE stream until the context ends or a write fails.
func (e *Emitter) Serve(ctx context.Context, w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := writeSSE(w, flusher, "connected", map[string]string{"status": "ok"}); err != nil {
		return err
	}

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.emitTick(ctx, w, flusher); err != nil {
				return err
			}
		}
	}
}

// emitTick runs one window query cycle. Query failures surface to the
// client as an error event and the stream continues; only write failures
// terminate it.
func (e *Emitter) emitTick(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) error {
	now := e.now()
	since := now.Add(-e.lookback)

	assignments, err := e.source.RecentAssignments(ctx, since)
	if err != nil {
		e.logger.Error("assignment window query failed", logging.Error(err))
		return writeSSE(w, flusher, "error", map[string]string{"error": "assignment query failed"})
	}
	for _, entry := range assignments {
		payload := assignmentUpdate{
			EntryID:    entry.ID,
			FileID:     entry.FileID,
			Stage:      entry.Stage,
			WorkerID:   entry.WorkerID,
			WorkerName: entry.WorkerName,
			EnteredAt:  entry.EnteredAt,
		}
		if err := writeSSE(w, flusher, "task_assigned", payload); err != nil {
			return err
		}
	}

	statuses, err := e.source.RecentWorkerStatus(ctx, since)
	if err != nil {
		e.logger.Error("worker status window query failed", logging.Error(err))
		return writeSSE(w, flusher, "error", map[string]string{"error": "status query failed"})
	}
	for _, status := range statuses {
		payload := statusUpdate{
			WorkerID:  status.WorkerID,
			Status:    status.Status,
			UpdatedAt: status.UpdatedAt,
		}
		if err := writeSSE(w, flusher, "employee_status", payload); err != nil {
			return err
		}
	}

	stale, err := e.source.StaleOpenEntries(ctx, now.Add(-e.staleAfter), e.staleLimit)
	if err != nil {
		e.logger.Error("stale entry window query failed", logging.Error(err))
		return writeSSE(w, flusher, "error", map[string]string{"error": "stale entry query failed"})
	}
	for _, entry := range stale {
		if breach, ok := sla.BreachFor(*entry, e.policies, now); ok {
			if err := writeSSE(w, flusher, "sla_breach", breach); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	flusher.Flush()
	return nil
}
