package emitter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docflow/internal/analytics"
	"docflow/internal/config"
	"docflow/internal/hub"
	"docflow/internal/logging"
	"docflow/internal/sla"
)

// Sweeper drains buffered breach events into the broadcast hub. One loop
// instance finishes a full drain before sleeping, so events are pushed in
// order and at most one drain runs at a time.
type Sweeper struct {
	sink *analytics.Sink
	hub  *hub.Hub

	interval time.Duration
	backoff  time.Duration
	batch    int

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}

	logger *slog.Logger
}

// NewSweeper builds a sweeper from config timing.
func NewSweeper(sink *analytics.Sink, h *hub.Hub, cfg *config.Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{
		sink:     sink,
		hub:      h,
		interval: time.Duration(cfg.Workflow.AnalyticsSweepInterval) * time.Second,
		backoff:  time.Duration(cfg.Workflow.AnalyticsErrorBackoff) * time.Second,
		batch:    cfg.Workflow.AnalyticsSweepBatchSize,
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logging.WithComponent(logger, "sweeper"),
	}
}

// Run loops until the context is cancelled or Stop is called. After a drain
// error the next sleep stretches to the backoff interval, then recovers.
func (s *Sweeper) Run(ctx context.Context) {
	defer close(s.done)

	delay := s.interval
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-time.After(delay):
		}

		if err := s.drain(ctx); err != nil {
			s.logger.Error("breach event drain failed", logging.Error(err))
			delay = s.backoff
		} else {
			delay = s.interval
		}
	}
}

// Stop cancels the pending sleep and ends the loop. Safe to call more than
// once and before Run.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Wait blocks until the loop has exited.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) drain(ctx context.Context) error {
	events, err := s.sink.PendingBreachEvents(ctx, s.batch)
	if err != nil {
		return err
	}
	for _, event := range events {
		s.hub.Broadcast(hub.NewEvent(hub.EventSLABreached, breachPayload(event)))
		if err := s.sink.MarkEmitted(ctx, event.ID); err != nil {
			return err
		}
	}
	if len(events) > 0 {
		s.logger.Info("breach events emitted", logging.Int("count", len(events)))
	}
	return nil
}

func breachPayload(event analytics.BreachEvent) hub.SLABreached {
	return hub.SLABreached{
		Breach: sla.Breach{
			FileID:          event.FileID,
			Stage:           event.Stage,
			WorkerID:        event.WorkerID,
			WorkerName:      event.WorkerName,
			DurationMinutes: event.DurationMinutes,
			MaxMinutes:      event.DurationMinutes - event.MinutesOver,
			MinutesOver:     event.MinutesOver,
			PenaltyPoints:   event.PenaltyPoints,
			Open:            true,
		},
		RecordedAt: event.RecordedAt,
	}
}
