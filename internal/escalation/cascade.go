package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"docflow/internal/history"
	"docflow/internal/logging"
	"docflow/internal/notify"
	"docflow/internal/sla"
)

// Dispatch records one notification attempt for summary accounting.
type Dispatch struct {
	Recipient string          `json:"recipient"`
	Role      notify.Role     `json:"role"`
	Channel   string          `json:"channel"`
	Priority  notify.Priority `json:"priority"`
	Sent      bool            `json:"sent"`
	Error     string          `json:"error,omitempty"`
}

// Summary reports the outcome of one escalation run.
type Summary struct {
	BreachesProcessed int        `json:"breaches_processed"`
	NotificationsSent int        `json:"notifications_sent"`
	Dispatches        []Dispatch `json:"dispatches"`
}

// Cascade resolves a breaching worker's management chain and dispatches
// notifications through the configured channels, marking each entry escalated
// so a later sweep never re-notifies the same breach.
type Cascade struct {
	store     *history.Store
	directory Directory
	external  []Channel
	inApp     Channel
	logger    *slog.Logger
}

// NewCascade constructs the escalation cascade. external carries the
// fire-and-forget channels (webhook, email); inApp durably persists worker
// notices. Nil channels are tolerated and skipped.
func NewCascade(store *history.Store, directory Directory, external []Channel, inApp Channel, logger *slog.Logger) *Cascade {
	channels := make([]Channel, 0, len(external))
	for _, ch := range external {
		if ch != nil {
			channels = append(channels, ch)
		}
	}
	return &Cascade{
		store:     store,
		directory: directory,
		external:  channels,
		inApp:     inApp,
		logger:    logging.WithComponent(logger, "escalation"),
	}
}

// Escalate processes a batch of breaches. Every dispatch is isolated: one
// channel failing never blocks the sibling notifications or the batch, and
// failures only surface through the summary and logs.
func (c *Cascade) Escalate(ctx context.Context, breaches []sla.Breach) Summary {
	summary := Summary{}
	for _, breach := range breaches {
		entry, err := c.store.GetByID(ctx, breach.EntryID)
		if err != nil {
			c.logger.Error("failed to load entry for breach",
				logging.Int64("entry_id", breach.EntryID),
				logging.Error(err),
			)
			continue
		}
		if entry == nil || entry.EscalationSent {
			continue
		}

		summary.BreachesProcessed++
		c.escalateOne(ctx, breach, &summary)

		if err := c.store.MarkEscalated(ctx, breach.EntryID); err != nil {
			c.logger.Error("failed to mark entry escalated; breach may re-notify",
				logging.Int64("entry_id", breach.EntryID),
				logging.String(logging.FieldFileID, breach.FileID),
				logging.Error(err),
			)
		}
	}
	return summary
}

func (c *Cascade) escalateOne(ctx context.Context, breach sla.Breach, summary *Summary) {
	worker, err := c.directory.Lookup(ctx, breach.WorkerID)
	if err != nil {
		c.logger.Warn("worker directory lookup failed; notifying worker only",
			logging.String(logging.FieldWorker, breach.WorkerID),
			logging.Error(err),
		)
	}

	payload, _ := json.Marshal(breach)
	subject := fmt.Sprintf("SLA breach: file %s in %s", breach.FileID, breach.Stage.Display())
	body := fmt.Sprintf(
		"File %s has spent %d minutes in %s (limit %d). %d minutes over, %d penalty points. Worker: %s.",
		breach.FileID,
		breach.DurationMinutes,
		breach.Stage.Display(),
		breach.MaxMinutes,
		breach.MinutesOver,
		breach.PenaltyPoints,
		breach.WorkerName,
	)

	if worker.ManagerID != "" {
		c.dispatchExternal(ctx, notify.Notification{
			Recipient: worker.ManagerID,
			Role:      notify.RoleManager,
			Subject:   subject,
			Body:      body,
			Payload:   payload,
			Priority:  notify.PriorityHigh,
		}, summary)
	}
	if worker.SecondaryManagerID != "" && worker.SecondaryManagerID != worker.ManagerID {
		c.dispatchExternal(ctx, notify.Notification{
			Recipient: worker.SecondaryManagerID,
			Role:      notify.RoleReportingManager,
			Subject:   subject,
			Body:      body,
			Payload:   payload,
			Priority:  notify.PriorityUrgent,
		}, summary)
	}
	if c.inApp != nil && breach.WorkerID != "" {
		c.dispatch(ctx, c.inApp, notify.Notification{
			Recipient: breach.WorkerID,
			Role:      notify.RoleWorker,
			Subject:   subject,
			Body:      body,
			Payload:   payload,
			Priority:  notify.PriorityHigh,
			CreatedAt: time.Now().UTC(),
		}, summary)
	}
}

// dispatchExternal sends one notification through the first external channel
// that accepts it, falling back to in-app when no external channel is
// configured so the management chain is never silently skipped.
func (c *Cascade) dispatchExternal(ctx context.Context, n notify.Notification, summary *Summary) {
	if len(c.external) == 0 {
		if c.inApp != nil {
			c.dispatch(ctx, c.inApp, n, summary)
		}
		return
	}
	for i, channel := range c.external {
		before := summary.NotificationsSent
		c.dispatch(ctx, channel, n, summary)
		if summary.NotificationsSent > before || i == len(c.external)-1 {
			return
		}
	}
}

func (c *Cascade) dispatch(ctx context.Context, channel Channel, n notify.Notification, summary *Summary) {
	record := Dispatch{
		Recipient: n.Recipient,
		Role:      n.Role,
		Channel:   channel.Name(),
		Priority:  n.Priority,
	}
	if err := channel.Send(ctx, n); err != nil {
		record.Error = err.Error()
		c.logger.Warn("notification dispatch failed",
			logging.String("channel", channel.Name()),
			logging.String("recipient", n.Recipient),
			logging.Error(err),
		)
	} else {
		record.Sent = true
		summary.NotificationsSent++
	}
	summary.Dispatches = append(summary.Dispatches, record)
}
