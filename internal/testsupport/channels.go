package testsupport

import (
	"context"
	"fmt"
	"sync"

	"docflow/internal/escalation"
	"docflow/internal/notify"
)

// RecordingChannel captures dispatched notifications for assertions. It can
// be told to fail to exercise channel isolation.
type RecordingChannel struct {
	ChannelName string
	FailWith    error

	mu   sync.Mutex
	sent []notify.Notification
}

func (c *RecordingChannel) Name() string {
	if c.ChannelName == "" {
		return "recording"
	}
	return c.ChannelName
}

func (c *RecordingChannel) Send(_ context.Context, n notify.Notification) error {
	if c.FailWith != nil {
		return c.FailWith
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

// Sent returns a copy of the captured notifications.
func (c *RecordingChannel) Sent() []notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Notification, len(c.sent))
	copy(out, c.sent)
	return out
}

// FixtureDirectory is an in-memory worker directory for tests.
type FixtureDirectory struct {
	Workers map[string]escalation.Worker
}

func (d *FixtureDirectory) Lookup(_ context.Context, workerID string) (escalation.Worker, error) {
	worker, ok := d.Workers[workerID]
	if !ok {
		return escalation.Worker{}, fmt.Errorf("worker %s not in directory", workerID)
	}
	return worker, nil
}
