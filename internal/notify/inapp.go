package notify

import "context"

// InAppChannel durably persists notifications for in-app delivery. It
// satisfies the escalation cascade's channel contract.
type InAppChannel struct {
	store *Store
}

// NewInAppChannel wraps a notification store as a dispatch channel.
func NewInAppChannel(store *Store) *InAppChannel {
	return &InAppChannel{store: store}
}

func (c *InAppChannel) Name() string { return string(ChannelInApp) }

func (c *InAppChannel) Send(ctx context.Context, n Notification) error {
	n.Channel = ChannelInApp
	_, err := c.store.Insert(ctx, n)
	return err
}
