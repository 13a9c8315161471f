package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"docflow/internal/notify"
	"docflow/internal/testsupport"
)

func TestInsertFillsDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenNotifyStore(t, cfg)

	n, err := store.Insert(context.Background(), notify.Notification{
		Recipient: "mgr-1",
		Role:      notify.RoleManager,
		Channel:   notify.ChannelInApp,
		Subject:   "SLA breach: file f-1 in Prelims",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if n.ID == "" {
		t.Fatal("expected generated id")
	}
	if n.Priority != notify.PriorityNormal {
		t.Fatalf("Priority = %s, want normal", n.Priority)
	}
	// Seven day retention by default.
	wantExpiry := n.CreatedAt.Add(7 * 24 * time.Hour)
	if !n.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("ExpiresAt = %v, want %v", n.ExpiresAt, wantExpiry)
	}
}

func TestInsertRequiresRecipient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenNotifyStore(t, cfg)

	if _, err := store.Insert(context.Background(), notify.Notification{Subject: "x"}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestListAndMarkRead(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenNotifyStore(t, cfg)
	ctx := context.Background()

	first, err := store.Insert(ctx, notify.Notification{
		Recipient: "w1",
		Role:      notify.RoleWorker,
		Channel:   notify.ChannelInApp,
		Subject:   "first",
		Priority:  notify.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := store.Insert(ctx, notify.Notification{
		Recipient: "w1",
		Role:      notify.RoleWorker,
		Channel:   notify.ChannelInApp,
		Subject:   "second",
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	all, err := store.ListForRecipient(ctx, "w1", false)
	if err != nil {
		t.Fatalf("ListForRecipient: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	if err := store.MarkRead(ctx, first.ID, "w1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	unread, err := store.ListForRecipient(ctx, "w1", true)
	if err != nil {
		t.Fatalf("ListForRecipient unread: %v", err)
	}
	if len(unread) != 1 || unread[0].Subject != "second" {
		t.Fatalf("unread = %+v, want only the second notification", unread)
	}
}

func TestMarkReadWrongRecipient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenNotifyStore(t, cfg)
	ctx := context.Background()

	n, err := store.Insert(ctx, notify.Notification{
		Recipient: "w1",
		Role:      notify.RoleWorker,
		Channel:   notify.ChannelInApp,
		Subject:   "private",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := store.MarkRead(ctx, n.ID, "w2"); !errors.Is(err, notify.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := store.MarkRead(ctx, "missing", "w1"); !errors.Is(err, notify.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenNotifyStore(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	if _, err := store.Insert(ctx, notify.Notification{
		Recipient: "w1",
		Role:      notify.RoleWorker,
		Channel:   notify.ChannelInApp,
		Subject:   "stale",
		CreatedAt: now.Add(-8 * 24 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}); err != nil {
		t.Fatalf("Insert stale: %v", err)
	}
	if _, err := store.Insert(ctx, notify.Notification{
		Recipient: "w1",
		Role:      notify.RoleWorker,
		Channel:   notify.ChannelInApp,
		Subject:   "fresh",
	}); err != nil {
		t.Fatalf("Insert fresh: %v", err)
	}

	purged, err := store.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	remaining, err := store.ListForRecipient(ctx, "w1", false)
	if err != nil {
		t.Fatalf("ListForRecipient: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Subject != "fresh" {
		t.Fatalf("remaining = %+v, want only the fresh notification", remaining)
	}
}
