// Package notify defines the notification model, its SQLite-backed store for
// durable in-app delivery, and the in-app dispatch channel. Notifications
// soft-expire after a retention window; the daemon's retention sweep purges
// expired rows.
package notify
