// Package hub fans real-time events out to connected clients over
// websockets. It keeps a registry of connections per employee, delivers
// best-effort (a failed write evicts the connection, nothing is queued or
// replayed), and handles the small inbound control vocabulary: ping and
// status_update.
package hub
