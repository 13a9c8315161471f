// Package emitter pushes recent activity to clients that cannot hold a
// websocket: an SSE stream that re-queries short lookback windows every
// tick, and a background sweep that drains buffered breach events into the
// broadcast hub.
package emitter
