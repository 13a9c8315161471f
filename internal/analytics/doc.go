// Package analytics buffers SLA breach events between the periodic sweep
// that detects them and the emission loop that pushes them to connected
// real-time clients. Buffering through SQLite keeps breach emission durable
// across daemon restarts.
package analytics
