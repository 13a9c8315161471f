// Package daemon wires the stage-progression engine, SLA sweeps, the
// escalation cascade, and the real-time surfaces behind one HTTP server,
// and enforces single-instance execution with a file lock.
package daemon
