// Package sla evaluates stage intervals against per-stage duration policies
// and computes breach penalties. Everything here is pure: callers supply the
// entry, the policy table, and the clock instant, and may re-evaluate the
// same entry from the on-demand report path and the periodic sweep without
// coordination.
package sla
