// Package escalation turns SLA breaches into notifications for the breaching
// worker's management chain. Dispatches are isolated per notification and per
// channel; the cascade marks each stage-history entry escalated so a breach
// notifies its hierarchy at most once.
package escalation
