// Package api defines the wire-level payload types shared by the daemon's
// HTTP API and the CLI client, plus converters from the domain models.
package api
