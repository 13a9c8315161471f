// Package logging builds the shared slog logger used across docflow. It
// supports console output for interactive shells and JSON for ingestion,
// and provides typed attribute helpers so components log consistent keys.
package logging
