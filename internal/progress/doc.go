// Package progress enforces the fixed stage order and performs the
// close-and-open-next state transition that moves files through the pipeline.
// A completion either fully succeeds (entry closed, successor opened) or
// fully fails; the store transaction guarantees a file is never left without
// an open stage mid-flight.
package progress
