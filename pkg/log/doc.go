// Package log wraps zerolog with the process-wide Logger and a handful of
// child-logger builders (WithComponent, WithNodeID, WithTaskID, WithTable)
// used across storage, queue, and reaper code to attach structured context.
package log
