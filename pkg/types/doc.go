// Package types defines flower's three persisted record shapes: Node,
// TaskIns, and TaskRes. See pkg/storage for how they are persisted and
// pkg/codec for how they map onto storage rows.
package types
