// Package validator checks the consumer-addressing invariant shared by
// TaskIns and TaskRes before either is stored.
package validator

import "errors"

// ErrBadAddressing is returned when a record's anonymous flag and node id
// disagree with each other.
var ErrBadAddressing = errors.New("consumer addressing invalid: anonymous and node_id disagree")

// Consumer mirrors the addressing fields validated here. Callers fill it from
// a TaskIns's or TaskRes's ConsumerAnonymous/ConsumerNodeID fields.
type Consumer struct {
	Anonymous bool
	NodeID    int64
}

// Validate returns ErrBadAddressing unless exactly one of these holds:
// anonymous with node id zero, or non-anonymous with a nonzero node id.
func Validate(c Consumer) error {
	if c.Anonymous && c.NodeID == 0 {
		return nil
	}
	if !c.Anonymous && c.NodeID != 0 {
		return nil
	}
	return ErrBadAddressing
}
