// Package types defines the record shapes exchanged between drivers and
// worker nodes: instructions, results, and registered node ids.
package types

// Node is a registered worker identity. Ids are supplied by the caller, not
// minted here.
type Node struct {
	ID int64
}

// TaskIns is a work order issued by a driver for a worker to pick up.
type TaskIns struct {
	TaskID     string
	GroupID    string
	WorkloadID string

	ProducerAnonymous bool
	ProducerNodeID    int64

	ConsumerAnonymous bool
	ConsumerNodeID    int64

	CreatedAt   string
	DeliveredAt string
	TTL         string

	Ancestry []string

	Payload []byte
}

// TaskRes is the reply to a TaskIns. Ancestry carries exactly one entry: the
// task id of the instruction being answered.
type TaskRes struct {
	TaskID     string
	GroupID    string
	WorkloadID string

	ProducerAnonymous bool
	ProducerNodeID    int64

	ConsumerAnonymous bool
	ConsumerNodeID    int64

	CreatedAt   string
	DeliveredAt string
	TTL         string

	Ancestry []string

	Payload []byte
}

// Pending reports whether the record has not yet been claimed.
func (t *TaskIns) Pending() bool { return t.DeliveredAt == "" }

// Pending reports whether the record has not yet been claimed.
func (t *TaskRes) Pending() bool { return t.DeliveredAt == "" }
