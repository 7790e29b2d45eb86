// Package codec converts between the in-memory TaskIns/TaskRes types and
// the flattened row shape storage persists, joining and splitting ancestry
// and routing the opaque payload to the direction-appropriate column.
package codec

import (
	"strings"

	"github.com/cuemby/flower/pkg/types"
)

// Row is the flattened, storage-ready shape of a TaskIns or TaskRes. The
// record's payload goes into PayloadServer or PayloadClient, matching its
// direction; the other column is always nil.
type Row struct {
	TaskID     string `json:"task_id"`
	GroupID    string `json:"group_id"`
	WorkloadID string `json:"workload_id"`

	ProducerAnonymous bool  `json:"producer_anonymous"`
	ProducerNodeID    int64 `json:"producer_node_id"`

	ConsumerAnonymous bool  `json:"consumer_anonymous"`
	ConsumerNodeID    int64 `json:"consumer_node_id"`

	CreatedAt   string `json:"created_at"`
	DeliveredAt string `json:"delivered_at"`
	TTL         string `json:"ttl"`

	Ancestry string `json:"ancestry"`

	PayloadServer []byte `json:"payload_server,omitempty"`
	PayloadClient []byte `json:"payload_client,omitempty"`
}

func joinAncestry(a []string) string {
	return strings.Join(a, ",")
}

// splitAncestry inverts joinAncestry. An empty string splits into one empty
// element; that is normalized here to a nil slice so callers never have to
// special-case it.
func splitAncestry(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// EncodeTaskIns flattens r into its storage row, placing payload in the
// server column.
func EncodeTaskIns(r *types.TaskIns) Row {
	return Row{
		TaskID:            r.TaskID,
		GroupID:           r.GroupID,
		WorkloadID:        r.WorkloadID,
		ProducerAnonymous: r.ProducerAnonymous,
		ProducerNodeID:    r.ProducerNodeID,
		ConsumerAnonymous: r.ConsumerAnonymous,
		ConsumerNodeID:    r.ConsumerNodeID,
		CreatedAt:         r.CreatedAt,
		DeliveredAt:       r.DeliveredAt,
		TTL:               r.TTL,
		Ancestry:          joinAncestry(r.Ancestry),
		PayloadServer:     r.Payload,
	}
}

// DecodeTaskIns inverts EncodeTaskIns.
func DecodeTaskIns(row Row) *types.TaskIns {
	return &types.TaskIns{
		TaskID:            row.TaskID,
		GroupID:           row.GroupID,
		WorkloadID:        row.WorkloadID,
		ProducerAnonymous: row.ProducerAnonymous,
		ProducerNodeID:    row.ProducerNodeID,
		ConsumerAnonymous: row.ConsumerAnonymous,
		ConsumerNodeID:    row.ConsumerNodeID,
		CreatedAt:         row.CreatedAt,
		DeliveredAt:       row.DeliveredAt,
		TTL:               row.TTL,
		Ancestry:          splitAncestry(row.Ancestry),
		Payload:           row.PayloadServer,
	}
}

// EncodeTaskRes flattens r into its storage row, placing payload in the
// client column.
func EncodeTaskRes(r *types.TaskRes) Row {
	return Row{
		TaskID:            r.TaskID,
		GroupID:           r.GroupID,
		WorkloadID:        r.WorkloadID,
		ProducerAnonymous: r.ProducerAnonymous,
		ProducerNodeID:    r.ProducerNodeID,
		ConsumerAnonymous: r.ConsumerAnonymous,
		ConsumerNodeID:    r.ConsumerNodeID,
		CreatedAt:         r.CreatedAt,
		DeliveredAt:       r.DeliveredAt,
		TTL:               r.TTL,
		Ancestry:          joinAncestry(r.Ancestry),
		PayloadClient:     r.Payload,
	}
}

// DecodeTaskRes inverts EncodeTaskRes.
func DecodeTaskRes(row Row) *types.TaskRes {
	return &types.TaskRes{
		TaskID:            row.TaskID,
		GroupID:           row.GroupID,
		WorkloadID:        row.WorkloadID,
		ProducerAnonymous: row.ProducerAnonymous,
		ProducerNodeID:    row.ProducerNodeID,
		ConsumerAnonymous: row.ConsumerAnonymous,
		ConsumerNodeID:    row.ConsumerNodeID,
		CreatedAt:         row.CreatedAt,
		DeliveredAt:       row.DeliveredAt,
		TTL:               row.TTL,
		Ancestry:          splitAncestry(row.Ancestry),
		Payload:           row.PayloadClient,
	}
}
