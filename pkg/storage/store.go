package storage

import "github.com/cuemby/flower/pkg/codec"

// Store is the storage backend contract: one bucket per entity, with
// select-and-mark operations implemented as a single bbolt transaction so
// exactly-once delivery holds under concurrent callers.
type Store interface {
	// Initialize creates buckets if absent and returns their names.
	Initialize() ([]string, error)
	Close() error

	PutTaskIns(row codec.Row) error
	// SelectPendingTaskIns returns up to limit rows matching pred, marking
	// each returned row's delivered_at in the same transaction.
	SelectPendingTaskIns(limit int, deliveredAt string, pred func(codec.Row) bool) ([]codec.Row, error)
	CountTaskIns() (int, error)
	DeleteTaskIns(taskIDs map[string]bool) error
	AllTaskIns() ([]codec.Row, error)

	PutTaskRes(row codec.Row) error
	SelectPendingTaskRes(limit int, deliveredAt string, taskIDSet map[string]bool) ([]codec.Row, error)
	CountTaskRes() (int, error)
	DeleteTaskRes(taskIDs map[string]bool) error
	AllTaskRes() ([]codec.Row, error)

	PutNode(id int64) error
	DeleteNode(id int64) error
	ListNodes() ([]int64, error)

	// WithTasksTx runs fn against a consistent snapshot of every task_ins and
	// task_res row, then deletes exactly the rows fn selects for deletion —
	// all inside one read-write transaction. delete_tasks and the reaper's
	// sweep both build on this so a batch's reads, selection, and deletes
	// never span more than one transaction.
	WithTasksTx(fn func(insRows, resRows []codec.Row) (insToDelete, resToDelete map[string]bool)) error
}
