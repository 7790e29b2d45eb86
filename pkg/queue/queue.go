// Package queue implements the task-exchange core: storing and claiming
// TaskIns, storing and collecting TaskRes, cleanup, and the node registry.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/flower/pkg/clock"
	"github.com/cuemby/flower/pkg/codec"
	"github.com/cuemby/flower/pkg/log"
	"github.com/cuemby/flower/pkg/metrics"
	"github.com/cuemby/flower/pkg/storage"
	"github.com/cuemby/flower/pkg/types"
	"github.com/cuemby/flower/pkg/validator"
)

const taskTTLDuration = 24 * time.Hour

// Queue is the task queue core: the library surface described for drivers
// and fleets to call. It is synchronous and blocking; every mutating call
// runs one bbolt transaction to completion before returning.
type Queue struct {
	store       storage.Store
	now         clock.Clock
	initialized bool
}

// New constructs a Queue backed by store, using now for timestamps. Call
// Initialize before using it.
func New(store storage.Store, now clock.Clock) *Queue {
	if now == nil {
		now = clock.RealClock
	}
	return &Queue{store: store, now: now}
}

// Initialize creates storage schema and marks the queue ready for use. It
// returns the backend's bucket names, useful for smoke tests.
func (q *Queue) Initialize() ([]string, error) {
	names, err := q.store.Initialize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	q.initialized = true
	return names, nil
}

// Close releases the backend connection.
func (q *Queue) Close() error {
	return q.store.Close()
}

func (q *Queue) checkInitialized() error {
	if !q.initialized {
		return ErrNotInitialized
	}
	return nil
}

// StoreTaskIns mints a task id, stamps timestamps, validates addressing, and
// inserts the record. Returns an empty string (no error) when the record
// fails validation; storage failures are returned as an error.
func (q *Queue) StoreTaskIns(record *types.TaskIns) (string, error) {
	if err := q.checkInitialized(); err != nil {
		return "", err
	}
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.OperationDuration, "store_task_ins")
	}()

	if err := validator.Validate(validator.Consumer{
		Anonymous: record.ConsumerAnonymous,
		NodeID:    record.ConsumerNodeID,
	}); err != nil {
		metrics.OperationsTotal.WithLabelValues("store_task_ins", "rejected").Inc()
		return "", nil
	}

	now := q.now()
	record.TaskID = uuid.New().String()
	record.CreatedAt = clock.Format(now)
	record.TTL = clock.Format(now.Add(taskTTLDuration))
	record.DeliveredAt = ""

	row := codec.EncodeTaskIns(record)
	if err := q.store.PutTaskIns(row); err != nil {
		metrics.OperationsTotal.WithLabelValues("store_task_ins", "error").Inc()
		log.WithTaskID(record.TaskID).Error().Err(err).Str("table", "task_ins").Msg("store_task_ins failed")
		return "", fmt.Errorf("%w: put task_ins: %v", ErrStorageFailure, err)
	}
	metrics.OperationsTotal.WithLabelValues("store_task_ins", "ok").Inc()
	return record.TaskID, nil
}

// GetTaskIns returns pending instructions addressed to nodeID (nil means
// anonymous), marking each returned row delivered in the same transaction.
// A nodeID of 0 is meaningless and returns an empty list.
func (q *Queue) GetTaskIns(nodeID *int64, limit int) ([]*types.TaskIns, error) {
	if err := q.checkInitialized(); err != nil {
		return nil, err
	}
	if limit != 0 && limit < 1 {
		return nil, fmt.Errorf("%w: limit must be >= 1", ErrInvalidArgument)
	}
	if nodeID != nil && *nodeID == 0 {
		return nil, nil
	}

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.OperationDuration, "get_task_ins")
	}()

	pred := func(row codec.Row) bool {
		if nodeID == nil {
			return row.ConsumerAnonymous && row.ConsumerNodeID == 0
		}
		return !row.ConsumerAnonymous && row.ConsumerNodeID == *nodeID
	}

	deliveredAt := clock.Format(q.now())
	rows, err := q.store.SelectPendingTaskIns(limit, deliveredAt, pred)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("get_task_ins", "error").Inc()
		log.WithTable("task_ins").Error().Err(err).Msg("get_task_ins failed")
		return nil, fmt.Errorf("%w: select task_ins: %v", ErrStorageFailure, err)
	}

	metrics.OperationsTotal.WithLabelValues("get_task_ins", "ok").Inc()
	result := make([]*types.TaskIns, len(rows))
	for i, row := range rows {
		result[i] = codec.DecodeTaskIns(row)
	}
	return result, nil
}

// StoreTaskRes has the same contract as StoreTaskIns for the result table.
// Ancestry length is not validated here (see DESIGN.md).
func (q *Queue) StoreTaskRes(record *types.TaskRes) (string, error) {
	if err := q.checkInitialized(); err != nil {
		return "", err
	}
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.OperationDuration, "store_task_res")
	}()

	if err := validator.Validate(validator.Consumer{
		Anonymous: record.ConsumerAnonymous,
		NodeID:    record.ConsumerNodeID,
	}); err != nil {
		metrics.OperationsTotal.WithLabelValues("store_task_res", "rejected").Inc()
		return "", nil
	}

	now := q.now()
	record.TaskID = uuid.New().String()
	record.CreatedAt = clock.Format(now)
	record.TTL = clock.Format(now.Add(taskTTLDuration))
	record.DeliveredAt = ""

	row := codec.EncodeTaskRes(record)
	if err := q.store.PutTaskRes(row); err != nil {
		metrics.OperationsTotal.WithLabelValues("store_task_res", "error").Inc()
		log.WithTaskID(record.TaskID).Error().Err(err).Str("table", "task_res").Msg("store_task_res failed")
		return "", fmt.Errorf("%w: put task_res: %v", ErrStorageFailure, err)
	}
	metrics.OperationsTotal.WithLabelValues("store_task_res", "ok").Inc()
	return record.TaskID, nil
}

// GetTaskRes returns pending results whose ancestry's first entry is in
// taskIDSet, marking each returned row delivered in the same transaction.
func (q *Queue) GetTaskRes(taskIDSet map[string]bool, limit int) ([]*types.TaskRes, error) {
	if err := q.checkInitialized(); err != nil {
		return nil, err
	}
	if limit != 0 && limit < 1 {
		return nil, fmt.Errorf("%w: limit must be >= 1", ErrInvalidArgument)
	}
	if len(taskIDSet) == 0 {
		return nil, nil
	}

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.OperationDuration, "get_task_res")
	}()

	deliveredAt := clock.Format(q.now())
	rows, err := q.store.SelectPendingTaskRes(limit, deliveredAt, taskIDSet)
	if err != nil {
		metrics.OperationsTotal.WithLabelValues("get_task_res", "error").Inc()
		log.WithTable("task_res").Error().Err(err).Msg("get_task_res failed")
		return nil, fmt.Errorf("%w: select task_res: %v", ErrStorageFailure, err)
	}

	metrics.OperationsTotal.WithLabelValues("get_task_res", "ok").Inc()
	result := make([]*types.TaskRes, len(rows))
	for i, row := range rows {
		result[i] = codec.DecodeTaskRes(row)
	}
	return result, nil
}

// DeleteTasks removes delivered TaskRes in taskIDSet together with the
// TaskIns each one answers, in a single atomic pass. Orphan results (no
// matching TaskIns) are deleted anyway; see DESIGN.md's open-question
// resolution. Both stages run inside the one read-write transaction
// store.WithTasksTx opens, so a storage failure mid-sweep leaves every row
// exactly as it was rather than half-deleted.
func (q *Queue) DeleteTasks(taskIDSet map[string]bool) error {
	if err := q.checkInitialized(); err != nil {
		return err
	}
	if len(taskIDSet) == 0 {
		return nil
	}

	err := q.store.WithTasksTx(func(insRows, resRows []codec.Row) (map[string]bool, map[string]bool) {
		deliveredIns := make(map[string]bool, len(insRows))
		for _, row := range insRows {
			if row.DeliveredAt != "" {
				deliveredIns[row.TaskID] = true
			}
		}

		resToDelete := make(map[string]bool)
		insToDelete := make(map[string]bool)
		for _, row := range resRows {
			if !taskIDSet[row.TaskID] || row.DeliveredAt == "" {
				continue
			}
			resToDelete[row.TaskID] = true
			if ancestor := firstAncestor(row.Ancestry); ancestor != "" && deliveredIns[ancestor] {
				insToDelete[ancestor] = true
			}
		}
		return insToDelete, resToDelete
	})
	if err != nil {
		log.WithComponent("queue").Error().Err(err).Msg("delete_tasks failed")
		return fmt.Errorf("%w: delete_tasks: %v", ErrStorageFailure, err)
	}
	return nil
}

func firstAncestor(ancestry string) string {
	for i, c := range ancestry {
		if c == ',' {
			return ancestry[:i]
		}
	}
	return ancestry
}

// NumTaskIns returns the current task_ins row count.
func (q *Queue) NumTaskIns() (int, error) {
	if err := q.checkInitialized(); err != nil {
		return 0, err
	}
	n, err := q.store.CountTaskIns()
	if err != nil {
		log.WithTable("task_ins").Error().Err(err).Msg("num_task_ins failed")
		return 0, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return n, nil
}

// NumTaskRes returns the current task_res row count.
func (q *Queue) NumTaskRes() (int, error) {
	if err := q.checkInitialized(); err != nil {
		return 0, err
	}
	n, err := q.store.CountTaskRes()
	if err != nil {
		log.WithTable("task_res").Error().Err(err).Msg("num_task_res failed")
		return 0, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return n, nil
}

// RegisterNode inserts nodeID into the registry. Re-registering an id
// already present is a no-op (see DESIGN.md's open-question resolution).
func (q *Queue) RegisterNode(nodeID int64) error {
	if err := q.checkInitialized(); err != nil {
		return err
	}
	if err := q.store.PutNode(nodeID); err != nil {
		log.WithNodeID(nodeID).Error().Err(err).Msg("register_node failed")
		return fmt.Errorf("%w: register node: %v", ErrStorageFailure, err)
	}
	return nil
}

// UnregisterNode removes nodeID from the registry.
func (q *Queue) UnregisterNode(nodeID int64) error {
	if err := q.checkInitialized(); err != nil {
		return err
	}
	if err := q.store.DeleteNode(nodeID); err != nil {
		log.WithNodeID(nodeID).Error().Err(err).Msg("unregister_node failed")
		return fmt.Errorf("%w: unregister node: %v", ErrStorageFailure, err)
	}
	return nil
}

// Sweep deletes task_ins and task_res rows that are either delivered or past
// their ttl, independent of DeleteTasks's ancestry-aware cleanup. It is the
// body of the background reaper in pkg/reaper and returns the number of rows
// removed from each table. Like DeleteTasks, selection and deletion run
// inside the single transaction store.WithTasksTx opens.
func (q *Queue) Sweep() (insDeleted, resDeleted int, err error) {
	if err := q.checkInitialized(); err != nil {
		return 0, 0, err
	}
	nowStr := clock.Format(q.now())

	var insCount, resCount int
	txErr := q.store.WithTasksTx(func(insRows, resRows []codec.Row) (map[string]bool, map[string]bool) {
		insToDelete := make(map[string]bool)
		for _, row := range insRows {
			if row.DeliveredAt != "" || row.TTL < nowStr {
				insToDelete[row.TaskID] = true
			}
		}
		resToDelete := make(map[string]bool)
		for _, row := range resRows {
			if row.DeliveredAt != "" || row.TTL < nowStr {
				resToDelete[row.TaskID] = true
			}
		}
		insCount, resCount = len(insToDelete), len(resToDelete)
		return insToDelete, resToDelete
	})
	if txErr != nil {
		log.WithComponent("reaper").Error().Err(txErr).Msg("sweep failed")
		return 0, 0, fmt.Errorf("%w: sweep: %v", ErrStorageFailure, txErr)
	}
	return insCount, resCount, nil
}

// GetNodes returns every currently registered node id.
func (q *Queue) GetNodes() ([]int64, error) {
	if err := q.checkInitialized(); err != nil {
		return nil, err
	}
	ids, err := q.store.ListNodes()
	if err != nil {
		log.WithTable("node").Error().Err(err).Msg("get_nodes failed")
		return nil, fmt.Errorf("%w: list nodes: %v", ErrStorageFailure, err)
	}
	return ids, nil
}
