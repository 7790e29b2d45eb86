package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flower/pkg/storage"
	"github.com/cuemby/flower/pkg/types"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	store, err := storage.NewBoltStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := New(store, nil)
	_, err = q.Initialize()
	require.NoError(t, err)
	return q
}

func anonymousIns() *types.TaskIns {
	return &types.TaskIns{
		GroupID:           "g1",
		WorkloadID:        "w1",
		ConsumerAnonymous: true,
		ConsumerNodeID:    0,
		Payload:           []byte("hello"),
	}
}

func directedIns(nodeID int64) *types.TaskIns {
	return &types.TaskIns{
		GroupID:           "g1",
		WorkloadID:        "w1",
		ConsumerAnonymous: false,
		ConsumerNodeID:    nodeID,
		Payload:           []byte("hello"),
	}
}

func TestScenario1_AnonymousRoundTrip(t *testing.T) {
	q := newTestQueue(t)

	taskID, err := q.StoreTaskIns(anonymousIns())
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	got, err := q.GetTaskIns(nil, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, taskID, got[0].TaskID)
	assert.NotEmpty(t, got[0].DeliveredAt)

	again, err := q.GetTaskIns(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestScenario2_DirectedDeliveryIsolation(t *testing.T) {
	q := newTestQueue(t)

	idSeven, err := q.StoreTaskIns(directedIns(7))
	require.NoError(t, err)
	idNine, err := q.StoreTaskIns(directedIns(9))
	require.NoError(t, err)

	n7 := int64(7)
	resultSeven, err := q.GetTaskIns(&n7, 10)
	require.NoError(t, err)
	require.Len(t, resultSeven, 1)
	assert.Equal(t, idSeven, resultSeven[0].TaskID)
	assert.NotEmpty(t, resultSeven[0].DeliveredAt)

	n9 := int64(9)
	resultNine, err := q.GetTaskIns(&n9, 10)
	require.NoError(t, err)
	require.Len(t, resultNine, 1)
	assert.Equal(t, idNine, resultNine[0].TaskID)
}

func TestScenario3_ValidationRejection(t *testing.T) {
	q := newTestQueue(t)

	bad := &types.TaskIns{
		ConsumerAnonymous: true,
		ConsumerNodeID:    42,
	}
	taskID, err := q.StoreTaskIns(bad)
	require.NoError(t, err)
	assert.Empty(t, taskID)

	count, err := q.NumTaskIns()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestScenario4_LimitEnforcement(t *testing.T) {
	q := newTestQueue(t)

	for i := 0; i < 5; i++ {
		_, err := q.StoreTaskIns(anonymousIns())
		require.NoError(t, err)
	}

	first, err := q.GetTaskIns(nil, 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	rest, err := q.GetTaskIns(nil, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestScenario5_ResultPairingAndCleanup(t *testing.T) {
	q := newTestQueue(t)

	insID, err := q.StoreTaskIns(anonymousIns())
	require.NoError(t, err)

	_, err = q.GetTaskIns(nil, 10)
	require.NoError(t, err)

	resID, err := q.StoreTaskRes(&types.TaskRes{
		ConsumerAnonymous: true,
		ConsumerNodeID:    0,
		Ancestry:          []string{insID},
		Payload:           []byte("result"),
	})
	require.NoError(t, err)

	_, err = q.GetTaskRes(map[string]bool{insID: true}, 10)
	require.NoError(t, err)

	err = q.DeleteTasks(map[string]bool{resID: true})
	require.NoError(t, err)

	numIns, err := q.NumTaskIns()
	require.NoError(t, err)
	assert.Equal(t, 0, numIns)

	numRes, err := q.NumTaskRes()
	require.NoError(t, err)
	assert.Equal(t, 0, numRes)
}

func TestScenario6_ConcurrentClaim(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.StoreTaskIns(directedIns(3))
	require.NoError(t, err)

	n3 := int64(3)
	var wg sync.WaitGroup
	results := make([][]*types.TaskIns, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			got, err := q.GetTaskIns(&n3, 1)
			require.NoError(t, err)
			results[idx] = got
		}(i)
	}
	wg.Wait()

	totalReturned := len(results[0]) + len(results[1])
	assert.Equal(t, 1, totalReturned, "exactly one caller should receive the record")
}

func TestP2_DeliveryMonotonic(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.StoreTaskIns(anonymousIns())
	require.NoError(t, err)

	first, err := q.GetTaskIns(nil, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	firstDeliveredAt := first[0].DeliveredAt
	assert.NotEmpty(t, firstDeliveredAt)

	second, err := q.GetTaskIns(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, second, "delivered record must not be returned again")
}

func TestP4_AddressingIsolation(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.StoreTaskIns(anonymousIns())
	require.NoError(t, err)
	_, err = q.StoreTaskIns(directedIns(5))
	require.NoError(t, err)

	n5 := int64(5)
	directed, err := q.GetTaskIns(&n5, 10)
	require.NoError(t, err)
	for _, r := range directed {
		assert.False(t, r.ConsumerAnonymous)
		assert.Equal(t, int64(5), r.ConsumerNodeID)
	}

	anon, err := q.GetTaskIns(nil, 10)
	require.NoError(t, err)
	for _, r := range anon {
		assert.True(t, r.ConsumerAnonymous)
	}

	zero := int64(0)
	meaningless, err := q.GetTaskIns(&zero, 10)
	require.NoError(t, err)
	assert.Empty(t, meaningless)
}

func TestP5_TTLLaw(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, err := storage.NewBoltStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	q := New(store, func() time.Time { return fixed })
	_, err = q.Initialize()
	require.NoError(t, err)

	taskID, err := q.StoreTaskIns(anonymousIns())
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	all, err := store.AllTaskIns()
	require.NoError(t, err)
	require.Len(t, all, 1)

	created, err := time.Parse(time.RFC3339, all[0].CreatedAt)
	require.NoError(t, err)
	ttl, err := time.Parse(time.RFC3339, all[0].TTL)
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, ttl.Sub(created))
}

func TestP8_RegistrySetSemantics(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.RegisterNode(11))
	nodes, err := q.GetNodes()
	require.NoError(t, err)
	assert.Contains(t, nodes, int64(11))

	require.NoError(t, q.UnregisterNode(11))
	nodes, err = q.GetNodes()
	require.NoError(t, err)
	assert.NotContains(t, nodes, int64(11))
}

func TestRegisterNodeIdempotent(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.RegisterNode(1))
	require.NoError(t, q.RegisterNode(1))

	nodes, err := q.GetNodes()
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestNotInitializedError(t *testing.T) {
	store, err := storage.NewBoltStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	q := New(store, nil)
	_, err = q.GetTaskIns(nil, 10)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInvalidLimit(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.GetTaskIns(nil, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetTaskResEmptySetSkipsStorage(t *testing.T) {
	q := newTestQueue(t)
	got, err := q.GetTaskRes(map[string]bool{}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteTasksLeavesUndeliveredAlone(t *testing.T) {
	q := newTestQueue(t)
	insID, err := q.StoreTaskIns(anonymousIns())
	require.NoError(t, err)

	resID, err := q.StoreTaskRes(&types.TaskRes{
		ConsumerAnonymous: true,
		Ancestry:          []string{insID},
	})
	require.NoError(t, err)

	// Neither side has been delivered; delete_tasks must not remove them.
	err = q.DeleteTasks(map[string]bool{resID: true})
	require.NoError(t, err)

	numIns, err := q.NumTaskIns()
	require.NoError(t, err)
	assert.Equal(t, 1, numIns)

	numRes, err := q.NumTaskRes()
	require.NoError(t, err)
	assert.Equal(t, 1, numRes)
}

func TestP1_UniqueTaskIDs(t *testing.T) {
	q := newTestQueue(t)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := q.StoreTaskIns(anonymousIns())
		require.NoError(t, err)
		require.False(t, seen[id], fmt.Sprintf("duplicate task_id %s", id))
		seen[id] = true
	}
}
