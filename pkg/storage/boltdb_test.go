package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flower/pkg/codec"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Initialize()
	require.NoError(t, err)
	return s
}

func TestInitializeReturnsBucketNames(t *testing.T) {
	s := newTestStore(t)
	names, err := s.Initialize()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task_ins", "task_res", "node"}, names)
}

func TestPutAndCountTaskIns(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutTaskIns(codec.Row{TaskID: "a"}))
	require.NoError(t, s.PutTaskIns(codec.Row{TaskID: "b"}))

	n, err := s.CountTaskIns()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSelectPendingTaskInsMarksDelivered(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutTaskIns(codec.Row{TaskID: "a", ConsumerAnonymous: true}))

	selected, err := s.SelectPendingTaskIns(0, "2026-01-01T00:00:00Z", func(r codec.Row) bool {
		return r.ConsumerAnonymous
	})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "2026-01-01T00:00:00Z", selected[0].DeliveredAt)

	again, err := s.SelectPendingTaskIns(0, "2026-01-01T00:00:01Z", func(r codec.Row) bool {
		return r.ConsumerAnonymous
	})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSelectPendingTaskInsRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.PutTaskIns(codec.Row{TaskID: string(rune('a' + i)), ConsumerAnonymous: true}))
	}

	selected, err := s.SelectPendingTaskIns(2, "now", func(r codec.Row) bool { return true })
	require.NoError(t, err)
	assert.Len(t, selected, 2)
}

func TestSelectPendingTaskResFiltersByAncestry(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutTaskRes(codec.Row{TaskID: "r1", Ancestry: "ins-1"}))
	require.NoError(t, s.PutTaskRes(codec.Row{TaskID: "r2", Ancestry: "ins-2"}))

	selected, err := s.SelectPendingTaskRes(0, "now", map[string]bool{"ins-1": true})
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "r1", selected[0].TaskID)
}

func TestDeleteTaskInsRemovesKeys(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutTaskIns(codec.Row{TaskID: "a"}))
	require.NoError(t, s.PutTaskIns(codec.Row{TaskID: "b"}))

	require.NoError(t, s.DeleteTaskIns(map[string]bool{"a": true}))

	n, err := s.CountTaskIns()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNodeRegistrySetSemantics(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutNode(1))
	require.NoError(t, s.PutNode(2))

	ids, err := s.ListNodes()
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)

	require.NoError(t, s.DeleteNode(1))
	ids, err = s.ListNodes()
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestWithTasksTxDeletesSelectedRowsFromBothBuckets(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutTaskIns(codec.Row{TaskID: "ins-1", DeliveredAt: "2026-01-01T00:00:00Z"}))
	require.NoError(t, s.PutTaskIns(codec.Row{TaskID: "ins-2"}))
	require.NoError(t, s.PutTaskRes(codec.Row{TaskID: "res-1", Ancestry: "ins-1", DeliveredAt: "2026-01-01T00:00:00Z"}))
	require.NoError(t, s.PutTaskRes(codec.Row{TaskID: "res-2", Ancestry: "ins-2"}))

	var sawIns, sawRes int
	err := s.WithTasksTx(func(insRows, resRows []codec.Row) (map[string]bool, map[string]bool) {
		sawIns, sawRes = len(insRows), len(resRows)
		return map[string]bool{"ins-1": true}, map[string]bool{"res-1": true}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sawIns)
	assert.Equal(t, 2, sawRes)

	insCount, err := s.CountTaskIns()
	require.NoError(t, err)
	assert.Equal(t, 1, insCount)

	resCount, err := s.CountTaskRes()
	require.NoError(t, err)
	assert.Equal(t, 1, resCount)
}

func TestWithTasksTxNoSelectionLeavesRowsIntact(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutTaskIns(codec.Row{TaskID: "ins-1"}))
	require.NoError(t, s.PutTaskRes(codec.Row{TaskID: "res-1"}))

	err := s.WithTasksTx(func(insRows, resRows []codec.Row) (map[string]bool, map[string]bool) {
		return nil, nil
	})
	require.NoError(t, err)

	insCount, err := s.CountTaskIns()
	require.NoError(t, err)
	assert.Equal(t, 1, insCount)

	resCount, err := s.CountTaskRes()
	require.NoError(t, err)
	assert.Equal(t, 1, resCount)
}

func TestMemorySentinelCleansUpOnClose(t *testing.T) {
	s, err := NewBoltStore(":memory:")
	require.NoError(t, err)
	path := s.path
	require.NoError(t, s.Close())

	_, statErr := os.Stat(path)
	assert.Error(t, statErr)
}
