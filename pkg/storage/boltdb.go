package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/flower/pkg/codec"
	"github.com/cuemby/flower/pkg/log"
)

var (
	bucketTaskIns = []byte("task_ins")
	bucketTaskRes = []byte("task_res")
	bucketNodes   = []byte("node")
)

// memorySentinel is the magic path that selects a throwaway on-disk
// database deleted on Close. bbolt has no true in-memory mode; this is the
// closest honest approximation of the ":memory:" contract.
const memorySentinel = ":memory:"

// BoltStore implements Store on top of a single bbolt database file, one
// bucket per entity.
type BoltStore struct {
	db        *bolt.DB
	path      string
	ephemeral bool
}

// NewBoltStore opens (or creates) the bbolt database at path. path may be a
// filesystem path or the sentinel ":memory:".
func NewBoltStore(path string) (*BoltStore, error) {
	ephemeral := path == memorySentinel
	dbPath := path
	if ephemeral {
		f, err := os.CreateTemp("", "flower-*.db")
		if err != nil {
			return nil, fmt.Errorf("create in-memory backing file: %w", err)
		}
		dbPath = f.Name()
		f.Close()
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &BoltStore{db: db, path: dbPath, ephemeral: ephemeral}, nil
}

// Initialize creates every bucket if absent and returns their names.
func (s *BoltStore) Initialize() ([]string, error) {
	buckets := [][]byte{bucketTaskIns, bucketTaskRes, bucketNodes}
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, len(buckets))
	for i, b := range buckets {
		names[i] = string(b)
	}
	return names, nil
}

// Close releases the database handle. If the store was opened against the
// ":memory:" sentinel, the backing file is removed too.
func (s *BoltStore) Close() error {
	err := s.db.Close()
	if s.ephemeral {
		os.Remove(s.path)
	}
	return err
}

func (s *BoltStore) PutTaskIns(row codec.Row) error {
	return putRow(s.db, bucketTaskIns, row.TaskID, row)
}

func (s *BoltStore) CountTaskIns() (int, error) {
	return countRows(s.db, bucketTaskIns)
}

func (s *BoltStore) AllTaskIns() ([]codec.Row, error) {
	return allRows(s.db, bucketTaskIns)
}

func (s *BoltStore) PutTaskRes(row codec.Row) error {
	return putRow(s.db, bucketTaskRes, row.TaskID, row)
}

func (s *BoltStore) CountTaskRes() (int, error) {
	return countRows(s.db, bucketTaskRes)
}

func (s *BoltStore) AllTaskRes() ([]codec.Row, error) {
	return allRows(s.db, bucketTaskRes)
}

func putRow(db *bolt.DB, bucket []byte, key string, row codec.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		log.WithTaskID(key).Error().Err(err).Str("table", string(bucket)).Msg("marshal row failed")
		return fmt.Errorf("marshal row: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
	if err != nil {
		log.WithTaskID(key).Error().Err(err).Str("table", string(bucket)).Msg("put row failed")
	}
	return err
}

func countRows(db *bolt.DB, bucket []byte) (int, error) {
	n := 0
	err := db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucket).Stats().KeyN
		return nil
	})
	return n, err
}

func allRows(db *bolt.DB, bucket []byte) ([]codec.Row, error) {
	var rows []codec.Row
	err := db.View(func(tx *bolt.Tx) error {
		r, err := readRows(tx.Bucket(bucket))
		rows = r
		return err
	})
	return rows, err
}

// readRows decodes every row in b into independent values, so the returned
// slice stays valid after b's transaction ends.
func readRows(b *bolt.Bucket) ([]codec.Row, error) {
	var rows []codec.Row
	err := b.ForEach(func(_, v []byte) error {
		var row codec.Row
		if err := json.Unmarshal(v, &row); err != nil {
			return fmt.Errorf("unmarshal row: %w", err)
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// SelectPendingTaskIns selects rows matching pred with an empty
// delivered_at, caps the selection at limit if limit > 0, stamps
// delivered_at on the selected rows, and returns them. Select, mark, and
// return all happen inside one read-write transaction: bbolt allows only
// one such transaction at a time, so this is the atomic select-and-mark the
// delivery contract requires.
func (s *BoltStore) SelectPendingTaskIns(limit int, deliveredAt string, pred func(codec.Row) bool) ([]codec.Row, error) {
	return selectAndMark(s.db, bucketTaskIns, limit, deliveredAt, pred)
}

// SelectPendingTaskRes selects pending rows whose ancestry's first entry is
// a member of taskIDSet, stamps delivered_at, and returns them atomically.
func (s *BoltStore) SelectPendingTaskRes(limit int, deliveredAt string, taskIDSet map[string]bool) ([]codec.Row, error) {
	pred := func(row codec.Row) bool {
		return taskIDSet[firstAncestor(row.Ancestry)]
	}
	return selectAndMark(s.db, bucketTaskRes, limit, deliveredAt, pred)
}

func firstAncestor(ancestry string) string {
	for i, c := range ancestry {
		if c == ',' {
			return ancestry[:i]
		}
	}
	return ancestry
}

func selectAndMark(db *bolt.DB, bucket []byte, limit int, deliveredAt string, pred func(codec.Row) bool) ([]codec.Row, error) {
	var selected []codec.Row
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(selected) >= limit {
				break
			}
			var row codec.Row
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("unmarshal row %s: %w", k, err)
			}
			if row.DeliveredAt != "" || !pred(row) {
				continue
			}
			row.DeliveredAt = deliveredAt
			data, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("marshal row %s: %w", row.TaskID, err)
			}
			if err := b.Put(k, data); err != nil {
				return fmt.Errorf("put row %s: %w", row.TaskID, err)
			}
			selected = append(selected, row)
		}
		return nil
	})
	if err != nil {
		log.WithTable(string(bucket)).Error().Err(err).Msg("select-and-mark failed")
	}
	return selected, err
}

func (s *BoltStore) DeleteTaskIns(taskIDs map[string]bool) error {
	return deleteKeys(s.db, bucketTaskIns, taskIDs)
}

func (s *BoltStore) DeleteTaskRes(taskIDs map[string]bool) error {
	return deleteKeys(s.db, bucketTaskRes, taskIDs)
}

func deleteKeys(db *bolt.DB, bucket []byte, keys map[string]bool) error {
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		for k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		log.WithTable(string(bucket)).Error().Err(err).Msg("delete failed")
	}
	return err
}

// WithTasksTx reads every task_ins and task_res row, lets fn select rows for
// deletion from that snapshot, and deletes them — all within one read-write
// transaction. A storage error or panic anywhere in this sequence rolls the
// whole transaction back; there is no window where a delete on one bucket
// commits without the paired delete on the other.
func (s *BoltStore) WithTasksTx(fn func(insRows, resRows []codec.Row) (insToDelete, resToDelete map[string]bool)) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		insBucket := tx.Bucket(bucketTaskIns)
		resBucket := tx.Bucket(bucketTaskRes)

		insRows, err := readRows(insBucket)
		if err != nil {
			return fmt.Errorf("read task_ins: %w", err)
		}
		resRows, err := readRows(resBucket)
		if err != nil {
			return fmt.Errorf("read task_res: %w", err)
		}

		insToDelete, resToDelete := fn(insRows, resRows)

		for id := range insToDelete {
			if err := insBucket.Delete([]byte(id)); err != nil {
				log.WithTaskID(id).Error().Err(err).Str("table", string(bucketTaskIns)).Msg("delete failed")
				return fmt.Errorf("delete task_ins %s: %w", id, err)
			}
		}
		for id := range resToDelete {
			if err := resBucket.Delete([]byte(id)); err != nil {
				log.WithTaskID(id).Error().Err(err).Str("table", string(bucketTaskRes)).Msg("delete failed")
				return fmt.Errorf("delete task_res %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		log.WithComponent("storage").Error().Err(err).Msg("task cleanup transaction failed")
	}
	return err
}

func (s *BoltStore) PutNode(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Put(nodeKey(id), []byte{1})
	})
}

func (s *BoltStore) DeleteNode(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Delete(nodeKey(id))
	})
}

func (s *BoltStore) ListNodes() ([]int64, error) {
	var ids []int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, _ []byte) error {
			ids = append(ids, decodeNodeKey(k))
			return nil
		})
	})
	return ids, err
}

func nodeKey(id int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeNodeKey(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k))
}
