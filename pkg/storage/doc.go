// Package storage persists task instructions, task results, and node ids
// in a single bbolt database, one bucket per entity.
//
// Every select-and-mark operation (claiming TaskIns, collecting TaskRes)
// runs inside one bbolt read-write transaction. bbolt permits only one such
// transaction at a time, which is what makes a row-returning update safe
// under concurrent callers: a row cannot be selected twice.
//
// The ":memory:" path sentinel is honored by opening a throwaway temp file
// instead of a real path and deleting it on Close; bbolt itself has no
// memory-backed mode.
package storage
