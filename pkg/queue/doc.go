// Package queue is the task-exchange core described by the data model in
// pkg/types: a durable store of TaskIns/TaskRes records and registered node
// ids, with exactly-once delivery per consumer.
//
// Every mutating operation is synchronous: it runs to completion on the
// calling goroutine, backed by one bbolt transaction, and never leaves the
// store half-updated. A limit of 0 means unlimited; nil node ids mean
// anonymous addressing.
package queue
