// Package queue defines the hand-off contract between the admission path and the
// worker scheduler.
//
// A Transport carries Pointer messages that name a task by id and type. Pointers
// are hints, not state: the task store stays authoritative, so a pointer whose
// record is missing or no longer queued is simply discarded by the consumer.
// Pointers are delivered in FIFO order; Return puts a pointer back at the head.
//
// Two transports exist: the in-memory Memory transport in this package, used by
// single-process deployments and tests, and the Redis list transport in
// internal/platform/redisqueue.
package queue
