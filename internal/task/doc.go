// Package task runs queued work. The Scheduler pops queue pointers, claims the
// referenced task records with a conditional queued->running update, runs the
// executor registered for the task type under a hard timeout, and writes the
// terminal outcome back to the store.
//
// The store is the single source of truth for task state: a pointer whose record
// is missing or no longer queued is discarded, so duplicate deliveries and
// competing workers are harmless.
package task
