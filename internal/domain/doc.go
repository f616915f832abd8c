// Package domain contains the task record, its state machine, the per-type
// input parameters and the deterministic artifact naming scheme. It has no
// knowledge of storage, queues or the processing tools.
package domain
