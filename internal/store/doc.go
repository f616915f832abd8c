// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the scheduler, sweeper and admission path, so that task lifecycle rules
// remain independent of specific database technologies.
package store
