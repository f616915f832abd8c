// Package sweeper enforces retention. Each pass fails running tasks whose worker
// disappeared, deletes expired records together with their artifacts and queue
// metadata, and removes files in the output and temp directories that no record
// accounts for. Passes are idempotent.
package sweeper
