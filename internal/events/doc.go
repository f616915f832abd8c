// Package events provides task lifecycle events and the plumbing to fan them out.
//
// The admission service and the scheduler emit a TaskEvent whenever a record changes
// status. Handlers registered on an InMemoryEventEmitter receive every event;
// the NATS publisher in internal/platform/natsbus is one such handler.
// Event delivery is best effort and never affects task state.
package events
