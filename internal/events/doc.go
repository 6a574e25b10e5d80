// Package events carries cron task lifecycle notifications.
//
// The service layer emits a TaskEvent whenever a task is created or changes
// status. Emission goes through an EventEmitter, so services never know who
// listens. The in-memory emitter fans events out to registered handlers; the
// NATS publisher is one such handler and forwards events to a subject, and
// Subscribe turns a NATS subject back into handler calls on the receiving
// side.
//
// The primary components are:
// - TaskEvent: a lifecycle notification about one cron task
// - EventHandler: interface for components that can handle events
// - EventEmitter: interface for components that can emit events
package events
