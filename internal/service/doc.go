// Package service contains the application-level use cases of the task queue.
//
// CronService is the façade host code talks to: it schedules tasks, lists
// the ones that are due, claims them and records their outcome. It delegates
// persistence to a store.CronTaskStore and reports lifecycle changes through
// an events.EventEmitter. The service depends on the store interface only,
// never on a specific database implementation.
package service
