// Package task runs due cron tasks inside the host process.
//
// A TaskRunner polls the queue on a cron schedule, claims due tasks in
// batches, buffers them in a bounded TaskQueue and hands them to a
// WorkerPool. Each worker looks up the Handler registered for the task's
// task_id, runs it and records DONE or ERROR. Failures of one task never
// abort the rest of the batch.
package task
