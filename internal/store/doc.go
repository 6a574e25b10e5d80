// Package store defines interfaces for cron task persistence together with
// the error taxonomy shared by every implementation. These interfaces keep
// the service layer independent of the database driver and pool details.
package store
