// Package domain contains the cron task entity, its lifecycle states, and
// the payload normalization rules shared by the store and service layers.
// It is independent of any specific infrastructure.
package domain
