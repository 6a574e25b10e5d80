package config

import (
	"strings"
	"time"
)

// Environment identifies the deployment the process runs in.
type Environment string

// Known environments.
const (
	EnvironmentProd    Environment = "PROD"
	EnvironmentStaging Environment = "STAGE"
	EnvironmentCICD    Environment = "CICD"
	EnvironmentDev     Environment = "DEV"
)

// MinAsyncWarmConns is the smallest number of idle connections the worker
// pool keeps open so bursts of concurrent requests skip the dial.
const MinAsyncWarmConns = 8

// ParseEnvironment maps a label to an Environment. Unknown or empty labels
// fall back to DEV.
func ParseEnvironment(label string) Environment {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PROD", "PRODUCTIVE":
		return EnvironmentProd
	case "STG", "STAGE", "STAGING":
		return EnvironmentStaging
	case "CICD":
		return EnvironmentCICD
	default:
		return EnvironmentDev
	}
}

// DefaultLogLevel is debug for DEV and info everywhere else.
func (e Environment) DefaultLogLevel() string {
	if e == EnvironmentDev {
		return "debug"
	}
	return "info"
}

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Environment Environment     `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"    validate:"required"`
	Database    DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Events      EventsConfig    `mapstructure:"events"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains the DSN, the table schema, and both pool definitions.
type DatabaseConfig struct {
	URL    string `mapstructure:"url"    validate:"required"`
	Schema string `mapstructure:"schema" validate:"required,max=63"`

	// SyncPool serves low-concurrency, ops-style call paths.
	SyncPool PoolConfig `mapstructure:"sync_pool"`
	// AsyncPool serves worker traffic and keeps a warm floor.
	AsyncPool PoolConfig `mapstructure:"async_pool"`

	// AcquireTimeout bounds how long a checkout waits for a free connection.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"   validate:"gt=0"`
	// ReconnectTimeout bounds how long a checkout keeps trying to replace dead connections.
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout" validate:"gt=0"`

	// EagerOpen opens both pools at construction. It is derived from the
	// environment and only true in production.
	EagerOpen bool `mapstructure:"-"`
}

// PoolConfig sizes one connection pool.
type PoolConfig struct {
	MinConns int32 `mapstructure:"min_conns" validate:"gte=0"`
	MaxConns int32 `mapstructure:"max_conns" validate:"gt=0,gtefield=MinConns"`
}

// SchedulerConfig drives the due-task poller.
type SchedulerConfig struct {
	// PollSpec is a robfig/cron schedule, e.g. "@every 30s".
	PollSpec    string `mapstructure:"poll_spec"    validate:"required"`
	WorkerCount int    `mapstructure:"worker_count" validate:"gt=0"`
	BatchSize   int    `mapstructure:"batch_size"   validate:"gt=0"`
	QueueSize   int    `mapstructure:"queue_size"   validate:"gt=0"`
}

// EventsConfig configures the optional NATS lifecycle event publisher.
// An empty NATSURL disables publishing.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix" validate:"required"`
}
