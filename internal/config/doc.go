// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. It provides
// type-safe access to database, pool, scheduler, and event settings while
// keeping configuration details separate from queue logic.
package config
