package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CRONQ_DATABASE_URL.
const EnvPrefix = "CRONQ"

// Load configuration from environment variables and optionally a
// config.yaml in the working directory. Environment variables take
// precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching for config.yaml. The file must exist when path is not empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults are invisible to Unmarshal unless bound.
	for _, key := range []string{"database.url", "events.nats_url", "server.log_level"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Environment = resolveEnvironment(v)
	cfg.Database.EagerOpen = cfg.Environment == EnvironmentProd
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = cfg.Environment.DefaultLogLevel()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Database.AsyncPool.MinConns < MinAsyncWarmConns {
		return fmt.Errorf("config validation failed: database.async_pool.min_conns must be at least %d, got %d",
			MinAsyncWarmConns, c.Database.AsyncPool.MinConns)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.sync_pool.min_conns", 0)
	v.SetDefault("database.sync_pool.max_conns", 4)
	v.SetDefault("database.async_pool.min_conns", MinAsyncWarmConns)
	v.SetDefault("database.async_pool.max_conns", 16)
	v.SetDefault("database.acquire_timeout", 5*time.Minute)
	v.SetDefault("database.reconnect_timeout", time.Hour)

	v.SetDefault("scheduler.poll_spec", "@every 30s")
	v.SetDefault("scheduler.worker_count", 2)
	v.SetDefault("scheduler.batch_size", 50)
	v.SetDefault("scheduler.queue_size", 100)

	v.SetDefault("events.subject_prefix", "cronq.task")
}

// resolveEnvironment prefers CRONQ_ENVIRONMENT, then the config file, then
// the bare ENVIRONMENT variable used by the deployment tooling.
func resolveEnvironment(v *viper.Viper) Environment {
	if label := v.GetString("environment"); label != "" {
		return ParseEnvironment(label)
	}
	return ParseEnvironment(os.Getenv("ENVIRONMENT"))
}
