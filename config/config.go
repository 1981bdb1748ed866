// Package config provides unified configuration loading for taskflow:
// defaults, then a YAML file, then environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("taskflow.yaml").
//	    WithEnvPrefix("TASKFLOW").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete taskflow configuration.
type Config struct {
	// Engine configures scheduling defaults
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`
	// Executor configures the in-process executor
	Executor ExecutorConfig `yaml:"executor" env:"EXECUTOR"`
	// Redis configures the optional Redis audit/snapshot sink
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// Database configures the optional SQL snapshot store
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
	// Log configures logging
	Log LogConfig `yaml:"log" env:"LOG"`
	// Telemetry configures OTel export
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// EngineConfig holds workflow scheduling defaults applied when a
// definition leaves them unset.
type EngineConfig struct {
	// DefaultMode: sequential or parallel
	DefaultMode string `yaml:"default_mode" env:"DEFAULT_MODE"`
	// DefaultStrategy: retry, continue, abort, or rollback
	DefaultStrategy string `yaml:"default_strategy" env:"DEFAULT_STRATEGY"`
	// MaxParallelTasks caps concurrent tasks in parallel mode
	MaxParallelTasks int `yaml:"max_parallel_tasks" env:"MAX_PARALLEL_TASKS"`
	// DefaultTimeout is the advisory workflow timeout
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	// MetricsNamespace is the Prometheus namespace, empty disables metrics
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}

// ExecutorConfig holds in-process executor settings.
type ExecutorConfig struct {
	// Workers bounds concurrent handler executions
	Workers int `yaml:"workers" env:"WORKERS"`
	// RatePerSecond caps handler starts, 0 disables rate limiting
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	// Burst is the rate limiter burst size
	Burst int `yaml:"burst" env:"BURST"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig holds SQL store settings.
type DatabaseConfig struct {
	// Driver: sqlite is the only bundled driver
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the driver-specific data source name
	DSN string `yaml:"dsn" env:"DSN"`
	// MaxOpenConns caps open connections
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// MaxIdleConns caps idle connections
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// ConnMaxLifetime bounds connection reuse
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig holds OTel export settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DefaultMode:      "sequential",
			DefaultStrategy:  "abort",
			MaxParallelTasks: 4,
			DefaultTimeout:   30 * time.Minute,
			MetricsNamespace: "taskflow",
		},
		Executor: ExecutorConfig{
			Workers: 8,
			Burst:   1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "taskflow.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "taskflow",
			SampleRate:  1.0,
		},
	}
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a Loader with the TASKFLOW env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "TASKFLOW"}
}

// WithConfigPath sets the YAML file path. A missing file is not an error;
// defaults and env vars still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}

	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}

	return nil
}
