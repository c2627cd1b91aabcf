// Package config loads the offlineq YAML configuration.
//
// A file is first checked against an embedded CUE schema, which catches
// unknown keys, bad enum values and malformed durations with a precise
// path, and then decoded with yaml.v3 over Default(). Keys the file omits
// keep their defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/offlineq/internal/analytics"
	"github.com/roach88/offlineq/internal/offline"
	"github.com/roach88/offlineq/internal/remote"
)

//go:embed schema.cue
var schemaSource string

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the whole configuration file.
type Config struct {
	Environment string          `yaml:"environment"`
	Storage     StorageConfig   `yaml:"storage"`
	Queue       QueueConfig     `yaml:"queue"`
	Network     NetworkConfig   `yaml:"network"`
	Remote      RemoteConfig    `yaml:"remote"`
	Analytics   AnalyticsConfig `yaml:"analytics"`
	Server      ServerConfig    `yaml:"server"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr   string `yaml:"addr"`
	DB     int    `yaml:"db"`
	Prefix string `yaml:"prefix"`
}

type QueueConfig struct {
	Key            string        `yaml:"key"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	MissingHandler string        `yaml:"missing_handler"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// NetworkConfig selects the connectivity source. With ProbeAddr set the
// daemon dials it periodically; otherwise connectivity is set by hand
// starting from InitiallyOnline.
type NetworkConfig struct {
	ProbeAddr       string        `yaml:"probe_addr"`
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	InitiallyOnline bool          `yaml:"initially_online"`
}

type RemoteConfig struct {
	BaseURL   string                    `yaml:"base_url"`
	Timeout   time.Duration             `yaml:"timeout"`
	Headers   map[string]string         `yaml:"headers"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
}

type EndpointConfig struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

type AnalyticsConfig struct {
	Key          string      `yaml:"key"`
	MaxQueueSize int         `yaml:"max_queue_size"`
	Kafka        KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	q := offline.DefaultConfig()
	a := analytics.DefaultOfflineConfig()
	return Config{
		Environment: string(analytics.Development),
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Path:    "offlineq.db",
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "offlineq:"},
		},
		Queue: QueueConfig{
			Key:            q.Key,
			MaxRetries:     q.MaxRetries,
			RetryDelay:     q.RetryDelay,
			MissingHandler: string(q.MissingHandler),
		},
		Network: NetworkConfig{
			ProbeInterval:   5 * time.Second,
			InitiallyOnline: true,
		},
		Remote: RemoteConfig{Timeout: remote.DefaultTimeout},
		Analytics: AnalyticsConfig{
			Key:          a.Key,
			MaxQueueSize: a.MaxQueueSize,
			Kafka:        KafkaConfig{Topic: "analytics"},
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads the file at path. A missing file yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and decodes it over Default().
func Parse(data []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if doc == nil {
		// Empty or comment-only file.
		return Default(), nil
	}

	if err := validateSchema(data); err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateSchema(data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file, err := cueyaml.Extract("config.yaml", data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config:\n%s", cueerrors.Details(err, nil))
	}
	return nil
}

// Validate checks constraints that span several keys.
func (c Config) Validate() error {
	if _, err := analytics.ParseEnvironment(c.Environment); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if _, err := offline.ParseMissingHandlerPolicy(c.Queue.MissingHandler); err != nil {
		return err
	}
	if len(c.Analytics.Kafka.Brokers) > 0 && c.Analytics.Kafka.Topic == "" {
		return errors.New("analytics.kafka.topic is required when brokers are set")
	}
	return nil
}

// OfflineConfig converts the queue section.
func (c Config) OfflineConfig() offline.Config {
	policy, _ := offline.ParseMissingHandlerPolicy(c.Queue.MissingHandler)
	return offline.Config{
		Key:            c.Queue.Key,
		MaxRetries:     c.Queue.MaxRetries,
		RetryDelay:     c.Queue.RetryDelay,
		MissingHandler: policy,
		HandlerTimeout: c.Queue.HandlerTimeout,
	}
}

// AnalyticsEnvironment returns the parsed environment.
func (c Config) AnalyticsEnvironment() analytics.Environment {
	env, _ := analytics.ParseEnvironment(c.Environment)
	return env
}

// AnalyticsOfflineConfig converts the analytics section.
func (c Config) AnalyticsOfflineConfig() analytics.OfflineConfig {
	return analytics.OfflineConfig{Key: c.Analytics.Key, MaxQueueSize: c.Analytics.MaxQueueSize}
}

// Endpoints returns the configured endpoints, or remote.DefaultEndpoints()
// when none are configured.
func (c Config) Endpoints() map[string]remote.Endpoint {
	if len(c.Remote.Endpoints) == 0 {
		return remote.DefaultEndpoints()
	}
	out := make(map[string]remote.Endpoint, len(c.Remote.Endpoints))
	for typ, ep := range c.Remote.Endpoints {
		out[typ] = remote.Endpoint{Method: ep.Method, Path: ep.Path}
	}
	return out
}
