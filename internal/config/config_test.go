package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offlineq/internal/analytics"
	"github.com/roach88/offlineq/internal/offline"
	"github.com/roach88/offlineq/internal/remote"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, offline.DefaultConfig(), cfg.OfflineConfig())
	assert.Equal(t, analytics.Development, cfg.AnalyticsEnvironment())
	assert.Equal(t, analytics.DefaultOfflineConfig(), cfg.AnalyticsOfflineConfig())
	assert.Equal(t, remote.DefaultEndpoints(), cfg.Endpoints())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offlineq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
storage:
  backend: redis
  redis:
    addr: cache:6379
    db: 2
queue:
  max_retries: 5
  retry_delay: 250ms
  missing_handler: keep
  handler_timeout: 30s
network:
  probe_addr: api.example.com:443
  probe_interval: 10s
remote:
  base_url: https://api.example.com/v1
  headers:
    Authorization: Bearer abc
  endpoints:
    create_order:
      method: POST
      path: /orders
analytics:
  max_queue_size: 50
  kafka:
    brokers: [kafka-1:9092, kafka-2:9092]
server:
  addr: 127.0.0.1:9090
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, analytics.Production, cfg.AnalyticsEnvironment())
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 2, cfg.Storage.Redis.DB)
	assert.Equal(t, "offlineq:", cfg.Storage.Redis.Prefix, "unset keys keep defaults")

	assert.Equal(t, offline.Config{
		Key:            offline.DefaultKey,
		MaxRetries:     5,
		RetryDelay:     250 * time.Millisecond,
		MissingHandler: offline.KeepMissing,
		HandlerTimeout: 30 * time.Second,
	}, cfg.OfflineConfig())

	assert.Equal(t, "api.example.com:443", cfg.Network.ProbeAddr)
	assert.Equal(t, 10*time.Second, cfg.Network.ProbeInterval)
	assert.Equal(t, map[string]remote.Endpoint{"create_order": {Method: "POST", Path: "/orders"}}, cfg.Endpoints())
	assert.Equal(t, "Bearer abc", cfg.Remote.Headers["Authorization"])
	assert.Equal(t, 50, cfg.Analytics.MaxQueueSize)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Analytics.Kafka.Brokers)
	assert.Equal(t, "analytics", cfg.Analytics.Kafka.Topic)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse([]byte("# nothing here\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown top-level key", "queue_size: 3\n", "queue_size"},
		{"unknown nested key", "queue:\n  retries: 3\n", "retries"},
		{"bad environment", "environment: staging\n", "environment"},
		{"bad backend", "storage:\n  backend: postgres\n", "backend"},
		{"zero retries", "queue:\n  max_retries: 0\n", "max_retries"},
		{"bad duration", "queue:\n  retry_delay: soon\n", "retry_delay"},
		{"bad policy", "queue:\n  missing_handler: stall\n", "missing_handler"},
		{"relative base url", "remote:\n  base_url: api.example.com\n", "base_url"},
		{"endpoint without slash", "remote:\n  endpoints:\n    create_order:\n      path: orders\n", "path"},
		{"redis db out of range", "storage:\n  redis:\n    db: 16\n", "db"},
		{"not yaml", "queue: [\n", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CrossField(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "storage.path")

	cfg = Default()
	cfg.Storage.Backend = BackendRedis
	cfg.Storage.Redis.Addr = ""
	assert.ErrorContains(t, cfg.Validate(), "storage.redis.addr")

	cfg = Default()
	cfg.Analytics.Kafka.Brokers = []string{"k:9092"}
	cfg.Analytics.Kafka.Topic = ""
	assert.ErrorContains(t, cfg.Validate(), "analytics.kafka.topic")

	cfg = Default()
	cfg.Storage.Backend = BackendMemory
	cfg.Storage.Path = ""
	assert.NoError(t, cfg.Validate())
}
