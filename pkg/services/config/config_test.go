package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, "waste-atlas.yaml", "log_level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Default().Rules, cfg.Rules)
	assert.Equal(t, Default().Reconcile, cfg.Reconcile)
	assert.Equal(t, LockBackendLocal, cfg.Lock.Backend)
	assert.Equal(t, NotifyBackendNone, cfg.Notify.Backend)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "waste-atlas", cfg.Tracing.ServiceName)
	assert.Empty(t, cfg.Tracing.Endpoint)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "waste-atlas.yaml", `
clients_file: /etc/waste-atlas/clients.ini
database:
  driver: postgres
  dsn: postgres://atlas@localhost/atlas
rules:
  snapshot_max_age_days: 90
reconcile:
  retry_delay: 200ms
schedule:
  audit_interval: 6h
lock:
  backend: redis
`)
	t.Setenv("WASTE_ATLAS_LOCK_REDIS_ADDR", "redis:6379")
	t.Setenv("WASTE_ATLAS_RULES_VOLUME_PRICE_PER_GB", "0.1")
	t.Setenv("WASTE_ATLAS_AUTH_SECRET", "0123456789abcdef0123")
	t.Setenv("WASTE_ATLAS_TRACING_ENDPOINT", "otel-collector:4318")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/waste-atlas/clients.ini", cfg.ClientsFile)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 90, cfg.Rules.SnapshotMaxAgeDays)
	assert.Equal(t, 0.1, cfg.Rules.VolumePricePerGB)
	assert.Equal(t, 200*time.Millisecond, cfg.Reconcile.RetryDelay)
	assert.Equal(t, 6*time.Hour, cfg.Schedule.AuditInterval)
	assert.Zero(t, cfg.Schedule.SweepInterval)
	assert.Equal(t, LockBackendRedis, cfg.Lock.Backend)
	assert.Equal(t, "redis:6379", cfg.Lock.Redis.Addr)
	assert.Equal(t, "otel-collector:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, "waste-atlas:", cfg.Lock.Redis.Prefix)
	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.Secret)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown lock backend", content: "lock:\n  backend: etcd\n"},
		{name: "unknown notify backend", content: "notify:\n  backend: kafka\n"},
		{name: "unknown driver", content: "database:\n  driver: mysql\n"},
		{name: "short secret", content: "auth:\n  secret: short\n"},
		{name: "zero attempts", content: "reconcile:\n  max_attempts: 0\n"},
		{name: "bad log level", content: "log_level: loud\n"},
		{name: "sample ratio above one", content: "tracing:\n  sample_ratio: 1.5\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "waste-atlas.yaml", tc.content))
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")
}
