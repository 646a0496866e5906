package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance without user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, "trellis.db", cfg.Storage.Path)
	assert.Equal(t, AnalyticsSQLite, cfg.Analytics.Backend)
	assert.Equal(t, 256, cfg.Server.ClientQueueSize)
	assert.Equal(t, 60*time.Second, cfg.PongWait())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := DefaultConfig()
		require.NoError(t, err)
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "redis" }, true},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = StorageS3; c.Analytics.Backend = AnalyticsNone }, true},
		{"s3 with bucket", func(c *Config) {
			c.Storage.Backend = StorageS3
			c.Storage.S3.Bucket = "graphs"
			c.Analytics.Backend = AnalyticsNone
		}, false},
		{"sqlite analytics needs sqlite storage", func(c *Config) { c.Storage.Backend = StorageMemory }, true},
		{"memory storage without analytics", func(c *Config) {
			c.Storage.Backend = StorageMemory
			c.Analytics.Backend = AnalyticsNone
		}, false},
		{"nats without url", func(c *Config) { c.Analytics.Backend = AnalyticsNATS; c.Analytics.NATSURL = "" }, true},
		{"negative rate", func(c *Config) { c.Server.OpsPerSecond = -1 }, true},
		{"rate without burst", func(c *Config) { c.Server.OpsBurst = 0 }, true},
		{"bad timezone", func(c *Config) { c.Progress.Timezone = "Mars/Olympus" }, true},
		{"utc timezone", func(c *Config) { c.Progress.Timezone = "UTC" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := Config{Progress: ProgressConfig{Timezone: "UTC"}}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Progress.Timezone = "Mars/Olympus"
	assert.Equal(t, time.Local, cfg.Location())
}

func TestWriteDefaultAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")

	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false), "existing file must not be overwritten")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "trellis.progress.updated", cfg.Analytics.Subject)

	custom := "[server]\nport = 9001\n\n[storage]\nbackend = \"memory\"\n"
	require.NoError(t, os.WriteFile(path, []byte(custom), DefaultFilePermissions))

	cfg, err = LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, 256, cfg.Server.ClientQueueSize, "defaults fill missing keys")
}

func TestConfigWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, WriteDefault(path, false))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.debouncePeriod = 10 * time.Millisecond

	reloaded := make(chan *Config, 1)
	cw.OnReload(func(cfg *Config) error {
		reloaded <- cfg
		return nil
	})
	cw.Start()
	defer cw.Stop()

	custom := "[server]\nport = 9002\nops_per_second = 5.0\nops_burst = 5\n"
	require.NoError(t, os.WriteFile(path, []byte(custom), DefaultFilePermissions))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9002, cfg.Server.Port)
		assert.Equal(t, 5.0, cfg.Server.OpsPerSecond)
	case <-time.After(3 * time.Second):
		t.Fatal("config reload not observed")
	}
}
