package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.max_clients", 1000)
	v.SetDefault("server.client_queue_size", 256)
	v.SetDefault("server.max_message_bytes", 1024*1024) // whole-graph children replacements can be large
	v.SetDefault("server.pong_wait_seconds", 60)
	v.SetDefault("server.write_wait_seconds", 10)
	v.SetDefault("server.ops_per_second", 120.0) // drag frames arrive at display rate
	v.SetDefault("server.ops_burst", 240)
	v.SetDefault("server.log_json", false)

	// Storage defaults
	v.SetDefault("storage.backend", StorageSQLite)
	v.SetDefault("storage.path", "trellis.db")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "graphs/")
	v.SetDefault("storage.persist_retries", 3)

	// Analytics defaults
	v.SetDefault("analytics.backend", AnalyticsSQLite)
	v.SetDefault("analytics.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("analytics.subject", "trellis.progress.updated")
	v.SetDefault("analytics.queue_size", 1024)

	// Progress defaults
	v.SetDefault("progress.timezone", "Local")
}

// BindSensitiveEnvVars explicitly binds configuration that is commonly injected by deployments
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("storage.path", "TRELLIS_STORAGE_PATH")
	v.BindEnv("storage.s3.bucket", "TRELLIS_S3_BUCKET")
	v.BindEnv("storage.s3.endpoint", "TRELLIS_S3_ENDPOINT")
	v.BindEnv("analytics.nats_url", "TRELLIS_NATS_URL")
}

// PongWait returns the idle timeout for a session
func (c *Config) PongWait() time.Duration {
	if c.Server.PongWaitSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Server.PongWaitSeconds) * time.Second
}

// WriteWait returns the per-frame write deadline
func (c *Config) WriteWait() time.Duration {
	if c.Server.WriteWaitSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.WriteWaitSeconds) * time.Second
}

// Location resolves progress.timezone, falling back to the local zone
func (c *Config) Location() *time.Location {
	switch c.Progress.Timezone {
	case "", "Local":
		return time.Local
	case "UTC":
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Progress.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetServerAllowedOrigins returns the allowed WebSocket/CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Port: %d}, Storage: {Backend: %s}, Analytics: {Backend: %s}}",
		c.Server.Port, c.Storage.Backend, c.Analytics.Backend)
}
