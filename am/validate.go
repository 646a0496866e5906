package am

import (
	"time"

	"github.com/teranos/trellis/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be within 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxClients < 0 {
		return errors.Newf("server.max_clients must be >= 0, got %d", c.Server.MaxClients)
	}
	if c.Server.ClientQueueSize <= 0 {
		return errors.Newf("server.client_queue_size must be > 0, got %d", c.Server.ClientQueueSize)
	}
	if c.Server.OpsPerSecond < 0 {
		return errors.Newf("server.ops_per_second must be >= 0, got %f", c.Server.OpsPerSecond)
	}
	if c.Server.OpsPerSecond > 0 && c.Server.OpsBurst <= 0 {
		return errors.Newf("server.ops_burst must be > 0 when ops_per_second is set, got %d", c.Server.OpsBurst)
	}

	switch c.Storage.Backend {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path cannot be empty for the sqlite backend")
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return errors.WithHint(errors.New("storage.s3.bucket cannot be empty for the s3 backend"),
				"set TRELLIS_S3_BUCKET or storage.s3.bucket in am.toml")
		}
	case StorageMemory:
	default:
		return errors.Newf("storage.backend must be one of sqlite, s3, memory; got %q", c.Storage.Backend)
	}
	if c.Storage.PersistRetries < 0 {
		return errors.Newf("storage.persist_retries must be >= 0, got %d", c.Storage.PersistRetries)
	}

	switch c.Analytics.Backend {
	case AnalyticsNone, "":
	case AnalyticsSQLite:
		if c.Storage.Backend != StorageSQLite {
			return errors.New("analytics.backend sqlite requires storage.backend sqlite")
		}
	case AnalyticsNATS:
		if c.Analytics.NATSURL == "" {
			return errors.New("analytics.nats_url cannot be empty for the nats backend")
		}
	default:
		return errors.Newf("analytics.backend must be one of none, sqlite, nats; got %q", c.Analytics.Backend)
	}

	switch c.Progress.Timezone {
	case "", "Local", "UTC":
	default:
		if _, err := time.LoadLocation(c.Progress.Timezone); err != nil {
			return errors.Wrapf(err, "progress.timezone %q is not a valid IANA zone", c.Progress.Timezone)
		}
	}

	return nil
}
