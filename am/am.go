package am

// Config represents the trellis configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" toml:"server" yaml:"server" json:"server"`
	Storage   StorageConfig   `mapstructure:"storage" toml:"storage" yaml:"storage" json:"storage"`
	Analytics AnalyticsConfig `mapstructure:"analytics" toml:"analytics" yaml:"analytics" json:"analytics"`
	Progress  ProgressConfig  `mapstructure:"progress" toml:"progress" yaml:"progress" json:"progress"`
}

// ServerConfig configures the WebSocket sync server
type ServerConfig struct {
	Port             int      `mapstructure:"port" toml:"port" yaml:"port" json:"port"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	MaxClients       int      `mapstructure:"max_clients" toml:"max_clients" yaml:"max_clients" json:"max_clients"`
	ClientQueueSize  int      `mapstructure:"client_queue_size" toml:"client_queue_size" yaml:"client_queue_size" json:"client_queue_size"` // per-session outbox depth
	MaxMessageBytes  int64    `mapstructure:"max_message_bytes" toml:"max_message_bytes" yaml:"max_message_bytes" json:"max_message_bytes"`
	PongWaitSeconds  int      `mapstructure:"pong_wait_seconds" toml:"pong_wait_seconds" yaml:"pong_wait_seconds" json:"pong_wait_seconds"` // idle sessions are torn down after this
	WriteWaitSeconds int      `mapstructure:"write_wait_seconds" toml:"write_wait_seconds" yaml:"write_wait_seconds" json:"write_wait_seconds"`
	OpsPerSecond     float64  `mapstructure:"ops_per_second" toml:"ops_per_second" yaml:"ops_per_second" json:"ops_per_second"` // 0 = unlimited
	OpsBurst         int      `mapstructure:"ops_burst" toml:"ops_burst" yaml:"ops_burst" json:"ops_burst"`
	LogJSON          bool     `mapstructure:"log_json" toml:"log_json" yaml:"log_json" json:"log_json"`
}

// StorageConfig selects and configures the graph blob store
type StorageConfig struct {
	Backend        string   `mapstructure:"backend" toml:"backend" yaml:"backend" json:"backend"` // sqlite, s3, memory
	Path           string   `mapstructure:"path" toml:"path" yaml:"path" json:"path"`             // sqlite database file
	S3             S3Config `mapstructure:"s3" toml:"s3" yaml:"s3" json:"s3"`
	PersistRetries int      `mapstructure:"persist_retries" toml:"persist_retries" yaml:"persist_retries" json:"persist_retries"`
}

// S3Config configures the S3 storage backend
type S3Config struct {
	Bucket   string `mapstructure:"bucket" toml:"bucket" yaml:"bucket" json:"bucket"`
	Region   string `mapstructure:"region" toml:"region" yaml:"region" json:"region"`
	Prefix   string `mapstructure:"prefix" toml:"prefix" yaml:"prefix" json:"prefix"`
	Endpoint string `mapstructure:"endpoint" toml:"endpoint" yaml:"endpoint" json:"endpoint"` // MinIO / localstack
}

// AnalyticsConfig selects the progress event sink
type AnalyticsConfig struct {
	Backend   string `mapstructure:"backend" toml:"backend" yaml:"backend" json:"backend"` // none, sqlite, nats
	NATSURL   string `mapstructure:"nats_url" toml:"nats_url" yaml:"nats_url" json:"nats_url"`
	Subject   string `mapstructure:"subject" toml:"subject" yaml:"subject" json:"subject"`
	QueueSize int    `mapstructure:"queue_size" toml:"queue_size" yaml:"queue_size" json:"queue_size"`
}

// ProgressConfig configures progress reset evaluation
type ProgressConfig struct {
	Timezone string `mapstructure:"timezone" toml:"timezone" yaml:"timezone" json:"timezone"` // IANA name, "Local" or "UTC"
}

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// Analytics backends
const (
	AnalyticsNone   = "none"
	AnalyticsSQLite = "sqlite"
	AnalyticsNATS   = "nats"
)

// Server port constants
const (
	DefaultServerPort = 8787
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
