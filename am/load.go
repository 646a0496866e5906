package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/trellis/errors"
)

var (
	globalConfig  *Config
	viperInstance *viper.Viper
	loadMu        sync.Mutex
)

// Load reads the trellis configuration using Viper
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Defaults apply, environment variables do not
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults.
// Caller holds loadMu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("TRELLIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// FindProjectConfig searches for am.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func FindProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// ConfigPaths lists config files in precedence order (lowest first)
func ConfigPaths() []string {
	paths := []string{"/etc/trellis/am.toml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".trellis", "am.toml"))
	}
	if projectConfig := FindProjectConfig(); projectConfig != "" {
		paths = append(paths, projectConfig)
	}
	return paths
}

// mergeConfigFiles merges configuration files in precedence order
// Precedence (lowest to highest): system < user < project < env vars
func mergeConfigFiles(v *viper.Viper) {
	for _, configPath := range ConfigPaths() {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
				continue
			}
		}
	}
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}
