package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/teranos/trellis/errors"
)

// DefaultConfig returns the configuration produced by SetDefaults alone
func DefaultConfig() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	return LoadWithViper(v)
}

// WriteDefault writes a fully-populated default am.toml to path.
// Existing files are left untouched unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.WithHint(errors.Newf("config file %s already exists", path),
			"pass --force to overwrite it")
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal default config")
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}

	header := []byte("# trellis configuration\n")
	if err := os.WriteFile(path, append(header, data...), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
