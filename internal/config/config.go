// Package config loads the isak configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultPath is read when no path is given and ISAK_CONFIG is unset.
	DefaultPath = "/etc/isak.toml"
	// EnvPath names the environment variable overriding DefaultPath.
	EnvPath = "ISAK_CONFIG"
)

// Config holds the isak configuration.
type Config struct {
	SysDir    string `toml:"sys_dir"`
	DevDir    string `toml:"dev_dir"`
	CacheFile string `toml:"cache_file"` // optional: where token caches snapshot their scan
	Verbose   bool   `toml:"verbose"`
	Wait      string `toml:"wait"` // duration string, e.g. "5s"
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SysDir: "/sys",
		DevDir: "/dev",
		Wait:   "0s",
	}
}

// WaitDuration parses Wait.
func (c Config) WaitDuration() (time.Duration, error) {
	if c.Wait == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Wait)
	if err != nil {
		return 0, fmt.Errorf("parse wait; value: %q, error: %w", c.Wait, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("wait must be non-negative; value: %q", c.Wait)
	}
	return d, nil
}

// Load reads the configuration at path. An empty path selects ISAK_CONFIG or
// DefaultPath; a missing file at the selected default location yields the
// default configuration. A missing file named explicitly is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPath)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("load config; path: %s, error: %w", path, err)
	}

	if _, err := cfg.WaitDuration(); err != nil {
		return Default(), fmt.Errorf("load config; path: %s, error: %w", path, err)
	}
	return cfg, nil
}
