// Package config loads barreld's startup configuration: the set of
// stores declared up front, per spec.md §6 "Stores are declared at
// startup as [(name, config_map), ...]".
//
// Grounded on the wider example pack's viper usage: Load accepts any
// format viper itself understands (YAML, JSON, TOML, ...) rather than
// Barrel rolling its own parser.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/azmodb/barrel/barrelerr"
)

// StoreConfig is one declared store: a name, the directory its boltdb
// file lives in, and the open timeout passed to bolt.Options.
type StoreConfig struct {
	Name    string        `mapstructure:"name"`
	DataDir string        `mapstructure:"data_dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config is barreld's fully decoded startup configuration.
type Config struct {
	Stores []StoreConfig `mapstructure:"stores"`
}

const defaultTimeout = time.Second

// Load reads and decodes the configuration file at path. The file
// format is inferred from its extension by viper (".yaml", ".json",
// ".toml", ...). Stores with no explicit timeout default to one second,
// matching the teacher's boltdb open timeout convention.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, barrelerr.Wrap(err, "reading config file "+path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, barrelerr.Wrap(err, "decoding config file "+path)
	}

	for i := range cfg.Stores {
		if cfg.Stores[i].Name == "" {
			return nil, barrelerr.BadDocf("store at index %d is missing a name", i)
		}
		if cfg.Stores[i].DataDir == "" {
			return nil, barrelerr.BadDocf("store %q is missing a data_dir", cfg.Stores[i].Name)
		}
		if cfg.Stores[i].Timeout == 0 {
			cfg.Stores[i].Timeout = defaultTimeout
		}
	}

	return &cfg, nil
}
