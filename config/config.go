// Package config holds the boot-time configuration of the kernel.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const pageSize = 4096

// Config is decoded from a TOML file on top of Default.
type Config struct {
	LogLevel string `toml:"log_level"`

	// Frames is the number of physical page frames available to tasks.
	Frames int `toml:"frames"`

	// MemoryCeiling is the first address no mapping may reach.
	MemoryCeiling uint64 `toml:"memory_ceiling"`

	// ClockFreq is the rate of the tick counter, in Hz.
	ClockFreq uint64 `toml:"clock_freq"`

	ImageBase  uint64 `toml:"image_base"`
	ImagePages int    `toml:"image_pages"`
	StackPages int    `toml:"stack_pages"`

	// CacheSize is the number of parsed scripts the loader keeps.
	CacheSize int `toml:"cache_size"`
}

func Default() Config {
	return Config{
		LogLevel:      "info",
		Frames:        4096,
		MemoryCeiling: 0x88000000,
		ClockFreq:     12_500_000,
		ImageBase:     0x10000,
		ImagePages:    4,
		StackPages:    2,
		CacheSize:     64,
	}
}

// Load reads the TOML file at path. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decoding config %s", path)
	}

	if undec := md.Undecoded(); len(undec) > 0 {
		return Config{}, errors.Errorf("unknown config key %q in %s", undec[0].String(), path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "validating config %s", path)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Frames <= 0:
		return errors.New("frames must be positive")
	case c.ClockFreq < 1_000_000:
		return errors.New("clock_freq must be at least 1MHz")
	case c.MemoryCeiling%pageSize != 0:
		return errors.Errorf("memory_ceiling %#x is not page aligned", c.MemoryCeiling)
	case c.ImageBase%pageSize != 0:
		return errors.Errorf("image_base %#x is not page aligned", c.ImageBase)
	case c.ImagePages <= 0 || c.StackPages <= 0:
		return errors.New("image_pages and stack_pages must be positive")
	case c.CacheSize <= 0:
		return errors.New("cache_size must be positive")
	case uint64(c.ImagePages) > c.MemoryCeiling/pageSize || uint64(c.StackPages) > c.MemoryCeiling/pageSize:
		return errors.Errorf("image_pages and stack_pages must fit under memory_ceiling %#x", c.MemoryCeiling)
	}

	top := c.ImageBase/pageSize + uint64(c.ImagePages) + 1 + uint64(c.StackPages)
	if top > c.MemoryCeiling/pageSize {
		return errors.Errorf("image and stack end at page %#x, above memory_ceiling %#x", top, c.MemoryCeiling)
	}

	return nil
}
