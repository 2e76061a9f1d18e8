// Package config loads and validates adbfsm's on-disk configuration:
// page size, cache capacity, mount defaults and the adb binary/serial to
// use. Grounded on the teacher's own config package (later split out as
// the external github.com/sahib/config module): a DefaultMapping of
// DefaultEntry values backs a YAML file, with unknown keys and type
// mismatches rejected at load time rather than silently ignored.
package config

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sahib/config"
)

// Defaults is adbfsm's validation/default spec, mirroring the shape of the
// teacher's own config.Defaults mapping.
var Defaults = config.DefaultMapping{
	"cache": config.DefaultMapping{
		"page_size_kib": config.DefaultEntry{
			Default:      64,
			NeedsRestart: true,
			Docs:         "Page size of the block cache, in KiB. Must be a power of two, minimum 64.",
			Validator:    validatePowerOfTwoKiB,
		},
		"max_pages": config.DefaultEntry{
			Default:      1024,
			NeedsRestart: false,
			Docs:         "Maximum number of resident pages before LRU eviction kicks in.",
		},
	},
	"mount": config.DefaultMapping{
		"read_only": config.DefaultEntry{
			Default:      false,
			NeedsRestart: true,
			Docs:         "Mount the device tree read-only.",
		},
		"root": config.DefaultEntry{
			Default:      "/sdcard",
			NeedsRestart: true,
			Docs:         "Device-side path to expose as the mount's root.",
		},
	},
	"adb": config.DefaultMapping{
		"path": config.DefaultEntry{
			Default:      "adb",
			NeedsRestart: true,
			Docs:         "Path to the adb binary.",
		},
		"serial": config.DefaultEntry{
			Default:      "",
			NeedsRestart: true,
			Docs:         "Device serial to use; left empty, adbfsm picks the sole attached device.",
		},
	},
	"log": config.DefaultMapping{
		"level": config.DefaultEntry{
			Default:      "info",
			NeedsRestart: false,
			Docs:         "One of debug, info, warning, error.",
			Validator:    validateLogLevel,
		},
	},
}

func validatePowerOfTwoKiB(val interface{}) error {
	n, ok := val.(int)
	if !ok {
		if n64, ok64 := val.(int64); ok64 {
			n = int(n64)
		} else {
			return errors.New("page_size_kib must be an integer")
		}
	}
	if n < 64 {
		return errors.New("page_size_kib must be at least 64")
	}
	if n&(n-1) != 0 {
		return errors.New("page_size_kib must be a power of two")
	}
	return nil
}

func validateLogLevel(val interface{}) error {
	s, ok := val.(string)
	if !ok {
		return errors.New("log.level must be a string")
	}
	switch s {
	case "debug", "info", "warning", "error":
		return nil
	default:
		return errors.Errorf("unknown log level %q", s)
	}
}

// DefaultPath returns ~/.config/adbfsm/config.yml, creating the containing
// directory if needed.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "config: resolve home directory")
	}

	dir := filepath.Join(home, ".config", "adbfsm")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", errors.Wrap(err, "config: create config directory")
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Load reads path if it exists, or returns a fresh config seeded with
// Defaults otherwise (the caller is expected to Save it once mount options
// are known).
func Load(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Open(nil, Defaults, config.StrictnessPanic)
	}

	cfg, err := config.FromYamlFile(path, Defaults, config.StrictnessPanic)
	if err != nil {
		return nil, errors.Wrap(err, "config: load")
	}
	return cfg, nil
}

// Save persists cfg as YAML at path.
func Save(path string, cfg *config.Config) error {
	return errors.Wrap(config.ToYamlFile(path, cfg), "config: save")
}

// PageSizeBytes reads cache.page_size_kib as bytes.
func PageSizeBytes(cfg *config.Config) int {
	return int(cfg.Int("cache.page_size_kib")) * 1024
}

// MaxPages reads cache.max_pages.
func MaxPages(cfg *config.Config) int {
	return int(cfg.Int("cache.max_pages"))
}
