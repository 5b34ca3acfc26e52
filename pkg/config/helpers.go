package config

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/platform"
)

type accessor struct {
	get func(c *Config) string
	set func(c *Config, value string) error
}

var accessors = map[string]accessor{
	"host.root_dir": {
		get: func(c *Config) string { return c.Host.RootDir },
		set: func(c *Config, v string) error { c.Host.RootDir = v; return nil },
	},
	"host.extensions_dir": {
		get: func(c *Config) string { return c.Host.ExtensionsDir },
		set: func(c *Config, v string) error { c.Host.ExtensionsDir = v; return nil },
	},
	"host.entry_point_tag": {
		get: func(c *Config) string { return c.Host.EntryPointTag },
		set: func(c *Config, v string) error { c.Host.EntryPointTag = v; return nil },
	},
	"host.runtime": {
		get: func(c *Config) string { return c.Host.Runtime.String() },
		set: func(c *Config, v string) error {
			p, err := platform.Parse(v)
			if err != nil {
				return err
			}
			c.Host.Runtime = p
			return nil
		},
	},
	"settings.http_timeout":       durationAccessor(func(c *Config) *time.Duration { return &c.Settings.HTTPTimeout }),
	"settings.lock_timeout":       durationAccessor(func(c *Config) *time.Duration { return &c.Settings.LockTimeout }),
	"settings.lock_poll_interval": durationAccessor(func(c *Config) *time.Duration { return &c.Settings.LockPollInterval }),
	"settings.index_ttl":          durationAccessor(func(c *Config) *time.Duration { return &c.Settings.IndexTTL }),
	"settings.max_concurrent":     intAccessor(func(c *Config) *int { return &c.Settings.MaxConcurrent }),
	"settings.source_cache_size":  intAccessor(func(c *Config) *int { return &c.Settings.SourceCacheSize }),
	"settings.log_level": {
		get: func(c *Config) string { return c.Settings.LogLevel },
		set: func(c *Config, v string) error {
			if !validLogLevels[strings.ToLower(v)] {
				return errors.ErrInvalidLogLevelWithDetails(v)
			}
			c.Settings.LogLevel = strings.ToLower(v)
			return nil
		},
	},
	"settings.output_format": {
		get: func(c *Config) string { return c.Settings.OutputFormat },
		set: func(c *Config, v string) error {
			if !validOutputFormats[strings.ToLower(v)] {
				return errors.ErrInvalidOutputWithDetails(v)
			}
			c.Settings.OutputFormat = strings.ToLower(v)
			return nil
		},
	},
	"settings.build_command": {
		get: func(c *Config) string { return c.Settings.BuildCommand },
		set: func(c *Config, v string) error { c.Settings.BuildCommand = v; return nil },
	},
	"settings.cache_dir": {
		get: func(c *Config) string { return c.Settings.CacheDir },
		set: func(c *Config, v string) error { c.Settings.CacheDir = v; return nil },
	},
}

func durationAccessor(field func(c *Config) *time.Duration) accessor {
	return accessor{
		get: func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return errors.Wrapf(errors.ErrInvalidSetting, "invalid duration %q", v)
			}
			if d < 0 {
				return errors.ErrNegativeDuration
			}
			*field(c) = d
			return nil
		},
	}
}

func intAccessor(field func(c *Config) *int) accessor {
	return accessor{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrapf(errors.ErrInvalidSetting, "invalid integer %q", v)
			}
			*field(c) = n
			return nil
		},
	}
}

// SetValue sets a scalar configuration value by its dotted key, for example
// "settings.log_level" or "host.entry_point_tag".
func (c *Config) SetValue(key, value string) error {
	a, ok := accessors[strings.ToLower(key)]
	if !ok {
		return errors.Wrapf(errors.ErrUnknownConfigKey, "%s", key)
	}
	return a.set(c, value)
}

// GetValue returns a scalar configuration value by its dotted key.
func (c *Config) GetValue(key string) (string, error) {
	a, ok := accessors[strings.ToLower(key)]
	if !ok {
		return "", errors.Wrapf(errors.ErrUnknownConfigKey, "%s", key)
	}
	return a.get(c), nil
}

// Keys lists the keys understood by GetValue and SetValue.
func Keys() []string {
	keys := make([]string, 0, len(accessors))
	for k := range accessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToMap flattens every scalar key to its string value for display.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string, len(accessors))
	for k, a := range accessors {
		result[k] = a.get(c)
	}
	return result
}
