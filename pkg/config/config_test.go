package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
	"github.com/glorpus-work/extly/pkg/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Settings.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Settings.HTTPTimeout)
	assert.Equal(t, DefaultMaxConcurrent, cfg.Settings.MaxConcurrent)
	assert.Equal(t, DefaultProjectPatterns, cfg.Settings.ProjectPatterns)
	assert.Equal(t, runtime.GOOS, cfg.Host.Runtime.OS)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := `extensions:
  - package: Acme.Greeter
    version: "[1.0,2.0)"
  - package: Acme.Preview
    prerelease: true
local_extensions:
  - folder: ext/hello
    watch: full
sources:
  - name: main
    url: https://example.com/index.json
    priority: 10
  - name: mirror
    url: /srv/mirror/index.json
    enabled: false
host:
  entry_point_tag: plugin
  runtime:
    os: linux
    arch: arm64
  supplied_libraries:
    Acme.Core: 2.0.0
settings:
  log_level: debug
  http_timeout: 5s
  index_ttl: 10m`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), fsutil.FileModeDefault))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []model.ExtensionSpec{
		{PackageID: "Acme.Greeter", VersionRange: "[1.0,2.0)"},
		{PackageID: "Acme.Preview", AllowPrerelease: true},
	}, cfg.ExtensionSpecs())
	assert.Equal(t, []model.LocalExtensionSpec{{Folder: "ext/hello", Watch: model.WatchFull}}, cfg.LocalSpecs())

	require.Len(t, cfg.Sources, 2)
	assert.True(t, cfg.Sources[0].IsEnabled())
	assert.False(t, cfg.Sources[1].IsEnabled())

	host := cfg.HostContext()
	assert.Equal(t, "plugin", host.EntryPointTag)
	assert.Equal(t, "linux/arm64", host.Runtime.String())
	assert.True(t, host.IsSupplied("acme.core"))

	assert.Equal(t, "debug", cfg.Settings.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Settings.HTTPTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Settings.IndexTTL)
	assert.Equal(t, DefaultLockTimeout, cfg.Settings.LockTimeout)
	assert.Equal(t, DefaultBuildCommand, cfg.Settings.BuildCommand)
}

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, errors.ErrEmptyConfigPath)
}

func TestLoadConfigFromReader_ParseError(t *testing.T) {
	_, err := LoadConfigFromReader(strings.NewReader("extensions: [unterminated"))
	assert.ErrorIs(t, err, errors.ErrConfigParse)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			modify: func(c *Config) {},
		},
		{
			name:    "empty package id",
			modify:  func(c *Config) { c.Extensions = []ExtensionConfig{{Package: " "}} },
			wantErr: errors.ErrMissingPackageID,
		},
		{
			name:    "malformed range",
			modify:  func(c *Config) { c.Extensions = []ExtensionConfig{{Package: "A", Version: "[1.0"}} },
			wantErr: errors.ErrInvalidVersionRange,
		},
		{
			name: "duplicate package id",
			modify: func(c *Config) {
				c.Extensions = []ExtensionConfig{{Package: "Acme.Core", Version: "[1.0,2.0)"}, {Package: "acme.core", Version: "[1.5,)"}}
			},
			wantErr: errors.ErrDuplicatePackage,
		},
		{
			name:    "unknown watch mode",
			modify:  func(c *Config) { c.LocalExtensions = []LocalExtensionConfig{{Folder: "x", Watch: "sometimes"}} },
			wantErr: errors.ErrInvalidWatchMode,
		},
		{
			name:    "empty source name",
			modify:  func(c *Config) { c.Sources = []*SourceConfig{{URL: "http://x"}} },
			wantErr: errors.ErrSourceNameEmpty,
		},
		{
			name:    "empty source url",
			modify:  func(c *Config) { c.Sources = []*SourceConfig{{Name: "a"}} },
			wantErr: errors.ErrSourceURLEmpty,
		},
		{
			name: "duplicate source",
			modify: func(c *Config) {
				c.Sources = []*SourceConfig{{Name: "a", URL: "http://x"}, {Name: "A", URL: "http://y"}}
			},
			wantErr: errors.ErrSourceExists,
		},
		{
			name: "unknown auth type",
			modify: func(c *Config) {
				c.Sources = []*SourceConfig{{Name: "a", URL: "http://x", Auth: &AuthConfig{Type: "digest"}}}
			},
			wantErr: errors.ErrInvalidAuth,
		},
		{
			name:    "negative duration",
			modify:  func(c *Config) { c.Settings.LockTimeout = -time.Second },
			wantErr: errors.ErrNegativeDuration,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Settings.LogLevel = "verbose" },
			wantErr: errors.ErrInvalidLogLevel,
		},
		{
			name:    "invalid output format",
			modify:  func(c *Config) { c.Settings.OutputFormat = "xml" },
			wantErr: errors.ErrInvalidOutput,
		},
		{
			name:    "zero concurrency",
			modify:  func(c *Config) { c.Settings.MaxConcurrent = 0 },
			wantErr: errors.ErrInvalidSetting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.wantErr.Error())
			_, ok := errors.AsExtensionError(err)
			assert.True(t, ok)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extensions = []ExtensionConfig{{Package: ""}}
	cfg.Settings.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.ErrMissingPackageID.Error())
	assert.Contains(t, err.Error(), errors.ErrInvalidLogLevel.Error())
}

func TestSaveConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.LogLevel = "debug"
	cfg.Extensions = append(cfg.Extensions, ExtensionConfig{Package: "Acme.Greeter", Version: "1.0"})
	require.NoError(t, cfg.AddSource("main", "https://example.com/index.json", 5))

	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.SaveConfig(configPath))

	entries, err := os.ReadDir(filepath.Dir(configPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Settings, loaded.Settings)
	assert.Equal(t, cfg.Extensions, loaded.Extensions)
	require.Len(t, loaded.Sources, 1)
	assert.Equal(t, "main", loaded.Sources[0].Name)
	assert.Equal(t, uint(5), loaded.Sources[0].Priority)
}

func TestToYAML(t *testing.T) {
	data, err := DefaultConfig().ToYAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "http_timeout: 30s")
	assert.Contains(t, string(data), "log_level: info")
}

func TestHostEnvironment(t *testing.T) {
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Host.RootDir = root
	env, err := cfg.HostEnvironment()
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(root), env.RootDir)
	assert.Equal(t, filepath.Join(root, DefaultExtensionsDirName), env.ExtensionsDir)

	cfg.Host.ExtensionsDir = "relative/ext"
	_, err = cfg.HostEnvironment()
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
}

func TestEnabledSources(t *testing.T) {
	off := false
	cfg := DefaultConfig()
	cfg.Sources = []*SourceConfig{
		{Name: "low", URL: "u", Priority: 1},
		{Name: "disabled", URL: "u", Priority: 100, Enabled: &off},
		{Name: "high-a", URL: "u", Priority: 10},
		{Name: "high-b", URL: "u", Priority: 10},
	}

	var names []string
	for _, s := range cfg.EnabledSources() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"high-a", "high-b", "low"}, names)
}

func TestSourceManagement(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.AddSource("main", "https://example.com", 0))
	assert.ErrorIs(t, cfg.AddSource("MAIN", "https://other", 0), errors.ErrSourceExists)
	assert.NotNil(t, cfg.GetSource("Main"))
	assert.True(t, cfg.RemoveSource("main"))
	assert.False(t, cfg.RemoveSource("main"))
	assert.Nil(t, cfg.GetSource("main"))
}

func TestSetAndGetValue(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.SetValue("settings.log_level", "WARN"))
	got, err := cfg.GetValue("settings.log_level")
	require.NoError(t, err)
	assert.Equal(t, "warn", got)

	require.NoError(t, cfg.SetValue("settings.index_ttl", "2h"))
	assert.Equal(t, 2*time.Hour, cfg.Settings.IndexTTL)

	require.NoError(t, cfg.SetValue("host.runtime", "windows/amd64"))
	assert.Equal(t, "windows", cfg.Host.Runtime.OS)

	require.NoError(t, cfg.SetValue("settings.max_concurrent", "8"))
	assert.Equal(t, "8", cfg.ToMap()["settings.max_concurrent"])

	assert.ErrorIs(t, cfg.SetValue("settings.log_level", "chatty"), errors.ErrInvalidLogLevel)
	assert.ErrorIs(t, cfg.SetValue("settings.lock_timeout", "soon"), errors.ErrInvalidSetting)
	assert.ErrorIs(t, cfg.SetValue("settings.lock_timeout", "-1s"), errors.ErrNegativeDuration)
	assert.ErrorIs(t, cfg.SetValue("nope", "x"), errors.ErrUnknownConfigKey)
	_, err = cfg.GetValue("nope")
	assert.ErrorIs(t, err, errors.ErrUnknownConfigKey)

	assert.Contains(t, Keys(), "host.entry_point_tag")
}
