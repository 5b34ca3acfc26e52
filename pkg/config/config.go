// Package config loads and validates the extly configuration document: the
// extensions to install, the package sources to query, the host description
// and general settings.
package config

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/extly/pkg/auth"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/fsutil"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/platform"
)

// Config represents the application configuration.
type Config struct {
	Extensions      []ExtensionConfig      `yaml:"extensions"`
	LocalExtensions []LocalExtensionConfig `yaml:"local_extensions"`
	Sources         []*SourceConfig        `yaml:"sources"`
	Host            HostConfig             `yaml:"host"`
	Settings        Settings               `yaml:"settings"`
}

// ExtensionConfig requests one registry extension.
type ExtensionConfig struct {
	Package    string `yaml:"package"`
	Version    string `yaml:"version,omitempty"`
	Prerelease bool   `yaml:"prerelease,omitempty"`
}

// LocalExtensionConfig requests one extension built from a local project.
type LocalExtensionConfig struct {
	Folder string `yaml:"folder"`
	Watch  string `yaml:"watch,omitempty"`
}

// SourceConfig represents a single package source.
type SourceConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Priority uint   `yaml:"priority"`
	// Auth is sent to the host of URL only.
	Auth *AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig holds source credentials. Values may reference environment
// variables as $NAME or ${NAME}.
type AuthConfig struct {
	Type     string            `yaml:"type"` // basic, bearer, header
	Username string            `yaml:"username,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Token    string            `yaml:"token,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// Settings converts the configured credentials.
func (a *AuthConfig) Settings() auth.Settings {
	return auth.Settings{
		Type:     a.Type,
		Username: a.Username,
		Password: a.Password,
		Token:    a.Token,
		Headers:  a.Headers,
	}
}

// IsEnabled reports whether the source is enabled. Sources are enabled unless
// explicitly switched off.
func (s *SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// HostConfig describes the application consuming the extensions.
type HostConfig struct {
	// RootDir defaults to the working directory.
	RootDir string `yaml:"root_dir,omitempty"`
	// ExtensionsDir defaults to <root_dir>/extensions.
	ExtensionsDir     string            `yaml:"extensions_dir,omitempty"`
	EntryPointTag     string            `yaml:"entry_point_tag,omitempty"`
	Runtime           platform.Platform `yaml:"runtime,omitempty"`
	SuppliedLibraries map[string]string `yaml:"supplied_libraries,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// Network settings
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`

	// Dependency cache lock
	LockTimeout      time.Duration `yaml:"lock_timeout"`
	LockPollInterval time.Duration `yaml:"lock_poll_interval"`

	// Output settings
	LogLevel     string `yaml:"log_level"`     // debug, info, warn, error
	OutputFormat string `yaml:"output_format"` // text, json

	// Local builds
	BuildCommand    string   `yaml:"build_command"`
	ProjectPatterns []string `yaml:"project_patterns"`

	// Registry sources
	CacheDir        string        `yaml:"cache_dir,omitempty"`
	SourceCacheSize int           `yaml:"source_cache_size"`
	IndexTTL        time.Duration `yaml:"index_ttl"`
}

// Default configuration values.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxConcurrent is the default number of parallel downloads.
	DefaultMaxConcurrent = 4

	// DefaultLockTimeout bounds the wait for the dependency cache lock.
	DefaultLockTimeout = 30 * time.Second

	// DefaultLockPollInterval is the retry interval for the cache lock.
	DefaultLockPollInterval = 100 * time.Millisecond

	// DefaultBuildCommand builds a Go plugin into the output directory.
	DefaultBuildCommand = "go build -buildmode=plugin -o $OUTPUT_DIR/$ASSEMBLY_NAME.so ."

	// DefaultSourceCacheSize is the number of memoized registry queries.
	DefaultSourceCacheSize = 512

	// DefaultIndexTTL is the age after which a remote index is re-fetched.
	DefaultIndexTTL = time.Hour

	// DefaultExtensionsDirName is the extensions folder under the host root.
	DefaultExtensionsDirName = "extensions"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultProjectPatterns are the glob patterns recognizing local project files.
var DefaultProjectPatterns = []string{"extension.yaml", "extension.yml", "*.extproj"}

var (
	validLogLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validOutputFormats = map[string]bool{"text": true, "json": true}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Extensions:      []ExtensionConfig{},
		LocalExtensions: []LocalExtensionConfig{},
		Sources:         []*SourceConfig{},
		Host: HostConfig{
			Runtime: platform.Current(),
		},
		Settings: Settings{
			HTTPTimeout:      DefaultHTTPTimeout,
			MaxConcurrent:    DefaultMaxConcurrent,
			LockTimeout:      DefaultLockTimeout,
			LockPollInterval: DefaultLockPollInterval,
			LogLevel:         "info",
			OutputFormat:     "text",
			BuildCommand:     DefaultBuildCommand,
			ProjectPatterns:  append([]string(nil), DefaultProjectPatterns...),
			SourceCacheSize:  DefaultSourceCacheSize,
			IndexTTL:         DefaultIndexTTL,
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the
// default configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig writes the configuration to path through a temporary file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	file, err := os.CreateTemp(filepath.Dir(absPath), filepath.Base(absPath)+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	tempPath := file.Name()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	_ = encoder.Close()
	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	if err := os.Chmod(tempPath, fsutil.FileModeDefault); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileRename, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return data, nil
}

// Validate checks the whole document and reports every problem found.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}

	var result *multierror.Error
	requested := make(map[string]bool)
	for _, spec := range c.ExtensionSpecs() {
		if err := spec.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		if spec.PackageID == "" {
			continue
		}
		key := strings.ToLower(spec.PackageID)
		if requested[key] {
			result = multierror.Append(result, errors.Wrapf(errors.ErrDuplicatePackage, "extension %s", spec.PackageID))
		}
		requested[key] = true
	}
	for i, local := range c.LocalExtensions {
		if err := localSpec(local).Validate(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "local_extensions[%d]", i))
		}
	}
	if err := validateSources(c.Sources); err != nil {
		result = multierror.Append(result, err)
	}
	if err := validateSettings(c.Settings); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return errors.Fail("configure", "", errors.Wrap(errors.ErrConfigValidation, err.Error()))
	}
	return nil
}

func validateSources(sources []*SourceConfig) error {
	var result *multierror.Error
	names := make(map[string]bool)
	for i, src := range sources {
		if src == nil || strings.TrimSpace(src.Name) == "" {
			result = multierror.Append(result, errors.Wrapf(errors.ErrSourceNameEmpty, "sources[%d]", i))
			continue
		}
		if strings.TrimSpace(src.URL) == "" {
			result = multierror.Append(result, errors.Wrapf(errors.ErrSourceURLEmpty, "source %s", src.Name))
		}
		if src.Auth != nil && !auth.ValidType(src.Auth.Type) {
			result = multierror.Append(result, errors.Wrapf(errors.ErrInvalidAuth, "source %s: unknown type %q", src.Name, src.Auth.Type))
		}
		key := strings.ToLower(src.Name)
		if names[key] {
			result = multierror.Append(result, errors.Wrapf(errors.ErrSourceExists, "source %s", src.Name))
		}
		names[key] = true
	}
	return result.ErrorOrNil()
}

func validateSettings(s Settings) error {
	var result *multierror.Error
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"http_timeout", s.HTTPTimeout},
		{"lock_timeout", s.LockTimeout},
		{"lock_poll_interval", s.LockPollInterval},
		{"index_ttl", s.IndexTTL},
	}
	for _, d := range durations {
		if d.value < 0 {
			result = multierror.Append(result, errors.Wrapf(errors.ErrNegativeDuration, "%s", d.name))
		}
	}
	if s.MaxConcurrent < 1 {
		result = multierror.Append(result, errors.Wrapf(errors.ErrInvalidSetting, "max_concurrent must be at least 1, got %d", s.MaxConcurrent))
	}
	if s.SourceCacheSize < 0 {
		result = multierror.Append(result, errors.Wrapf(errors.ErrInvalidSetting, "source_cache_size cannot be negative, got %d", s.SourceCacheSize))
	}
	if !validOutputFormats[strings.ToLower(s.OutputFormat)] {
		result = multierror.Append(result, errors.ErrInvalidOutputWithDetails(s.OutputFormat))
	}
	if !validLogLevels[strings.ToLower(s.LogLevel)] {
		result = multierror.Append(result, errors.ErrInvalidLogLevelWithDetails(s.LogLevel))
	}
	return result.ErrorOrNil()
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user config directory")
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.MaxConcurrent == 0 {
		c.Settings.MaxConcurrent = defaults.Settings.MaxConcurrent
	}
	if c.Settings.LockTimeout == 0 {
		c.Settings.LockTimeout = defaults.Settings.LockTimeout
	}
	if c.Settings.LockPollInterval == 0 {
		c.Settings.LockPollInterval = defaults.Settings.LockPollInterval
	}
	if c.Settings.OutputFormat == "" {
		c.Settings.OutputFormat = defaults.Settings.OutputFormat
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	if c.Settings.BuildCommand == "" {
		c.Settings.BuildCommand = defaults.Settings.BuildCommand
	}
	if len(c.Settings.ProjectPatterns) == 0 {
		c.Settings.ProjectPatterns = defaults.Settings.ProjectPatterns
	}
	if c.Settings.SourceCacheSize == 0 {
		c.Settings.SourceCacheSize = defaults.Settings.SourceCacheSize
	}
	if c.Settings.IndexTTL == 0 {
		c.Settings.IndexTTL = defaults.Settings.IndexTTL
	}
	c.Host.Runtime = c.Host.Runtime.WithDefaults()
}

// ExtensionSpecs converts the configured registry extensions.
func (c *Config) ExtensionSpecs() []model.ExtensionSpec {
	specs := make([]model.ExtensionSpec, 0, len(c.Extensions))
	for _, ext := range c.Extensions {
		specs = append(specs, model.ExtensionSpec{
			PackageID:       strings.TrimSpace(ext.Package),
			VersionRange:    strings.TrimSpace(ext.Version),
			AllowPrerelease: ext.Prerelease,
		})
	}
	return specs
}

// LocalSpecs converts the configured local extensions. Unknown watch modes
// are rejected by Validate; here they fall back to WatchNone.
func (c *Config) LocalSpecs() []model.LocalExtensionSpec {
	specs := make([]model.LocalExtensionSpec, 0, len(c.LocalExtensions))
	for _, local := range c.LocalExtensions {
		spec := localSpec(local)
		if mode, err := model.ParseWatchMode(local.Watch); err == nil {
			spec.Watch = mode
		} else {
			spec.Watch = model.WatchNone
		}
		specs = append(specs, spec)
	}
	return specs
}

func localSpec(local LocalExtensionConfig) model.LocalExtensionSpec {
	return model.LocalExtensionSpec{
		Folder: strings.TrimSpace(local.Folder),
		Watch:  model.WatchMode(local.Watch),
	}
}

// HostContext converts the host section.
func (c *Config) HostContext() model.HostContext {
	supplied := make(map[string]string, len(c.Host.SuppliedLibraries))
	for id, v := range c.Host.SuppliedLibraries {
		supplied[id] = v
	}
	return model.HostContext{
		Runtime:           c.Host.Runtime.WithDefaults(),
		SuppliedLibraries: supplied,
		EntryPointTag:     c.Host.EntryPointTag,
	}
}

// HostEnvironment resolves the host directories. An unset root defaults to
// the working directory; configured paths must be absolute.
func (c *Config) HostEnvironment() (model.HostEnvironment, error) {
	root := c.Host.RootDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return model.HostEnvironment{}, errors.Wrap(err, "failed to determine working directory")
		}
		root = wd
	}
	extDir := c.Host.ExtensionsDir
	if extDir == "" {
		extDir = filepath.Join(root, DefaultExtensionsDirName)
	}
	return model.NewHostEnvironment(root, extDir)
}

// SourceCacheRoot returns the directory under which remote sources keep their
// downloaded indexes and archives.
func (c *Config) SourceCacheRoot() (string, error) {
	if c.Settings.CacheDir != "" {
		return c.Settings.CacheDir, nil
	}
	return fsutil.GetCacheDir()
}

// EnabledSources returns the enabled sources sorted by descending priority,
// keeping configuration order among equal priorities.
func (c *Config) EnabledSources() []*SourceConfig {
	out := make([]*SourceConfig, 0, len(c.Sources))
	for _, src := range c.Sources {
		if src != nil && src.IsEnabled() {
			out = append(out, src)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// AddSource adds a source to the configuration.
// Returns an error if a source with the same name already exists.
func (c *Config) AddSource(name, url string, priority uint) error {
	if c.GetSource(name) != nil {
		return errors.Wrapf(errors.ErrSourceExists, "source %s", name)
	}
	c.Sources = append(c.Sources, &SourceConfig{Name: name, URL: url, Priority: priority})
	return nil
}

// RemoveSource removes a source from the configuration.
func (c *Config) RemoveSource(name string) bool {
	for i, src := range c.Sources {
		if strings.EqualFold(src.Name, name) {
			c.Sources = append(c.Sources[:i], c.Sources[i+1:]...)
			return true
		}
	}
	return false
}

// GetSource gets a source configuration by name.
func (c *Config) GetSource(name string) *SourceConfig {
	for _, src := range c.Sources {
		if src != nil && strings.EqualFold(src.Name, name) {
			return src
		}
	}
	return nil
}
