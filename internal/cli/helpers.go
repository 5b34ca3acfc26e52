package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/config"
	"github.com/glorpus-work/extly/pkg/download"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/orchestrator"
	"github.com/glorpus-work/extly/pkg/registry"
	"github.com/glorpus-work/extly/pkg/resolver"
)

// These variables will be set by the main package
var (
	ConfigPath   *string
	Verbose      *bool
	NoColor      *bool
	OutputFormat *string
)

// loadConfig loads the configuration, applies the global flags and sets up
// logging accordingly.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if path == "" {
		return nil, fmt.Errorf("failed to determine configuration path: %w", os.ErrNotExist)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if OutputFormat != nil && *OutputFormat != "" {
		cfg.Settings.OutputFormat = strings.ToLower(*OutputFormat)
	}
	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.SetPlainText(NoColor != nil && *NoColor)
	logger.InitLogger(cfg.Settings.LogLevel, logger.OutputFormat(cfg.Settings.OutputFormat))
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err.Error()})
		return ""
	}
	return defaultPath
}

// session bundles what a command needs to resolve and install.
type session struct {
	cfg     *config.Config
	request resolver.Request
	sources []registry.Source
	chain   *resolver.Composite
}

func newSession(cfg *config.Config) (*session, error) {
	req, err := resolver.NewRequest(cfg)
	if err != nil {
		return nil, err
	}
	dl := download.NewManager(cfg.Settings.HTTPTimeout, "extly/"+Version)
	sources, err := resolver.OpenSources(cfg, req.Environment, dl)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:     cfg,
		request: req,
		sources: sources,
		chain:   resolver.NewDefaultWithSources(cfg, req.Environment, sources),
	}, nil
}

func (s *session) environment() model.HostEnvironment {
	return s.request.Environment
}

func (s *session) orchestrator(hooks orchestrator.Hooks) *orchestrator.Orchestrator {
	return orchestrator.New(s.chain, hooks)
}

// progressHooks reports orchestrator events through the logger.
func progressHooks() orchestrator.Hooks {
	return orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
		fields := logger.Fields{"phase": e.Phase}
		if e.ID != "" {
			fields["id"] = e.ID
		}
		if e.Msg != "" {
			fields["detail"] = e.Msg
		}
		switch e.Phase {
		case "error":
			logger.Error("Failed", fields)
		case "done":
			logger.Debug("Done", fields)
		default:
			logger.Debug("Progress", fields)
		}
	}}
}

func jsonOutput(cfg *config.Config) bool {
	return cfg.Settings.OutputFormat == string(logger.FormatJSON)
}
