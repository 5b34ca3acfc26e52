package resolver

import (
	"github.com/glorpus-work/extly/pkg/config"
	"github.com/glorpus-work/extly/pkg/depcache"
	"github.com/glorpus-work/extly/pkg/download"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/local"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/registry"
	"github.com/glorpus-work/extly/pkg/remote"
)

// NewRequest builds the request described by cfg.
func NewRequest(cfg *config.Config) (Request, error) {
	env, err := cfg.HostEnvironment()
	if err != nil {
		return Request{}, err
	}
	return Request{
		Specs:       cfg.ExtensionSpecs(),
		LocalSpecs:  cfg.LocalSpecs(),
		Host:        cfg.HostContext(),
		Environment: env,
	}, nil
}

// OpenSources opens the enabled sources of cfg in priority order.
func OpenSources(cfg *config.Config, env model.HostEnvironment, downloader download.Manager) ([]registry.Source, error) {
	cacheRoot, err := cfg.SourceCacheRoot()
	if err != nil {
		return nil, errors.Fail("configure", "", err)
	}
	sources, err := registry.OpenAll(cfg.Sources, registry.OpenOptions{
		Downloader: downloader,
		CacheDir:   cacheRoot,
		IndexTTL:   cfg.Settings.IndexTTL,
		Runtime:    cfg.HostContext().Runtime,
		CacheSize:  cfg.Settings.SourceCacheSize,
		BaseDir:    env.RootDir,
	})
	if err != nil {
		return nil, errors.Fail("configure", "", err)
	}
	return sources, nil
}

// OpenCache returns the dependency cache of env.ExtensionsDir with the lock
// settings of cfg.
func OpenCache(cfg *config.Config, env model.HostEnvironment) *depcache.Cache {
	return depcache.New(env.ExtensionsDir,
		depcache.WithLockTimeout(cfg.Settings.LockTimeout),
		depcache.WithPollInterval(cfg.Settings.LockPollInterval),
	)
}

// NewDefault wires the standard chain for cfg: local builds first, then the
// registry behind the dependency cache of env.ExtensionsDir.
func NewDefault(cfg *config.Config, env model.HostEnvironment, downloader download.Manager) (*Composite, error) {
	sources, err := OpenSources(cfg, env, downloader)
	if err != nil {
		return nil, err
	}
	return NewDefaultWithSources(cfg, env, sources), nil
}

// NewDefaultWithSources wires the standard chain over already opened sources.
func NewDefaultWithSources(cfg *config.Config, env model.HostEnvironment, sources []registry.Source) *Composite {
	cache := OpenCache(cfg, env)
	reg := remote.New(remote.Options{
		Sources:     sources,
		InstallDir:  env.ExtensionsDir,
		Concurrency: cfg.Settings.MaxConcurrent,
		Cache:       cache,
	})
	builder := local.NewCommandBuilder(cfg.Settings.BuildCommand, local.NewToolchain(nil))

	return NewComposite(
		NewLocalBuild(local.New(local.Options{Builder: builder, Patterns: cfg.Settings.ProjectPatterns})),
		NewCachedRegistry(cache, reg),
	)
}
