package resolver

import (
	"context"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/depcache"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/plan"
)

// CachedRegistry answers from the dependency cache when it still matches the
// request and falls back to a fresh registry resolution otherwise.
type CachedRegistry struct {
	cache    *depcache.Cache
	registry Registry
}

// NewCachedRegistry creates a CachedRegistry.
func NewCachedRegistry(cache *depcache.Cache, registry Registry) *CachedRegistry {
	return &CachedRegistry{cache: cache, registry: registry}
}

// Resolve validates the request, then tries the cache. A corrupt cache is a
// miss; a malformed version range is a fatal configuration error.
func (r *CachedRegistry) Resolve(ctx context.Context, rc *Context) (plan.Set, error) {
	for _, spec := range rc.Specs {
		if err := spec.Validate(); err != nil {
			return nil, errors.Fail("configure", spec.PackageID, err)
		}
	}
	if len(rc.Specs) == 0 && len(rc.AdditionalDependencies) == 0 {
		return plan.Empty(), nil
	}

	set, err := r.fromCache(rc)
	if err != nil {
		return nil, err
	}
	if set != nil {
		return set, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.registry.Resolve(ctx, rc.Specs, rc.AdditionalDependencies, rc.Host), nil
}

func (r *CachedRegistry) fromCache(rc *Context) (plan.Set, error) {
	if r.cache == nil {
		return nil, nil
	}
	cached, err := r.cache.Load()
	if err != nil {
		logger.Warn("Ignoring unreadable dependency cache", logger.Fields{"path": r.cache.Path(), "error": err.Error()})
		return nil, nil
	}
	if cached == nil {
		logger.Debug("No dependency cache", logger.Fields{"path": r.cache.Path()})
		return nil, nil
	}

	ok, err := depcache.Validate(rc.Specs, rc.AdditionalDependencies, cached)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug("Dependency cache is stale", logger.Fields{"path": r.cache.Path()})
		return nil, nil
	}
	present := depcache.VerifyFilesPresent(cached)
	if present == nil {
		logger.Info("Dependency cache references missing files", logger.Fields{"path": r.cache.Path()})
		return nil, nil
	}
	logger.Debug("Using dependency cache", logger.Fields{"path": r.cache.Path(), "packages": len(present.Packages)})
	return plan.Installed(present), nil
}
