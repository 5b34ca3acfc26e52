package registry

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/pkg/model"
)

// CachingSource memoizes Versions and Package answers of another source.
// Errors are not cached.
type CachingSource struct {
	Source
	versions *lru.Cache[string, []*version.Version]
	packages *lru.Cache[string, *PackageInfo]
}

// NewCachingSource wraps src with LRU caches of the given size.
func NewCachingSource(src Source, size int) (*CachingSource, error) {
	versions, err := lru.New[string, []*version.Version](size)
	if err != nil {
		return nil, err
	}
	packages, err := lru.New[string, *PackageInfo](size)
	if err != nil {
		return nil, err
	}
	return &CachingSource{Source: src, versions: versions, packages: packages}, nil
}

func (c *CachingSource) Versions(ctx context.Context, id string) ([]*version.Version, error) {
	key := strings.ToLower(id)
	if vs, ok := c.versions.Get(key); ok {
		return vs, nil
	}
	vs, err := c.Source.Versions(ctx, id)
	if err != nil {
		return nil, err
	}
	c.versions.Add(key, vs)
	return vs, nil
}

func (c *CachingSource) Package(ctx context.Context, identity model.PackageIdentity) (*PackageInfo, error) {
	key := identity.Key()
	if info, ok := c.packages.Get(key); ok {
		return info, nil
	}
	info, err := c.Source.Package(ctx, identity)
	if err != nil {
		return nil, err
	}
	c.packages.Add(key, info)
	return info, nil
}

// Purge drops every memoized answer.
func (c *CachingSource) Purge() {
	c.versions.Purge()
	c.packages.Purge()
}

// Refresh purges the memoized answers and refreshes the wrapped source when
// it supports it.
func (c *CachingSource) Refresh(ctx context.Context) error {
	c.Purge()
	if r, ok := c.Source.(Refresher); ok {
		return r.Refresh(ctx)
	}
	return nil
}
