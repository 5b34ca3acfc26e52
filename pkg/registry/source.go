// Package registry exposes package sources: JSON indexes of published
// extension packages, read from disk or over HTTP.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/platform"
)

//go:generate mockgen -destination=./mocks/source.go -package=mocks . Source

// Source is one configured package registry.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Versions lists every published version of id usable on the host
	// runtime, in ascending order. An unknown id yields an empty list.
	Versions(ctx context.Context, id string) ([]*version.Version, error)

	// Package describes one published identity. It returns nil when the
	// source does not carry the identity.
	Package(ctx context.Context, identity model.PackageIdentity) (*PackageInfo, error)

	// Download makes the package archive available locally and returns its
	// path. Remote archives are stored in dir; local archives may be
	// returned in place.
	Download(ctx context.Context, identity model.PackageIdentity, dir string) (string, error)
}

// Refresher is implemented by sources that can drop their loaded index and
// read it again.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// PackageInfo is what a source knows about one identity.
type PackageInfo struct {
	Identity     model.PackageIdentity
	Dependencies []model.DependencyRequest
	Tags         []string
	// EntryPoint is the archive-relative path of the entry point module.
	EntryPoint string
}

func newPackageInfo(entry *Entry) *PackageInfo {
	deps := make([]model.DependencyRequest, len(entry.Dependencies))
	copy(deps, entry.Dependencies)
	tags := make([]string, len(entry.Tags))
	copy(tags, entry.Tags)
	return &PackageInfo{
		Identity:     model.PackageIdentity{ID: entry.ID, Version: entry.GetVersion()},
		Dependencies: deps,
		Tags:         tags,
		EntryPoint:   entry.EntryPoint,
	}
}

// indexLoader reads a source's index once and keeps it for the lifetime of
// the source. Failed loads are retried on the next query.
type indexLoader struct {
	load    func(ctx context.Context) (*Index, error)
	runtime platform.Platform

	mu    sync.Mutex
	index *Index
}

func (l *indexLoader) get(ctx context.Context) (*Index, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index != nil {
		return l.index, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	l.index = idx
	return idx, nil
}

// reload replaces the loaded index with the result of load.
func (l *indexLoader) reload(ctx context.Context, load func(ctx context.Context) (*Index, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	idx, err := load(ctx)
	if err != nil {
		return err
	}
	l.index = idx
	return nil
}

func (l *indexLoader) versions(ctx context.Context, id string) ([]*version.Version, error) {
	idx, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	entries := idx.FindPackages(id, l.runtime)
	out := make([]*version.Version, 0, len(entries))
	for _, entry := range entries {
		v := entry.GetVersion()
		if !containsVersion(out, v) {
			out = append(out, v)
		}
	}
	sort.Sort(version.Collection(out))
	return out, nil
}

func (l *indexLoader) entry(ctx context.Context, identity model.PackageIdentity) (*Entry, error) {
	idx, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Find(identity, l.runtime), nil
}

func containsVersion(vs []*version.Version, v *version.Version) bool {
	for _, existing := range vs {
		if existing.Equal(v) {
			return true
		}
	}
	return false
}
