// Package remote resolves registry extensions and their transitive
// dependencies across the configured package sources.
package remote

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/depcache"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/plan"
	"github.com/glorpus-work/extly/pkg/registry"
	"github.com/glorpus-work/extly/pkg/versioning"
)

// DefaultConcurrency bounds parallel package installs when unset.
const DefaultConcurrency = 4

// Options configure a Resolver.
type Options struct {
	// Sources are queried in order; the first has the highest priority.
	Sources []registry.Source
	// InstallDir receives one <id>/<version> folder per package.
	InstallDir string
	// DownloadDir holds fetched archives; defaults to <InstallDir>/.downloads.
	DownloadDir string
	Concurrency int
	// Cache, when set, is rewritten after every successful install.
	Cache *depcache.Cache
}

// Resolver picks concrete package versions from the registry sources.
type Resolver struct {
	opts Options
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = filepath.Join(opts.InstallDir, ".downloads")
	}
	return &Resolver{opts: opts}
}

// node is one discovered package identity and the source that answered for it.
type node struct {
	identity model.PackageIdentity
	source   registry.Source
	info     *registry.PackageInfo
	// deps excludes dependencies the host supplies.
	deps []constraint
}

type constraint struct {
	id  string
	rng versioning.Range
}

// pool collects every discovered identity, grouped by lower-cased id.
type pool struct {
	byID  map[string][]*node
	order []string
}

func newPool() *pool {
	return &pool{byID: make(map[string][]*node)}
}

func (p *pool) add(n *node) {
	key := strings.ToLower(n.identity.ID)
	if _, ok := p.byID[key]; !ok {
		p.order = append(p.order, key)
	}
	p.byID[key] = append(p.byID[key], n)
}

func (p *pool) has(identity model.PackageIdentity) bool {
	for _, n := range p.byID[strings.ToLower(identity.ID)] {
		if n.identity.Version.Equal(identity.Version) {
			return true
		}
	}
	return false
}

// rootRequest is a configured extension after source selection.
type rootRequest struct {
	spec     model.ExtensionSpec
	rng      versioning.Range
	selected model.PackageIdentity
}

// Resolve discovers the dependency graph of specs and additional and picks
// one version per package. Discovery failures yield an invalid set; they are
// never returned directly.
func (r *Resolver) Resolve(ctx context.Context, specs []model.ExtensionSpec, additional []model.DependencyRequest, host model.HostContext) plan.Set {
	if len(specs) == 0 && len(additional) == 0 {
		return plan.Empty()
	}
	if len(r.opts.Sources) == 0 {
		return plan.Invalid(errors.Fail("resolve", "", errors.ErrNoSources))
	}

	roots := make([]*rootRequest, 0, len(specs))
	for _, spec := range specs {
		root, err := r.selectRoot(ctx, spec)
		if err != nil {
			return plan.Invalid(errors.Fail("resolve", spec.PackageID, err))
		}
		logger.Debug("Selected root package", logger.Fields{"package": root.selected.String()})
		roots = append(roots, root)
	}

	extra := make([]constraint, 0, len(additional))
	for _, dep := range additional {
		if host.IsSupplied(dep.ID) {
			continue
		}
		rng, err := versioning.ParseRange(dep.VersionRange)
		if err != nil {
			return plan.Invalid(errors.Fail("resolve", dep.ID, err))
		}
		extra = append(extra, constraint{id: dep.ID, rng: rng})
	}

	p, err := r.expand(ctx, roots, extra, host)
	if err != nil {
		return plan.Invalid(errors.Fail("resolve", "", err))
	}

	selected, err := solve(ctx, p, roots, extra)
	if err != nil {
		return plan.Invalid(errors.Fail("resolve", "", err))
	}

	return &registrySet{
		resolver: r,
		host:     host,
		packages: selected,
		roots:    rootKeys(roots),
	}
}

// selectRoot picks the best version of spec across all sources.
func (r *Resolver) selectRoot(ctx context.Context, spec model.ExtensionSpec) (*rootRequest, error) {
	rng, err := spec.Range()
	if err != nil {
		return nil, err
	}

	var best *version.Version
	for _, src := range r.opts.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		versions, err := src.Versions(ctx, spec.PackageID)
		if err != nil {
			return nil, err
		}
		candidate := versioning.FindBestMatch(versions, rng, spec.AllowPrerelease)
		if candidate == nil {
			continue
		}
		logger.Debug("Candidate version", logger.Fields{
			"package": spec.PackageID, "source": src.Name(), "version": candidate.Original(),
		})
		if versioning.Better(rng, candidate, best) {
			best = candidate
		}
	}
	if best == nil {
		return nil, errors.ErrPackageNotFoundWithID(spec.PackageID)
	}
	return &rootRequest{
		spec:     spec,
		rng:      rng,
		selected: model.PackageIdentity{ID: spec.PackageID, Version: best},
	}, nil
}

// expand walks the dependency graph breadth first from the selected roots
// and the additional requests, collecting every identity it reaches.
func (r *Resolver) expand(ctx context.Context, roots []*rootRequest, extra []constraint, host model.HostContext) (*pool, error) {
	p := newPool()
	queue := make([]model.PackageIdentity, 0, len(roots)+len(extra))
	for _, root := range roots {
		queue = append(queue, root.selected)
	}
	for _, c := range extra {
		identity, err := r.minimumIdentity(ctx, c)
		if err != nil {
			return nil, err
		}
		queue = append(queue, identity)
	}

	visited := make(map[string]bool)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current.Key()] || p.has(current) {
			continue
		}
		visited[current.Key()] = true
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.describe(ctx, current, host)
		if err != nil {
			return nil, err
		}
		p.add(n)

		for _, dep := range n.deps {
			identity, err := r.minimumIdentity(ctx, dep)
			if err != nil {
				return nil, errors.Wrapf(err, "required by %s", current)
			}
			queue = append(queue, identity)
		}
	}
	return p, nil
}

// describe asks the sources in order for the identity's dependency data. The
// first source that knows the identity wins.
func (r *Resolver) describe(ctx context.Context, identity model.PackageIdentity, host model.HostContext) (*node, error) {
	for _, src := range r.opts.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := src.Package(ctx, identity)
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue
		}
		n := &node{identity: info.Identity, source: src, info: info}
		if n.identity.Version == nil {
			n.identity = identity
		}
		for _, dep := range info.Dependencies {
			if host.IsSupplied(dep.ID) {
				logger.Debug("Dependency supplied by host", logger.Fields{"package": identity.String(), "dependency": dep.ID})
				continue
			}
			rng, err := versioning.ParseRange(dep.VersionRange)
			if err != nil {
				return nil, errors.Wrapf(err, "dependency of %s", identity)
			}
			n.deps = append(n.deps, constraint{id: dep.ID, rng: rng})
		}
		return n, nil
	}
	return nil, errors.ErrPackageNotFoundWithID(identity.String())
}

// minimumIdentity returns the lowest version satisfying c across all
// sources. Higher priority sources win ties.
func (r *Resolver) minimumIdentity(ctx context.Context, c constraint) (model.PackageIdentity, error) {
	var best *version.Version
	for _, src := range r.opts.Sources {
		if err := ctx.Err(); err != nil {
			return model.PackageIdentity{}, err
		}
		versions, err := src.Versions(ctx, c.id)
		if err != nil {
			return model.PackageIdentity{}, err
		}
		candidate := versioning.MinSatisfying(versions, c.rng)
		if candidate == nil {
			continue
		}
		if best == nil || preferMinimum(candidate, best) {
			best = candidate
		}
	}
	if best == nil {
		return model.PackageIdentity{}, errors.ErrPackageNotFoundWithID(c.id + " " + c.rng.String())
	}
	return model.PackageIdentity{ID: c.id, Version: best}, nil
}

// preferMinimum orders stable releases before prereleases, then by version.
func preferMinimum(candidate, current *version.Version) bool {
	cp, kp := versioning.IsPrerelease(candidate), versioning.IsPrerelease(current)
	if cp != kp {
		return !cp
	}
	return candidate.LessThan(current)
}

func rootKeys(roots []*rootRequest) map[string]bool {
	keys := make(map[string]bool, len(roots))
	for _, root := range roots {
		keys[strings.ToLower(root.spec.PackageID)] = true
	}
	return keys
}
